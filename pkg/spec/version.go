package spec

import (
	"regexp"
	"time"
)

// versionPattern anchors on the directory convention described in the
// external-interfaces section: .../(stable|preview)/YYYY-MM-DD[-preview]/...
var versionPattern = regexp.MustCompile(`/(stable|preview)/(\d{4}-\d{2}-\d{2})(-preview)?/`)

// MinDate is the sentinel date used for an ApiVersion whose path could not be
// parsed. Consumers sorting by date will treat such entries as oldest; this
// is accepted behavior (spec.md §9).
var MinDate = time.Time{}

// ApiVersion is the immutable (versionString, date, stable) triple described
// in spec.md §3. It is constructed once, from a specification file's path,
// and never mutated.
type ApiVersion struct {
	VersionString string
	Date          time.Time
	Stable        bool
}

// UnknownVersion is the sentinel ApiVersion emitted when a path does not
// match versionPattern.
var UnknownVersion = ApiVersion{VersionString: "unknown", Date: MinDate, Stable: false}

// ParseApiVersion derives an ApiVersion from a specification file path. On
// mismatch it returns UnknownVersion; this is never treated as a caller
// error by SpecificationIndex.
func ParseApiVersion(path string) ApiVersion {
	m := versionPattern.FindStringSubmatch(path)
	if m == nil {
		return UnknownVersion
	}
	maturity, dateStr := m[1], m[2]
	t, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		return ApiVersion{VersionString: dateStr, Date: MinDate, Stable: maturity == "stable"}
	}
	return ApiVersion{VersionString: dateStr, Date: t, Stable: maturity == "stable"}
}

// newerThan implements the candidate tie-break order: stable ahead of
// preview, then newer date ahead of older.
func (v ApiVersion) newerThan(other ApiVersion) bool {
	if v.Stable != other.Stable {
		return v.Stable
	}
	return v.Date.After(other.Date)
}
