// Package spec implements SpecificationIndex: given a root directory and an
// operationId, it locates the single best Swagger/OpenAPI 2.0 file that
// defines it.
package spec

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nimrody/azure-simple-sdk/internal/jsonvalue"
)

// Index walks a root directory tree on demand and memoizes, per operationId,
// the single best SpecificationFile that defines it. It is intended for
// single-threaded generator runs (spec.md §9); its cache is a plain map.
type Index struct {
	root  string
	log   *zap.Logger
	cache map[string]*SpecificationFile
}

// NewIndex returns an Index rooted at root. log may be nil, in which case a
// no-op logger is used.
func NewIndex(root string, log *zap.Logger) *Index {
	if log == nil {
		log = zap.NewNop()
	}
	return &Index{root: root, log: log, cache: make(map[string]*SpecificationFile)}
}

// FindBest returns the best SpecificationFile defining operationID, and false
// when no candidate file was found. A directory I/O error is logged and
// folded into "not found" rather than surfaced: partial catalog discovery
// must not abort generation (spec.md §7).
func (ix *Index) FindBest(operationID string) (*SpecificationFile, bool) {
	if sf, ok := ix.cache[operationID]; ok {
		return sf, true
	}

	candidates := ix.collectCandidates(operationID)
	if len(candidates) == 0 {
		return nil, false
	}

	best := selectBestCandidate(candidates)
	ix.cache[operationID] = best
	return best, true
}

func (ix *Index) collectCandidates(operationID string) []*SpecificationFile {
	var candidates []*SpecificationFile

	err := godirwalk.Walk(ix.root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() || !strings.HasSuffix(path, ".json") {
				return nil
			}
			if !isEligiblePath(path) {
				return nil
			}
			sf, ok := ix.acceptIfDefines(path, operationID)
			if ok {
				candidates = append(candidates, sf)
			}
			return nil
		},
		ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
			ix.log.Warn("error walking specification tree", zap.String("path", path), zap.Error(err))
			return godirwalk.SkipNode
		},
	})
	if err != nil {
		ix.log.Warn("error walking specification root", zap.String("root", ix.root), zap.Error(errors.Wrap(err, "walk")))
	}
	return candidates
}

// isEligiblePath applies the path-level filters of spec.md §4.A: reject
// example/test/readme files and bare config files, and require that the
// path sit under either a resource-manager or data-plane tree.
func isEligiblePath(path string) bool {
	lower := strings.ToLower(path)
	base := strings.ToLower(filepath.Base(path))

	if strings.Contains(path, "examples") || strings.Contains(path, "test") {
		return false
	}
	if strings.Contains(base, "readme") {
		return false
	}
	if strings.HasSuffix(base, "package.json") || strings.HasSuffix(base, "tsconfig.json") {
		return false
	}
	if !strings.Contains(lower, "resource-manager") && !strings.Contains(lower, "data-plane") {
		return false
	}
	return true
}

// acceptIfDefines applies the two-stage containment test: a cheap substring
// search, then a JSON descent into paths.*.*.operationId. Unparseable JSON
// is skipped silently.
func (ix *Index) acceptIfDefines(path, operationID string) (*SpecificationFile, bool) {
	raw, err := os.ReadFile(path) //nolint:gosec // path comes from a controlled spec tree walk
	if err != nil {
		ix.log.Warn("cannot read candidate specification file", zap.String("path", path), zap.Error(err))
		return nil, false
	}
	if !strings.Contains(string(raw), operationID) {
		return nil, false
	}

	doc, err := jsonvalue.Decode(raw)
	if err != nil {
		return nil, false
	}

	paths, ok := jsonvalue.Field(doc, "paths")
	if !ok {
		return nil, false
	}
	for _, template := range jsonvalue.Keys(paths) {
		item, _ := jsonvalue.Field(paths, template)
		for _, method := range jsonvalue.Keys(item) {
			op, _ := jsonvalue.Field(item, method)
			idNode, ok := jsonvalue.Field(op, "operationId")
			if !ok {
				continue
			}
			id, ok := jsonvalue.String(idNode)
			if ok && id == operationID {
				return &SpecificationFile{Path: path, ApiVersion: ParseApiVersion(path)}, true
			}
		}
	}
	return nil, false
}

// selectBestCandidate implements the stable tie-break order of spec.md
// §4.A: stable ahead of preview, newer date ahead of older, then a
// deterministic lexicographic order on path. It is idempotent: re-running
// the selection over the same candidate set yields the same file.
func selectBestCandidate(candidates []*SpecificationFile) *SpecificationFile {
	sorted := make([]*SpecificationFile, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.ApiVersion.newerThan(b.ApiVersion) {
			return true
		}
		if b.ApiVersion.newerThan(a.ApiVersion) {
			return false
		}
		return a.Path < b.Path
	})
	return sorted[0]
}
