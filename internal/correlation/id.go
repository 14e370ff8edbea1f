// Package correlation generates the per-request correlation id the
// executor stamps on every outgoing request (spec.md §4.E).
package correlation

import "github.com/google/uuid"

// Header is the name of the correlation id header the builder sets by
// default.
const Header = "x-ms-client-request-id"

// New returns a random correlation id rendered as a hyphenated hex string.
func New() string {
	return uuid.New().String()
}
