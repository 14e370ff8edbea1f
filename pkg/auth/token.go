// Package auth implements TokenProvider: acquisition and concurrency-safe
// caching of bearer tokens for outbound HTTP requests.
package auth

import "time"

// expiryBuffer is subtracted from a Token's ExpiresAt when deciding whether
// it is still usable (spec.md §3: "now >= expiresAt - 5 minutes").
const expiryBuffer = 5 * time.Minute

// Token is the (accessToken, expiresAt) pair of spec.md §3.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Expired reports whether the token should no longer be handed to a caller.
func (t Token) Expired(now time.Time) bool {
	if t.AccessToken == "" {
		return true
	}
	return !now.Before(t.ExpiresAt.Add(-expiryBuffer))
}
