package client

import (
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// RetryPolicy governs how many times, and how long to wait between, the
// executor retries a failed attempt (spec.md §4.E).
type RetryPolicy struct {
	MaxAttempts          int
	BaseDelay            time.Duration
	MaxDelay             time.Duration
	RetryableStatusCodes map[int]bool
	RetryOnTimeout       bool
	RetryOnNetworkError  bool
}

// DefaultRetryPolicy is the built-in policy of spec.md §4.E: 5 attempts,
// 100ms base delay, 1600ms cap, retrying 429/502/503/504 plus timeouts and
// transport-level network errors.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    1600 * time.Millisecond,
		RetryableStatusCodes: map[int]bool{
			429: true, 502: true, 503: true, 504: true,
		},
		RetryOnTimeout:      true,
		RetryOnNetworkError: true,
	}
}

func (p RetryPolicy) isRetryableStatus(code int) bool {
	return p.RetryableStatusCodes[code]
}

// computeBackoff returns the delay before the next attempt. A well-formed
// Retry-After header takes precedence over the policy's own schedule,
// whether expressed as a number of seconds or an HTTP-date (spec.md §4.E,
// scenario 5 of spec.md §8). http.ParseTime is the stdlib's own HTTP-date
// parser (RFC1123, RFC850, and ANSI C asctime forms) and is used here
// directly: no example dependency offers HTTP-date parsing, and reaching
// past the standard library for exactly what it already provides would add
// a dependency for no behavioral gain.
func computeBackoff(policy RetryPolicy, attempt int, retryAfter string, now time.Time) time.Duration {
	if retryAfter != "" {
		if secs, err := strconv.Atoi(retryAfter); err == nil {
			if secs < 0 {
				secs = 0
			}
			return time.Duration(secs) * time.Second
		}
		if when, err := http.ParseTime(retryAfter); err == nil {
			d := when.Sub(now)
			if d < 0 {
				d = 0
			}
			return d
		}
	}

	exp := policy.BaseDelay * time.Duration(uint64(1)<<uint(attempt-1))
	jitter := time.Duration(rand.Float64() * 0.5 * float64(exp))
	d := exp + jitter
	if d > policy.MaxDelay {
		d = policy.MaxDelay
	}
	return d
}
