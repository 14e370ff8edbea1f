package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nimrody/azure-simple-sdk/internal/recorder"
	"github.com/nimrody/azure-simple-sdk/pkg/apierrors"
	"github.com/nimrody/azure-simple-sdk/pkg/auth"
)

// Response is what Execute hands back on any non-retried outcome, success
// or failure, so callers can inspect status and headers even when decoding
// into out failed or the server returned an error body.
type Response struct {
	StatusCode int
	Headers    http.Header
	RawBody    []byte
}

// Executor is spec.md §4.E's HttpExecutor: it authenticates, sends,
// classifies failures against the closed error taxonomy of spec.md §7, and
// retries according to a RetryPolicy.
type Executor struct {
	transport Transport
	policy    RetryPolicy
	product   string
	version   string
	log       *zap.Logger
}

// NewExecutor returns an Executor that authenticates requests via provider
// and sends them through transport (http.DefaultTransport if nil), using
// policy as its default RetryPolicy. product and version populate the
// default User-Agent header built by Builder.
func NewExecutor(provider auth.Provider, transport Transport, policy RetryPolicy, product, version string, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{
		transport: newAuthTransport(provider, transport),
		policy:    policy,
		product:   product,
		version:   version,
		log:       log,
	}
}

// NewBuilder returns a Builder already stamped with this executor's
// product/version pair.
func (e *Executor) NewBuilder() *Builder {
	return NewBuilder(e.product, e.version)
}

// Execute sends req under the executor's default RetryPolicy, decoding a
// successful JSON response body into out when out is non-nil.
func (e *Executor) Execute(ctx context.Context, req *Request, out interface{}) (*Response, error) {
	return e.executeWithPolicy(ctx, req, e.policy, out)
}

// ExecuteWithPolicy sends req under an explicitly supplied RetryPolicy,
// overriding the executor's default for this call only. Carried forward
// per spec.md §9's note that an implementation MAY add an explicit-policy
// overload alongside the default-policy Execute.
func (e *Executor) ExecuteWithPolicy(ctx context.Context, req *Request, policy RetryPolicy, out interface{}) (*Response, error) {
	return e.executeWithPolicy(ctx, req, policy, out)
}

func (e *Executor) executeWithPolicy(ctx context.Context, req *Request, policy RetryPolicy, out interface{}) (*Response, error) {
	httpReq, bodyBytes, err := buildHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	recorder.Observe(req)

	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, &apierrors.CancelledError{Cause: ctx.Err()}
		}

		resp, body, err := e.attempt(ctx, req, httpReq, bodyBytes)
		if err != nil {
			lastErr = err
			if attempt == maxAttempts || !isRetryableErr(policy, err) {
				return nil, lastErr
			}
			e.log.Debug("retrying after transport error", zap.Int("attempt", attempt), zap.Error(err))
			e.sleep(ctx, computeBackoff(policy, attempt, "", time.Now()))
			continue
		}

		if resp.StatusCode < 400 {
			response := &Response{StatusCode: resp.StatusCode, Headers: resp.Header, RawBody: body}
			if out != nil {
				if err := json.Unmarshal(body, out); err != nil {
					return response, &apierrors.ConfigurationError{Message: "cannot decode response body", Cause: err}
				}
			}
			return response, nil
		}

		classified := classifyStatus(resp.StatusCode, resp.Header, body, attempt)
		if attempt < maxAttempts && policy.isRetryableStatus(resp.StatusCode) {
			lastErr = classified
			delay := computeBackoff(policy, attempt, resp.Header.Get("Retry-After"), time.Now())
			e.log.Debug("retrying after status", zap.Int("attempt", attempt), zap.Int("status", resp.StatusCode), zap.Duration("delay", delay))
			e.sleep(ctx, delay)
			continue
		}

		return &Response{StatusCode: resp.StatusCode, Headers: resp.Header, RawBody: body}, classified
	}

	return nil, lastErr
}

// attempt sends a single try of the request and reads its body. It never
// classifies an HTTP status against the error taxonomy; a failed send is
// returned as a CancelledError when ctx was cancelled, as the
// AuthenticationFailedError when the token could not be acquired, and as a
// NetworkError otherwise.
func (e *Executor) attempt(ctx context.Context, req *Request, httpReq *http.Request, bodyBytes []byte) (*http.Response, []byte, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	httpReq = httpReq.Clone(attemptCtx)
	if bodyBytes != nil {
		httpReq.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	}

	resp, err := e.transport.RoundTrip(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil, &apierrors.CancelledError{Cause: ctx.Err()}
		}
		// A failed token acquisition surfaces as AuthenticationFailed, not
		// NetworkError: it is a distinct, non-retryable taxonomy member
		// (spec.md §4.E/§7), not a transport-level failure.
		var authErr *apierrors.AuthenticationFailedError
		if errors.As(err, &authErr) {
			return nil, nil, authErr
		}
		return nil, nil, &apierrors.NetworkError{Kind: classifyNetworkErr(err), Cause: err}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return nil, nil, &apierrors.NetworkError{Kind: apierrors.NetworkKindIO, Cause: readErr}
	}
	return resp, body, nil
}

func buildHTTPRequest(ctx context.Context, req *Request) (*http.Request, []byte, error) {
	fullURL := AssembleURL(req.URL, req.Query)

	var bodyBytes []byte
	switch b := req.Body.(type) {
	case nil:
		bodyBytes = nil
	case []byte:
		bodyBytes = b
	case string:
		bodyBytes = []byte(b)
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, nil, &apierrors.ConfigurationError{Message: "cannot serialize request body", Cause: err}
		}
		bodyBytes = encoded
	}

	var bodyReader io.Reader
	if bodyBytes != nil {
		bodyReader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, bodyReader)
	if err != nil {
		return nil, nil, &apierrors.ConfigurationError{Message: "cannot build HTTP request", Cause: err}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	return httpReq, bodyBytes, nil
}

func (e *Executor) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// isRetryableErr is the sole arbiter of whether a transport-level failure
// (as opposed to a classified HTTP status) earns a retry. AuthenticationFailed
// is deliberately excluded: it is never retryable, so it falls through to the
// default false below.
func isRetryableErr(policy RetryPolicy, err error) bool {
	var netErr *apierrors.NetworkError
	if errors.As(err, &netErr) {
		if netErr.Kind == apierrors.NetworkKindTimeout {
			return policy.RetryOnTimeout
		}
		return policy.RetryOnNetworkError
	}
	return false
}

func classifyNetworkErr(err error) apierrors.NetworkKind {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apierrors.NetworkKindTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apierrors.NetworkKindTimeout
	}
	return apierrors.NetworkKindIO
}

// classifyStatus maps a response with status >= 400 onto the closed error
// taxonomy of spec.md §7, extracting an optional {"error":{"code","message"}}
// envelope when the body is shaped that way.
func classifyStatus(status int, headers http.Header, body []byte, attempt int) error {
	code, message := parseErrorEnvelope(body)

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &apierrors.AuthenticationFailedError{
			Message:   message,
			Headers:   headers,
			ErrorCode: code,
			RawBody:   body,
		}
	case status == http.StatusNotFound:
		return &apierrors.ResourceNotFoundError{
			Headers:   headers,
			ErrorCode: code,
			RawBody:   body,
		}
	default:
		return &apierrors.ServiceError{
			StatusCode: status,
			Headers:    headers,
			ErrorCode:  code,
			RawBody:    body,
			Message:    message,
			RetryCount: attempt,
		}
	}
}

func parseErrorEnvelope(body []byte) (code, message string) {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error.Message == "" {
		return "", ""
	}
	return envelope.Error.Code, envelope.Error.Message
}
