package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nimrody/azure-simple-sdk/internal/recorder"
	"github.com/nimrody/azure-simple-sdk/pkg/apierrors"
	"github.com/nimrody/azure-simple-sdk/pkg/auth"
)

// fakeProvider always hands back the same token and never fails.
type fakeProvider struct{ token string }

func (p *fakeProvider) Acquire(ctx context.Context) (string, error) { return p.token, nil }
func (p *fakeProvider) IsExpired() bool                             { return false }

var _ auth.Provider = (*fakeProvider)(nil)

// scriptedResponse is one canned reply a fakeTransport hands back in order.
type scriptedResponse struct {
	status     int
	body       string
	retryAfter string
	err        error
}

// fakeTransport plays back a fixed script of responses/errors, one per
// RoundTrip call, and records the time of each call for delay assertions.
type fakeTransport struct {
	mu        sync.Mutex
	script    []scriptedResponse
	calls     []time.Time
	reqHeader []http.Header
}

func (t *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	idx := len(t.calls)
	t.calls = append(t.calls, time.Now())
	t.reqHeader = append(t.reqHeader, req.Header.Clone())
	t.mu.Unlock()

	if idx >= len(t.script) {
		return nil, errors.New("fakeTransport: script exhausted")
	}
	step := t.script[idx]
	if step.err != nil {
		return nil, step.err
	}

	header := http.Header{}
	if step.retryAfter != "" {
		header.Set("Retry-After", step.retryAfter)
	}
	return &http.Response{
		StatusCode: step.status,
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(step.body)),
	}, nil
}

func (t *fakeTransport) callCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

func newTestRequest(t *testing.T) *Request {
	t.Helper()
	req, err := NewBuilder("azsdk-test", "0.0.0").
		Method("GET").
		URL("https://management.azure.com/subscriptions/x/resourceGroups/y").
		Timeout(2 * time.Second).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return req
}

func TestExecuteSuccessNoRetry(t *testing.T) {
	transport := &fakeTransport{script: []scriptedResponse{{status: 200, body: `{"ok":true}`}}}
	exec := NewExecutor(&fakeProvider{token: "tok"}, transport, DefaultRetryPolicy(), "azsdk-test", "0.0.0", nil)

	var out struct {
		OK bool `json:"ok"`
	}
	resp, err := exec.Execute(context.Background(), newTestRequest(t), &out)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.StatusCode != 200 || !out.OK {
		t.Errorf("got resp=%+v out=%+v", resp, out)
	}
	if got := transport.callCount(); got != 1 {
		t.Errorf("callCount = %d, want 1", got)
	}
	if got := transport.reqHeader[0].Get("Authorization"); got != "Bearer tok" {
		t.Errorf("Authorization header = %q, want Bearer tok", got)
	}
}

// TestRetryAfterSecondsHonored mirrors spec.md §8 scenario 5: a 503 with
// Retry-After: 1 followed by a 200 results in one retry, and the observed
// delay tracks the header rather than the exponential schedule.
func TestRetryAfterSecondsHonored(t *testing.T) {
	transport := &fakeTransport{script: []scriptedResponse{
		{status: 503, retryAfter: "1", body: `{"error":{"code":"Busy","message":"try later"}}`},
		{status: 200, body: `{}`},
	}}
	exec := NewExecutor(&fakeProvider{token: "tok"}, transport, DefaultRetryPolicy(), "azsdk-test", "0.0.0", nil)

	start := time.Now()
	resp, err := exec.Execute(context.Background(), newTestRequest(t), nil)
	elapsed := time.Since(start)

	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if elapsed < 900*time.Millisecond {
		t.Errorf("elapsed = %v, want >= ~1s (Retry-After honored)", elapsed)
	}
	if transport.callCount() != 2 {
		t.Errorf("callCount = %d, want 2", transport.callCount())
	}
}

// TestExhaustedRetriesSurfaceServiceError mirrors spec.md §8 scenario 6:
// five straight 503s with no Retry-After exhaust the default policy and
// surface a ServiceError annotated with the attempt count.
func TestExhaustedRetriesSurfaceServiceError(t *testing.T) {
	script := make([]scriptedResponse, 5)
	for i := range script {
		script[i] = scriptedResponse{status: 503, body: `{"error":{"code":"Busy","message":"try later"}}`}
	}
	transport := &fakeTransport{script: script}
	exec := NewExecutor(&fakeProvider{token: "tok"}, transport, DefaultRetryPolicy(), "azsdk-test", "0.0.0", nil)

	_, err := exec.Execute(context.Background(), newTestRequest(t), nil)
	if err == nil {
		t.Fatal("Execute() error = nil, want ServiceError")
	}
	var svcErr *apierrors.ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("error = %v (%T), want *apierrors.ServiceError", err, err)
	}
	if svcErr.StatusCode != 503 {
		t.Errorf("StatusCode = %d, want 503", svcErr.StatusCode)
	}
	if svcErr.RetryCount != 5 {
		t.Errorf("RetryCount = %d, want 5", svcErr.RetryCount)
	}
	if transport.callCount() != 5 {
		t.Errorf("callCount = %d, want 5", transport.callCount())
	}
}

func TestMaxAttemptsOneDisablesRetry(t *testing.T) {
	transport := &fakeTransport{script: []scriptedResponse{{status: 503, body: `{}`}}}
	policy := DefaultRetryPolicy()
	policy.MaxAttempts = 1
	exec := NewExecutor(&fakeProvider{token: "tok"}, transport, policy, "azsdk-test", "0.0.0", nil)

	_, err := exec.Execute(context.Background(), newTestRequest(t), nil)
	if err == nil {
		t.Fatal("Execute() error = nil, want error")
	}
	if got := transport.callCount(); got != 1 {
		t.Errorf("callCount = %d, want 1 (no retries with MaxAttempts=1)", got)
	}
}

func TestStatus404ClassifiesResourceNotFound(t *testing.T) {
	transport := &fakeTransport{script: []scriptedResponse{{status: 404, body: `{"error":{"code":"NotFound","message":"gone"}}`}}}
	exec := NewExecutor(&fakeProvider{token: "tok"}, transport, DefaultRetryPolicy(), "azsdk-test", "0.0.0", nil)

	_, err := exec.Execute(context.Background(), newTestRequest(t), nil)
	var notFound *apierrors.ResourceNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("error = %v (%T), want *apierrors.ResourceNotFoundError", err, err)
	}
	if notFound.ErrorCode != "NotFound" {
		t.Errorf("ErrorCode = %q, want NotFound", notFound.ErrorCode)
	}
}

func TestStatus401ClassifiesAuthenticationFailed(t *testing.T) {
	transport := &fakeTransport{script: []scriptedResponse{{status: 401, body: `{"error":{"code":"InvalidToken","message":"expired"}}`}}}
	exec := NewExecutor(&fakeProvider{token: "tok"}, transport, DefaultRetryPolicy(), "azsdk-test", "0.0.0", nil)

	_, err := exec.Execute(context.Background(), newTestRequest(t), nil)
	var authErr *apierrors.AuthenticationFailedError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v (%T), want *apierrors.AuthenticationFailedError", err, err)
	}
	if authErr.ErrorCode != "InvalidToken" {
		t.Errorf("ErrorCode = %q, want InvalidToken", authErr.ErrorCode)
	}
}

func TestExecuteWithPolicyOverridesDefault(t *testing.T) {
	transport := &fakeTransport{script: []scriptedResponse{{status: 503, body: `{}`}, {status: 200, body: `{}`}}}
	exec := NewExecutor(&fakeProvider{token: "tok"}, transport, DefaultRetryPolicy(), "azsdk-test", "0.0.0", nil)

	fast := DefaultRetryPolicy()
	fast.BaseDelay = time.Millisecond
	fast.MaxDelay = 2 * time.Millisecond

	resp, err := exec.ExecuteWithPolicy(context.Background(), newTestRequest(t), fast, nil)
	if err != nil {
		t.Fatalf("ExecuteWithPolicy() error = %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
}

func TestBuildRejectsUnknownMethod(t *testing.T) {
	_, err := NewBuilder("p", "v").Method("TRACE").URL("https://example.com").Build()
	var cfgErr *apierrors.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("error = %v (%T), want *apierrors.ConfigurationError", err, err)
	}
}

func TestBuildAttachesDefaultHeaders(t *testing.T) {
	req, err := NewBuilder("azsdk-test", "1.2.3").Method("GET").URL("https://example.com").Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if req.Headers["User-Agent"] != "azsdk-test/1.2.3" {
		t.Errorf("User-Agent = %q", req.Headers["User-Agent"])
	}
	if req.Headers["Accept"] != "application/json" {
		t.Errorf("Accept = %q", req.Headers["Accept"])
	}
	if req.Headers["x-ms-client-request-id"] == "" {
		t.Errorf("x-ms-client-request-id not set")
	}
}

func TestVersionSetsHeaderAndQuery(t *testing.T) {
	req, err := NewBuilder("p", "v").Method("GET").URL("https://example.com").Version("2024-01-01").Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if req.Headers["x-ms-version"] != "2024-01-01" {
		t.Errorf("x-ms-version = %q", req.Headers["x-ms-version"])
	}
	if req.Query["api-version"] != "2024-01-01" {
		t.Errorf("api-version query = %q", req.Query["api-version"])
	}
}

func TestAssembleURLUnencodedAndSorted(t *testing.T) {
	got := AssembleURL("https://example.com/r", map[string]string{"b": "2", "a": "1 2"})
	want := "https://example.com/r?a=1 2&b=2"
	if got != want {
		t.Errorf("AssembleURL() = %q, want %q", got, want)
	}
}

func TestAssembleURLAppendsToExistingQuery(t *testing.T) {
	got := AssembleURL("https://example.com/r?x=1", map[string]string{"a": "1"})
	if got != "https://example.com/r?x=1&a=1" {
		t.Errorf("AssembleURL() = %q", got)
	}
}

func TestComputeBackoffRetryAfterSeconds(t *testing.T) {
	policy := DefaultRetryPolicy()
	now := time.Now()
	d := computeBackoff(policy, 1, "0", now)
	if d != 0 {
		t.Errorf("computeBackoff with Retry-After: 0 = %v, want 0", d)
	}
}

func TestComputeBackoffRetryAfterPastDate(t *testing.T) {
	policy := DefaultRetryPolicy()
	now := time.Now()
	past := now.Add(-time.Hour).Format(http.TimeFormat)
	d := computeBackoff(policy, 1, past, now)
	if d != 0 {
		t.Errorf("computeBackoff with past HTTP-date = %v, want 0", d)
	}
}

// TestComputeBackoffExponentialWithinBounds is a property check of
// spec.md §4.E's invariant: delay ∈ [baseDelay·2^(k−1), min(1.5·baseDelay·2^(k−1), maxDelay)].
func TestComputeBackoffExponentialWithinBounds(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: 1600 * time.Millisecond}
	now := time.Now()
	for k := 1; k <= 6; k++ {
		lower := policy.BaseDelay * time.Duration(uint64(1)<<uint(k-1))
		upper := time.Duration(float64(lower) * 1.5)
		if upper > policy.MaxDelay {
			upper = policy.MaxDelay
		}
		if lower > policy.MaxDelay {
			lower = policy.MaxDelay
		}
		for i := 0; i < 20; i++ {
			d := computeBackoff(policy, k, "", now)
			if d < lower || d > upper {
				t.Errorf("k=%d: computeBackoff = %v, want in [%v, %v]", k, d, lower, upper)
			}
		}
	}
}

func TestExecuteCancelledContextSurfacesCancelledError(t *testing.T) {
	transport := &fakeTransport{script: []scriptedResponse{{status: 503, body: `{}`}}}
	exec := NewExecutor(&fakeProvider{token: "tok"}, transport, DefaultRetryPolicy(), "azsdk-test", "0.0.0", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := exec.Execute(ctx, newTestRequest(t), nil)
	var cancelled *apierrors.CancelledError
	if !errors.As(err, &cancelled) {
		t.Fatalf("error = %v (%T), want *apierrors.CancelledError", err, err)
	}
}

func TestAuthenticationFailurePreventsSend(t *testing.T) {
	transport := &fakeTransport{script: []scriptedResponse{{status: 200, body: `{}`}}}
	exec := NewExecutor(failingProvider{}, transport, DefaultRetryPolicy(), "azsdk-test", "0.0.0", nil)

	_, err := exec.Execute(context.Background(), newTestRequest(t), nil)
	var authErr *apierrors.AuthenticationFailedError
	if !errors.As(err, &authErr) {
		t.Fatalf("error = %v (%T), want *apierrors.AuthenticationFailedError", err, err)
	}
	if transport.callCount() != 0 {
		t.Errorf("callCount = %d, want 0 (request must not be sent)", transport.callCount())
	}
}

type failingProvider struct{}

func (failingProvider) Acquire(ctx context.Context) (string, error) {
	return "", errors.New("identity endpoint unreachable")
}
func (failingProvider) IsExpired() bool { return true }

var _ auth.Provider = failingProvider{}

func TestRecorderObservesRequests(t *testing.T) {
	var observed atomic.Int32
	recorder.Install(func(v interface{}) {
		if _, ok := v.(*Request); ok {
			observed.Add(1)
		}
	})
	t.Cleanup(recorder.Uninstall)

	transport := &fakeTransport{script: []scriptedResponse{{status: 200, body: `{}`}}}
	exec := NewExecutor(&fakeProvider{token: "tok"}, transport, DefaultRetryPolicy(), "azsdk-test", "0.0.0", nil)

	if _, err := exec.Execute(context.Background(), newTestRequest(t), nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := observed.Load(); got != 1 {
		t.Errorf("observed = %d, want 1", got)
	}
}

func TestClassifyStatusFallsBackToGenericMessage(t *testing.T) {
	err := classifyStatus(503, http.Header{}, []byte("not json"), 3)
	var svcErr *apierrors.ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("error = %v (%T)", err, err)
	}
	if diff := cmp.Diff("HTTP 503 (after 3 attempts)", svcErr.Error()); diff != "" {
		t.Errorf("Error() mismatch (-want +got):\n%s", diff)
	}
}

func TestRetryAfterHeaderPrecedesDefaultPolicyDelay(t *testing.T) {
	d := computeBackoff(DefaultRetryPolicy(), 1, strconv.Itoa(1), time.Now())
	if d != time.Second {
		t.Errorf("computeBackoff = %v, want 1s", d)
	}
}
