package client

import (
	"net/http"

	"github.com/nimrody/azure-simple-sdk/pkg/apierrors"
	"github.com/nimrody/azure-simple-sdk/pkg/auth"
)

// Transport is the dependency-injected seam between the executor and the
// wire (spec.md §9's design note: "the transport should be an injectable
// interface so tests can substitute a fake"). Any *http.Client's Transport,
// including http.DefaultTransport, satisfies it as-is.
type Transport interface {
	RoundTrip(req *http.Request) (*http.Response, error)
}

// authTransport injects a bearer token into every request, adapted from the
// teacher's tokenTransport (internal/clients/azure/transport.go): same
// clone-then-set-header shape, generalized from a single kubelogin token
// source to this package's Provider interface and wrapped error taxonomy.
type authTransport struct {
	provider auth.Provider
	base     Transport
}

func newAuthTransport(provider auth.Provider, base Transport) *authTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &authTransport{provider: provider, base: base}
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	reqBodyClosed := false
	if req.Body != nil {
		defer func() {
			if !reqBodyClosed {
				req.Body.Close() //nolint:errcheck
			}
		}()
	}

	tok, err := t.provider.Acquire(req.Context())
	if err != nil {
		// Wrap unconditionally, even when err is already an
		// *apierrors.AuthenticationFailedError (e.g. from pkg/auth's own
		// Provider implementations): callers of RoundTrip must be able to
		// rely on getting this concrete type back, regardless of what a
		// third-party Provider implementation chooses to return.
		return nil, &apierrors.AuthenticationFailedError{Message: errAcquireToken, Cause: err}
	}

	req2 := cloneRequest(req) // per RoundTripper contract
	req2.Header.Set("Authorization", "Bearer "+tok)

	reqBodyClosed = true
	return t.base.RoundTrip(req2)
}

const errAcquireToken = "cannot acquire bearer token"

// cloneRequest returns a clone of the provided *http.Request: a shallow
// copy of the struct with a deep copy of its Header map.
func cloneRequest(r *http.Request) *http.Request {
	r2 := new(http.Request)
	*r2 = *r
	r2.Header = make(http.Header, len(r.Header))
	for k, s := range r.Header {
		r2.Header[k] = append([]string(nil), s...)
	}
	return r2
}
