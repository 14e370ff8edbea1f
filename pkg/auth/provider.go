package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nimrody/azure-simple-sdk/pkg/apierrors"
)

// Provider is the capability interface the HttpExecutor depends on. The
// open set of credential kinds (spec.md §9: "future identity sources")
// favors an interface over a closed variant type; two implementations are
// provided in this package (OAuth2Provider and IMDSProvider).
type Provider interface {
	// Acquire returns a currently-valid access token, refreshing if needed.
	Acquire(ctx context.Context) (string, error)
	// IsExpired reports whether the currently cached token (if any) would
	// be refreshed on the next Acquire call.
	IsExpired() bool
}

// exchange is the function a concrete Provider supplies to perform the
// actual network token exchange.
type exchange func(ctx context.Context) (Token, error)

// baseProvider implements the single-flight caching discipline common to
// both variants (spec.md §4.D/§5): a single mutex-guarded Token, refreshed
// through a singleflight.Group so at most one exchange is in flight at a
// time and concurrent callers observe its result.
type baseProvider struct {
	mu    sync.Mutex
	token Token
	group singleflight.Group
	fetch exchange
}

func newBaseProvider(fetch exchange) *baseProvider {
	return &baseProvider{fetch: fetch}
}

func (p *baseProvider) Acquire(ctx context.Context) (string, error) {
	p.mu.Lock()
	current := p.token
	p.mu.Unlock()

	if !current.Expired(time.Now()) {
		return current.AccessToken, nil
	}

	v, err, _ := p.group.Do("refresh", func() (interface{}, error) {
		// Re-check under the group: another goroutine may have already
		// refreshed while we were waiting to enter Do.
		p.mu.Lock()
		cur := p.token
		p.mu.Unlock()
		if !cur.Expired(time.Now()) {
			return cur, nil
		}

		tok, err := p.fetch(ctx)
		if err != nil {
			// On refresh failure the previous cached token is left
			// unchanged (spec.md §4.D(d)).
			return nil, err
		}

		p.mu.Lock()
		p.token = tok
		p.mu.Unlock()
		return tok, nil
	})
	if err != nil {
		return "", apierrors.AuthenticationFailed("token refresh failed", err)
	}

	return v.(Token).AccessToken, nil
}

func (p *baseProvider) IsExpired() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token.Expired(time.Now())
}
