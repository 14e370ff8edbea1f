package auth

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func countingFetch(calls *int32, token string, ttl time.Duration) exchange {
	return func(ctx context.Context) (Token, error) {
		atomic.AddInt32(calls, 1)
		return Token{AccessToken: token, ExpiresAt: time.Now().Add(ttl)}, nil
	}
}

func TestAcquireSingleFlightUnderConcurrency(t *testing.T) {
	var calls int32
	p := newBaseProvider(countingFetch(&calls, "tok-1", time.Hour))

	const n = 50
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := p.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
			}
			results[i] = tok
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		if r != "tok-1" {
			t.Errorf("Acquire() = %q, want tok-1", r)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fetch called %d times, want exactly 1", got)
	}
}

func TestAcquireRefreshesAfterExpiry(t *testing.T) {
	var calls int32
	var mu sync.Mutex
	tokenNum := 0

	fetch := func(ctx context.Context) (Token, error) {
		mu.Lock()
		tokenNum++
		n := tokenNum
		mu.Unlock()
		atomic.AddInt32(&calls, 1)
		return Token{AccessToken: fmt.Sprintf("tok-%d", n), ExpiresAt: time.Now().Add(6 * time.Minute)}, nil
	}
	p := newBaseProvider(fetch)

	first, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// Force expiry without sleeping: the token is valid for 6 minutes with a
	// 5-minute buffer, so back-date it past the buffer directly.
	p.mu.Lock()
	p.token.ExpiresAt = time.Now().Add(-time.Minute)
	p.mu.Unlock()

	second, err := p.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if first == second {
		t.Errorf("expected distinct tokens across expiry, got %q twice", first)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("fetch called %d times, want exactly 2", got)
	}
}

func TestAcquireFailedRefreshKeepsPreviousToken(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context) (Token, error) {
		calls++
		if calls == 1 {
			return Token{AccessToken: "tok-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
		}
		return Token{}, fmt.Errorf("token endpoint returned 500")
	}
	p := newBaseProvider(fetch)

	if _, err := p.Acquire(context.Background()); err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}

	p.mu.Lock()
	p.token.ExpiresAt = time.Now().Add(-time.Minute)
	cached := p.token
	p.mu.Unlock()

	if _, err := p.Acquire(context.Background()); err == nil {
		t.Fatalf("second Acquire() expected AuthenticationFailed, got nil")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token.AccessToken != cached.AccessToken {
		t.Errorf("cached token changed after failed refresh: got %q, want %q", p.token.AccessToken, cached.AccessToken)
	}
}
