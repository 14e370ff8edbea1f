package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

// ProviderRegistry memoizes Provider instances by a hash of their credential
// material, so a process acquiring tokens for many tenants or client ids
// does not construct a new single-flight group per call. It is additive
// convenience (SPEC_FULL.md §6), adapted from the teacher's
// ReuseSourceStore (internal/clients/token/store.go), which does the same
// for golang.org/x/oauth2.TokenSource values keyed by refresh token.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewProviderRegistry returns an empty ProviderRegistry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]Provider)}
}

// LoadOrStore returns the Provider cached under a hash of key, constructing
// it via build on first use.
func (r *ProviderRegistry) LoadOrStore(key string, build func() Provider) Provider {
	hashed := hashKey(key)

	r.mu.RLock()
	p, ok := r.providers[hashed]
	r.mu.RUnlock()
	if ok {
		return p
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.providers[hashed]; ok {
		return p
	}
	p = build()
	r.providers[hashed] = p
	return p
}

func hashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}
