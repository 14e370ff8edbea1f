// Package ref implements ReferenceResolver: resolution of JSON Pointer
// references, including those that cross file boundaries, against a cached
// set of loaded specification documents.
package ref

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-openapi/jsonreference"
	"github.com/go-openapi/swag/loading"
	"go.uber.org/zap"

	"github.com/nimrody/azure-simple-sdk/internal/jsonvalue"
)

// Resolver resolves $ref strings against a root document, loading and
// caching external files as needed. It is safe for concurrent use: the file
// cache supports computeIfAbsent-style insertion (spec.md §4.B/§5).
type Resolver struct {
	log   *zap.Logger
	mu    sync.RWMutex
	cache map[string]interface{} // canonical path -> parsed document, nil = known-missing
}

// New returns a Resolver with an empty file cache.
func New(log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{log: log, cache: make(map[string]interface{})}
}

// Resolve yields the node referenced by refString within rootDocument (for
// internal pointers) or within a file loaded relative to basePath's parent
// directory (for external references). It returns a nil node, rather than an
// error, for any of: an unsupported reference shape, a missing external
// file, or a pointer that does not resolve — each case is logged as a
// diagnostic, per spec.md §4.B.
func (r *Resolver) Resolve(refString string, rootDocument interface{}, basePath string) interface{} {
	parsed, err := jsonreference.New(refString)
	if err != nil {
		r.log.Warn("unsupported reference syntax", zap.String("ref", refString), zap.Error(err))
		return nil
	}

	if parsed.HasFullURL {
		r.log.Warn("unsupported reference form: absolute URL", zap.String("ref", refString))
		return nil
	}

	u := parsed.GetURL()
	tokens := splitFragment(u.Fragment)

	if u.Path == "" {
		node, ok := jsonvalue.WalkPointer(rootDocument, tokens)
		if !ok {
			r.log.Warn("internal pointer did not resolve", zap.String("ref", refString))
			return nil
		}
		return node
	}

	target := resolveRelative(basePath, u.Path)
	doc, ok := r.loadCached(target)
	if !ok {
		r.log.Warn("external reference file not found", zap.String("ref", refString), zap.String("resolved", target))
		return nil
	}

	node, ok := jsonvalue.WalkPointer(doc, tokens)
	if !ok {
		r.log.Warn("external pointer did not resolve", zap.String("ref", refString), zap.String("file", target))
		return nil
	}
	return node
}

// loadCached implements the external-file cache with computeIfAbsent
// semantics: concurrent callers requesting the same path load it at most
// once; a missing file is negatively cached as nil.
func (r *Resolver) loadCached(canonicalPath string) (interface{}, bool) {
	r.mu.RLock()
	if doc, ok := r.cache[canonicalPath]; ok {
		r.mu.RUnlock()
		return doc, doc != nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if doc, ok := r.cache[canonicalPath]; ok {
		return doc, doc != nil
	}

	raw, err := loading.LoadFromFileOrHTTP(canonicalPath)
	if err != nil {
		r.cache[canonicalPath] = nil
		return nil, false
	}
	doc, err := jsonvalue.Decode(raw)
	if err != nil {
		r.cache[canonicalPath] = nil
		return nil, false
	}
	r.cache[canonicalPath] = doc
	return doc, true
}

// Clear empties the file cache, for long-running generator processes that
// want to force a reload of specification files.
func (r *Resolver) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]interface{})
}

// CacheSize reports the number of distinct external files currently cached
// (including negatively-cached misses).
func (r *Resolver) CacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}

func splitFragment(fragment string) []string {
	fragment = strings.TrimPrefix(fragment, "/")
	if fragment == "" {
		return nil
	}
	return strings.Split(fragment, "/")
}

func resolveRelative(basePath, relPath string) string {
	dir := filepath.Dir(basePath)
	joined := filepath.Join(dir, relPath)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return filepath.Clean(joined)
	}
	return abs
}
