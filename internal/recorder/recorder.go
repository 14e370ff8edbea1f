// Package recorder is a process-wide hook the executor calls on every
// outgoing request, letting tests and callers observe traffic without
// threading an extra parameter through every Execute call (SPEC_FULL.md
// §6). It is intentionally untyped (interface{} in, interface{} out of the
// caller's perspective) so that pkg/client, which is the only package that
// has a concrete request type, can depend on recorder without recorder
// depending back on pkg/client.
package recorder

import "sync/atomic"

type observerFunc func(req interface{})

var current atomic.Value // observerFunc

// Install registers fn to be called with every request the executor builds,
// before it is sent. Only one observer may be installed at a time; a second
// Install replaces the first.
func Install(fn func(req interface{})) {
	current.Store(observerFunc(fn))
}

// Uninstall removes any registered observer. Safe to call when none is
// installed.
func Uninstall() {
	current.Store(observerFunc(nil))
}

// Observe calls the installed observer, if any, with req. It is a no-op
// when no observer is installed.
func Observe(req interface{}) {
	fn, ok := current.Load().(observerFunc)
	if !ok || fn == nil {
		return
	}
	fn(req)
}
