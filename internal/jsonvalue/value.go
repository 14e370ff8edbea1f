// Package jsonvalue provides a small combinator library for walking untyped
// JSON documents. Specification files arrive as uncontrolled third-party
// JSON, so the walker never assumes a fixed schema: every node is one of the
// tagged kinds below.
package jsonvalue

import (
	"encoding/json"
	"strconv"
)

// Kind tags the shape of a decoded JSON node.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Decode parses raw JSON bytes into the untyped document shape used
// throughout this package: map[string]interface{}, []interface{}, string,
// float64, bool, or nil, exactly as encoding/json's default unmarshaling into
// interface{} produces.
func Decode(raw []byte) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// KindOf reports the tagged kind of a decoded node.
func KindOf(node interface{}) Kind {
	switch node.(type) {
	case nil:
		return KindNull
	case bool:
		return KindBool
	case float64:
		return KindNumber
	case string:
		return KindString
	case []interface{}:
		return KindArray
	case map[string]interface{}:
		return KindObject
	default:
		return KindNull
	}
}

// Field descends into an object node by key. Returns (nil, false) when node
// is not an object or the key is absent.
func Field(node interface{}, key string) (interface{}, bool) {
	obj, ok := node.(map[string]interface{})
	if !ok {
		return nil, false
	}
	v, ok := obj[key]
	return v, ok
}

// Index descends into an array node by position.
func Index(node interface{}, i int) (interface{}, bool) {
	arr, ok := node.([]interface{})
	if !ok || i < 0 || i >= len(arr) {
		return nil, false
	}
	return arr[i], true
}

// String type-asserts a string node, returning "" when node is not a string.
func String(node interface{}) (string, bool) {
	s, ok := node.(string)
	return s, ok
}

// Bool type-asserts a bool node.
func Bool(node interface{}) (bool, bool) {
	b, ok := node.(bool)
	return b, ok
}

// Keys returns the keys of an object node in unspecified order, or nil.
func Keys(node interface{}) []string {
	obj, ok := node.(map[string]interface{})
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	return keys
}

// WalkPointer resolves a slash-separated sequence of tokens (as produced by
// splitting an internal JSON pointer "#/a/b/c" on "/") against root. This is
// the internal-pointer variant of spec.B: source inputs never embed "/" or
// "~" in keys, so no JSON Pointer escape decoding is performed.
func WalkPointer(root interface{}, tokens []string) (interface{}, bool) {
	cur := root
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		switch KindOf(cur) {
		case KindObject:
			next, ok := Field(cur, tok)
			if !ok {
				return nil, false
			}
			cur = next
		case KindArray:
			i, err := strconv.Atoi(tok)
			if err != nil {
				return nil, false
			}
			next, ok := Index(cur, i)
			if !ok {
				return nil, false
			}
			cur = next
		default:
			return nil, false
		}
	}
	return cur, true
}
