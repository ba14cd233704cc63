// Package watch implements the reconciliation engine and stable handles for
// live selector watches over a mutable dom tree. The engine re-evaluates a
// query on demand, diffs the result against the previous generation by key,
// drives per-key lifecycle callbacks, and emits add/remove/change/iteration
// events. Stable handles give callers a reference to a matched node that
// survives the node being replaced between generations.
package watch

import "reflect"

// KeyFunc derives the identity key used to correlate a target across
// generations. The default is the target itself.
type KeyFunc func(value any) any

// EqualFunc compares two keys or two values.
type EqualFunc func(a, b any) bool

// IdentityKey is the default key mapper.
func IdentityKey(v any) any { return v }

// StrictEqual is the default comparer: Go equality, guarded so that
// incomparable dynamic types (slices, maps, funcs) compare unequal instead
// of panicking.
func StrictEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
