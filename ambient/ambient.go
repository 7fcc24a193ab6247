// Package ambient provides a per-goroutine context value. The value is
// purely goroutine-local; it survives task migration across a pool only
// because jobs capture it at creation time and restore it around
// execution, there is no cross-goroutine mechanism here.
package ambient

import (
	"sync"

	"github.com/petermattis/goid"
)

// Value is an opaque context token. The zero Value means "no context".
type Value uint64

// cells holds the non-zero context value of each goroutine, keyed by
// goroutine id. Entries for the zero value are deleted so the map never
// outgrows the set of goroutines that actually carry a context.
var cells sync.Map // int64 -> Value

// Get returns the calling goroutine's current context value.
func Get() Value {
	v, ok := cells.Load(goid.Get())
	if !ok {
		return 0
	}
	return v.(Value)
}

// Set overwrites the calling goroutine's context value. It has no
// effect on any other goroutine.
func Set(v Value) {
	id := goid.Get()
	if v == 0 {
		cells.Delete(id)
		return
	}
	cells.Store(id, v)
}

// With sets v for the duration of f and restores the previous value on
// every exit path, including a panic in f.
func With(v Value, f func()) {
	prev := Get()
	Set(v)
	defer Set(prev)
	f()
}
