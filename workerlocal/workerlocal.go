// Package workerlocal provides per-worker storage bound to one pool.
// Each worker of the pool gets a private, cache-line-isolated slot that
// only that worker's goroutine may touch; safety comes from a runtime
// identity check on every access, not from locking.
package workerlocal

import (
	"golang.org/x/sys/cpu"

	"github.com/NetPo4ki/go-workpool/pool"
)

// slot pads each value out to its own cache line so adjacent workers'
// slots never share one. The padding is pure performance isolation;
// there is no logical contention between slots.
type slot[T any] struct {
	value T
	_     cpu.CacheLinePad
}

// Local holds one value of type T per worker of a fixed pool.
type Local[T any] struct {
	slots []slot[T]
	pool  *pool.Pool
}

// New builds a Local over p with one value per worker index, each
// produced independently by init. If p is nil the calling worker's own
// pool is used.
func New[T any](p *pool.Pool, init func(index int) T) *Local[T] {
	if p == nil {
		cur, ok := pool.Current()
		if !ok {
			panic("workerlocal: no pool given and caller is not a pool worker")
		}
		p = cur
	}
	slots := make([]slot[T], p.Size())
	for i := range slots {
		slots[i].value = init(i)
	}
	return &Local[T]{slots: slots, pool: p}
}

// Current returns the slot belonging to the calling worker goroutine.
// Calling it from a goroutine that is not a worker of the originating
// pool is a contract violation and panics.
func (l *Local[T]) Current() *T {
	w, ok := pool.CurrentWorker()
	if !ok || w.Pool() != l.pool {
		panic("workerlocal: access from outside the originating pool")
	}
	return &l.slots[w.Index()].value
}

// IntoInner consumes the Local, returning all per-worker values in
// worker index order. It must only be called once every worker has
// stopped contributing, and the Local must not be used afterwards.
func (l *Local[T]) IntoInner() []T {
	out := make([]T, len(l.slots))
	for i := range l.slots {
		out[i] = l.slots[i].value
	}
	l.slots = nil
	return out
}

// Join consumes a Local of slices, concatenating all per-worker slices
// into one while preserving worker index order.
func Join[T any](l *Local[[]T]) []T {
	var out []T
	for _, part := range l.IntoInner() {
		out = append(out, part...)
	}
	return out
}
