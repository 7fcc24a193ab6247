// Package errgroup provides an adapter that mimics
// golang.org/x/sync/errgroup semantics over a scope and its pool. It
// enables incremental migration of errgroup call sites onto pool-backed
// execution without changing their shape.
package errgroup

import (
	"sync"

	"github.com/NetPo4ki/go-workpool/pool"
	"github.com/NetPo4ki/go-workpool/scope"
)

// Group is an errgroup-like wrapper whose tasks run as jobs of one
// scope activation against a pool.
type Group struct {
	s       scope.Scope
	release chan struct{}
	done    chan error

	once sync.Once
	err  error
}

// WithPool creates a Group whose tasks execute on p's workers. Wait
// must eventually be called to release the underlying scope.
func WithPool(p *pool.Pool) *Group {
	g := &Group{
		release: make(chan struct{}),
		done:    make(chan error, 1),
	}
	ready := make(chan struct{})
	go func() {
		g.done <- g.s.Activate(p, func() error {
			// Hold the initial job open until Wait, so tasks started
			// via Go join an already-active scope.
			close(ready)
			<-g.release
			return nil
		})
	}()
	<-ready
	return g
}

// Go starts f as a job of the group. It must not be called after Wait.
func (g *Group) Go(f func() error) {
	if f == nil {
		return
	}
	g.s.Spawn(f)
}

// Wait blocks until all started tasks have completed and returns the
// failure recorded by the scope, or nil. Subsequent calls return the
// same result.
func (g *Group) Wait() error {
	g.once.Do(func() {
		close(g.release)
		g.err = <-g.done
	})
	return g.err
}
