package pool

import (
	"sync"

	"github.com/petermattis/goid"
)

// Worker identifies one worker goroutine of a Pool.
type Worker struct {
	pool  *Pool
	index int
}

// Pool returns the pool this worker belongs to.
func (w *Worker) Pool() *Pool { return w.pool }

// Index returns the worker's slot index, in [0, Pool.Size()).
func (w *Worker) Index() int { return w.index }

// registry maps goroutine ids of live workers to their identity. Go has
// no thread-local storage, so identity is keyed by goroutine id.
var registry sync.Map // int64 -> *Worker

// CurrentWorker reports whether the calling goroutine is a pool worker,
// and if so, which one.
func CurrentWorker() (*Worker, bool) {
	v, ok := registry.Load(goid.Get())
	if !ok {
		return nil, false
	}
	return v.(*Worker), true
}

// Current returns the pool the calling goroutine is a worker of.
func Current() (*Pool, bool) {
	w, ok := CurrentWorker()
	if !ok {
		return nil, false
	}
	return w.pool, true
}

func (p *Pool) worker(index int) {
	defer p.wg.Done()
	id := goid.Get()
	registry.Store(id, &Worker{pool: p, index: index})
	defer registry.Delete(id)

	p.mu.Lock()
	for {
		if job, ok := p.pop(); ok {
			p.mu.Unlock()
			p.runJob(job)
			p.mu.Lock()
			continue
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		p.cond.Wait()
	}
}
