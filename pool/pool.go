package pool

import (
	"sync"
	"time"
)

// Option configures a Pool at construction time.
type Option func(*Options)

// Options holds pool construction settings.
type Options struct {
	Observer Observer
}

func defaultOptions() Options { return Options{} }

// WithObserver attaches an observer receiving job and scope lifecycle
// hooks. The observer must be safe for concurrent use.
func WithObserver(obs Observer) Option { return func(o *Options) { o.Observer = obs } }

// Pool is a fixed set of worker goroutines executing jobs from a shared
// FIFO queue. The worker count never changes after New.
//
// Jobs handed to the pool must contain their own failure isolation; a
// job that panics is contained by the executing worker and reported
// only through the observer.
type Pool struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool

	size int
	wg   sync.WaitGroup

	opts Options
	obs  Observer
}

// New starts a pool of n workers. Panics if n <= 0.
func New(n int, optFns ...Option) *Pool {
	if n <= 0 {
		panic("pool: worker count must be positive")
	}
	p := &Pool{size: n, opts: defaultOptions()}
	p.cond = sync.NewCond(&p.mu)
	for _, fn := range optFns {
		fn(&p.opts)
	}
	p.obs = p.opts.Observer
	p.wg.Add(n)
	for i := range n {
		go p.worker(i)
	}
	return p
}

// Size returns the fixed worker count.
func (p *Pool) Size() int { return p.size }

// Observer returns the observer attached at construction, or nil.
func (p *Pool) Observer() Observer { return p.obs }

// InjectOrPush hands a job to the pool for eventual execution on some
// worker. It is safe to call from any goroutine, including goroutines
// that are not workers of any pool. Injecting into a closed pool is a
// contract violation and panics.
func (p *Pool) InjectOrPush(job func()) {
	if job == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		panic("pool: inject on closed pool")
	}
	p.queue = append(p.queue, job)
	p.mu.Unlock()
	// A blocked prober may be the only goroutine able to run this job,
	// so every waiter has to take a look.
	p.cond.Broadcast()
	if p.obs != nil {
		p.obs.JobInjected()
	}
}

// BlockUntil parks the calling goroutine until probe returns true. A
// worker of this pool is kept busy executing queued jobs while it
// waits; any other goroutine sleeps on the pool's condition variable
// and is re-woken whenever the pool's state changes.
//
// The probe is invoked with the pool's lock held and must not call back
// into the pool.
func (p *Pool) BlockUntil(probe func() bool) {
	w, ok := CurrentWorker()
	help := ok && w.pool == p
	p.mu.Lock()
	for !probe() {
		if help {
			if job, ok := p.pop(); ok {
				p.mu.Unlock()
				p.runJob(job)
				p.mu.Lock()
				continue
			}
		}
		p.cond.Wait()
	}
	p.mu.Unlock()
}

// Close stops the workers once the queue has drained and waits for them
// to exit. It must not be called while any goroutine is still blocked
// in BlockUntil. Close is idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	p.wg.Wait()
}

// pop removes the oldest queued job. Caller holds p.mu.
func (p *Pool) pop() (func(), bool) {
	if len(p.queue) == 0 {
		return nil, false
	}
	job := p.queue[0]
	p.queue[0] = nil
	p.queue = p.queue[1:]
	return job, true
}

// runJob executes one job outside the pool lock and wakes every waiter
// afterwards, since a finished job can flip a probe some goroutine is
// blocked on.
func (p *Pool) runJob(job func()) {
	var start time.Time
	if p.obs != nil {
		start = time.Now()
		p.obs.JobStarted()
	}
	panicked := invoke(job)
	if p.obs != nil {
		p.obs.JobFinished(time.Since(start), panicked)
	}
	// The job may have flipped a probe whose state lives outside the
	// pool lock. Any waiter that evaluated that probe before the flip
	// held the lock until it registered with the condvar, so waking
	// under the lock guarantees the wakeup is not lost.
	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
}

func invoke(job func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
		}
	}()
	job()
	return false
}
