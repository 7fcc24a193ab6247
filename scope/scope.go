package scope

import (
	"sync"
	"time"

	"github.com/NetPo4ki/go-workpool/ambient"
	"github.com/NetPo4ki/go-workpool/pool"
)

// active holds the state of one activation cycle. It exists only while
// the scope is activated.
type active struct {
	pool *pool.Pool

	// activeJobs counts the not-yet-completed jobs of this cycle,
	// including Activate's initial job.
	activeJobs int

	// terminated latches when activeJobs drains to zero; Spawn is a
	// contract violation from then on.
	terminated bool

	// failure is the recorded job failure. Concurrent failures race and
	// exactly one survives.
	failure error

	// ctx is the ambient context snapshotted at activation. Every job
	// spawned into the scope carries this value, not the context of the
	// goroutine that happened to call Spawn.
	ctx ambient.Value
}

// Scope is a fan-out/fan-in unit over a worker pool. The zero Scope is
// ready to use, and a Scope may be activated again once a previous
// activation has returned. All methods are safe to call from any
// goroutine, workers or not.
type Scope struct {
	mu   sync.Mutex
	data *active
}

// Run activates a fresh scope on p and hands it to f.
func Run(p *pool.Pool, f func(s *Scope) error) error {
	var s Scope
	return s.Activate(p, func() error { return f(&s) })
}

// Do activates a fresh scope on p and returns f's result alongside the
// scope's recorded failure.
func Do[R any](p *pool.Pool, f func(s *Scope) (R, error)) (R, error) {
	var (
		s   Scope
		out R
	)
	err := s.Activate(p, func() error {
		var err error
		out, err = f(&s)
		return err
	})
	return out, err
}

// Activate runs f as the scope's initial job, then blocks until every
// job spawned into the scope, directly or transitively, has completed.
// While blocked, a caller that is a worker of p executes other available
// jobs; its ambient context is restored before Activate returns.
//
// A failure in any job, f included, is recorded rather than propagated
// at the point of failure; Activate returns one recorded failure after
// all jobs have drained, or nil. Panics inside jobs come back as
// *PanicError. Activating an already-activated scope is a contract
// violation and panics.
//
// If p is nil the calling worker's own pool is used.
func (s *Scope) Activate(p *pool.Pool, f func() error) error {
	if p == nil {
		cur, ok := pool.Current()
		if !ok {
			panic("scope: no pool given and caller is not a pool worker")
		}
		p = cur
	}

	ctx := ambient.Get()
	s.mu.Lock()
	if s.data != nil {
		s.mu.Unlock()
		panic("scope: already activated")
	}
	s.data = &active{pool: p, activeJobs: 1, ctx: ctx}
	s.mu.Unlock()

	obs := p.Observer()
	if obs != nil {
		obs.ScopeActivated()
	}

	s.execute(f)

	var waitStart time.Time
	if obs != nil {
		waitStart = time.Now()
	}
	p.BlockUntil(s.settled)
	if obs != nil {
		obs.ScopeSettled(time.Since(waitStart))
	}

	// Jobs executed while blocked may have overwritten the caller's
	// context.
	ambient.Set(ctx)

	s.mu.Lock()
	failure := s.data.failure
	s.data = nil
	s.mu.Unlock()
	return failure
}

// Spawn hands g to the pool as a job of this scope. The job carries the
// scope's captured ambient context and restores the executing worker's
// own context afterwards. Spawn always goes through the pool's
// injection path, since the caller need not be a worker of that pool.
//
// Spawning into a scope that is not activated, or whose job count has
// already drained to zero, is a contract violation and panics.
func (s *Scope) Spawn(g func() error) {
	s.mu.Lock()
	d := s.data
	if d == nil {
		s.mu.Unlock()
		panic("scope: not activated")
	}
	if d.terminated {
		s.mu.Unlock()
		panic("scope: already terminated")
	}
	d.activeJobs++
	ctx := d.ctx
	p := d.pool
	s.mu.Unlock()

	p.InjectOrPush(func() {
		ambient.With(ctx, func() {
			s.execute(g)
		})
	})
}

// execute runs one job under failure isolation and performs the
// completion bookkeeping shared by the initial job and every spawned
// job.
func (s *Scope) execute(f func() error) {
	err := run(f)
	s.mu.Lock()
	d := s.data
	d.activeJobs--
	if d.activeJobs == 0 {
		d.terminated = true
	}
	if err != nil {
		d.failure = err
	}
	s.mu.Unlock()
}

// settled is the probe Activate blocks on.
func (s *Scope) settled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.activeJobs == 0
}

// run invokes f, converting a panic into a *PanicError.
func run(f func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = capturePanic(r)
		}
	}()
	return f()
}
