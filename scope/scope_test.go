package scope

import (
	"errors"
	"sync/atomic"
	"testing"

	"go.uber.org/goleak"

	"github.com/NetPo4ki/go-workpool/ambient"
	"github.com/NetPo4ki/go-workpool/pool"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestActivateReturnsAfterAllJobs(t *testing.T) {
	t.Parallel()
	p := pool.New(4)
	defer p.Close()

	const n = 100
	var done atomic.Int32
	err := Run(p, func(s *Scope) error {
		for range n {
			s.Spawn(func() error {
				done.Add(1)
				return nil
			})
		}
		done.Add(1) // the initial job itself
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := done.Load(); got != n+1 {
		t.Fatalf("expected %d completions, got %d", n+1, got)
	}
}

func TestTransitiveSpawnsAreWaitedFor(t *testing.T) {
	t.Parallel()
	p := pool.New(4)
	defer p.Close()

	var done atomic.Int32
	err := Run(p, func(s *Scope) error {
		for range 10 {
			s.Spawn(func() error {
				// Children spawned from inside a running job must also
				// hold Activate open.
				for range 5 {
					s.Spawn(func() error {
						done.Add(1)
						return nil
					})
				}
				done.Add(1)
				return nil
			})
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := done.Load(); got != 10*6 {
		t.Fatalf("expected %d completions, got %d", 10*6, got)
	}
}

func TestSingleFailurePropagates(t *testing.T) {
	t.Parallel()
	p := pool.New(4)
	defer p.Close()

	boom := errors.New("boom")
	var succeeded atomic.Int32
	err := Run(p, func(s *Scope) error {
		for i := range 20 {
			s.Spawn(func() error {
				if i == 7 {
					return boom
				}
				succeeded.Add(1)
				return nil
			})
		}
		return nil
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got := succeeded.Load(); got != 19 {
		t.Fatalf("sibling side effects lost: %d of 19", got)
	}
}

func TestPanicCapturedAsPanicError(t *testing.T) {
	t.Parallel()
	p := pool.New(2)
	defer p.Close()

	err := Run(p, func(s *Scope) error {
		s.Spawn(func() error { panic("panic-value") })
		return nil
	})
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *PanicError, got %v", err)
	}
	if pe.Value != "panic-value" {
		t.Fatalf("wrong panic value: %v", pe.Value)
	}
	if pe.Stack == "" {
		t.Fatal("expected captured stack")
	}
}

func TestConcurrentFailuresSurfaceExactlyOne(t *testing.T) {
	t.Parallel()
	p := pool.New(4)
	defer p.Close()

	errs := make([]error, 10)
	for i := range errs {
		errs[i] = errors.New("job failed")
	}
	err := Run(p, func(s *Scope) error {
		for _, e := range errs {
			s.Spawn(func() error { return e })
		}
		return nil
	})
	if err == nil {
		t.Fatal("expected one recorded failure, got none")
	}
	found := false
	for _, e := range errs {
		if err == e {
			found = true
		}
	}
	if !found {
		t.Fatalf("returned error is not one of the jobs' errors: %v", err)
	}
}

func TestSpawnOnIdleScopePanics(t *testing.T) {
	t.Parallel()
	p := pool.New(1)
	defer p.Close()

	var s Scope
	expectPanic := func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected contract-violation panic")
			}
		}()
		s.Spawn(func() error { return nil })
	}
	// Never activated.
	expectPanic()

	// Activated and fully drained.
	if err := s.Activate(p, func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expectPanic()
}

func TestActivateWhileActivePanics(t *testing.T) {
	t.Parallel()
	p := pool.New(1)
	defer p.Close()

	var s Scope
	// The nested Activate panics; the initial job's failure isolation
	// converts that into the scope's recorded failure.
	err := s.Activate(p, func() error {
		return s.Activate(p, func() error { return nil })
	})
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected contract violation surfaced as *PanicError, got %v", err)
	}
}

func TestScopeReuse(t *testing.T) {
	t.Parallel()
	p := pool.New(2)
	defer p.Close()

	var s Scope
	for cycle := range 3 {
		var done atomic.Int32
		err := s.Activate(p, func() error {
			for range 5 {
				s.Spawn(func() error {
					done.Add(1)
					return nil
				})
			}
			return nil
		})
		if err != nil {
			t.Fatalf("cycle %d: unexpected error: %v", cycle, err)
		}
		if got := done.Load(); got != 5 {
			t.Fatalf("cycle %d: expected 5 completions, got %d", cycle, got)
		}
	}
}

func TestAmbientCapturedAndRestored(t *testing.T) {
	// Not parallel: this test manipulates the test goroutine's ambient
	// context.
	p := pool.New(1)
	defer p.Close()

	// Give the single worker an ambient value of its own.
	var setupDone atomic.Bool
	p.InjectOrPush(func() {
		ambient.Set(7)
		setupDone.Store(true)
	})
	p.BlockUntil(func() bool { return setupDone.Load() })

	ambient.Set(42)
	defer ambient.Set(0)

	var observed atomic.Uint64
	err := Run(p, func(s *Scope) error {
		s.Spawn(func() error {
			// The job carries the spawning scope's context, not the
			// executing worker's.
			observed.Store(uint64(ambient.Get()))
			return nil
		})
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := observed.Load(); got != 42 {
		t.Fatalf("job observed context %d, want 42", got)
	}
	if got := ambient.Get(); got != 42 {
		t.Fatalf("caller context not restored: got %d, want 42", got)
	}

	// The worker's own context must be back to what it held before
	// running the scope's job.
	var workerCtx atomic.Uint64
	var readDone atomic.Bool
	p.InjectOrPush(func() {
		workerCtx.Store(uint64(ambient.Get()))
		ambient.Set(0)
		readDone.Store(true)
	})
	p.BlockUntil(func() bool { return readDone.Load() })
	if got := workerCtx.Load(); got != 7 {
		t.Fatalf("worker context not restored after job: got %d, want 7", got)
	}
}

func TestNestedScopeOnWorkerUsesCurrentPool(t *testing.T) {
	t.Parallel()
	p := pool.New(2)
	defer p.Close()

	var done atomic.Int32
	err := Run(p, func(s *Scope) error {
		s.Spawn(func() error {
			// Inner scope constructed without an explicit pool; the
			// executing worker's pool is used and the worker helps run
			// jobs while blocked.
			return Run(nil, func(inner *Scope) error {
				for range 10 {
					inner.Spawn(func() error {
						done.Add(1)
						return nil
					})
				}
				return nil
			})
		})
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := done.Load(); got != 10 {
		t.Fatalf("expected 10 nested completions, got %d", got)
	}
}

func TestActivateNilPoolFromNonWorkerPanics(t *testing.T) {
	t.Parallel()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when no pool can be derived")
		}
	}()
	var s Scope
	_ = s.Activate(nil, func() error { return nil })
}

func TestDoReturnsClosureResult(t *testing.T) {
	t.Parallel()
	p := pool.New(2)
	defer p.Close()

	var sum atomic.Int64
	got, err := Do(p, func(s *Scope) (string, error) {
		for i := 1; i <= 10; i++ {
			s.Spawn(func() error {
				sum.Add(int64(i))
				return nil
			})
		}
		return "result", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "result" {
		t.Fatalf("expected closure result back, got %q", got)
	}
	if sum.Load() != 55 {
		t.Fatalf("expected sum 55, got %d", sum.Load())
	}
}

func TestInitialClosureFailureWins(t *testing.T) {
	t.Parallel()
	p := pool.New(2)
	defer p.Close()

	boom := errors.New("initial failed")
	err := Run(p, func(s *Scope) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected initial closure's failure, got %v", err)
	}
}
