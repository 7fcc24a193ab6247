package ambient

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDefaultIsZero(t *testing.T) {
	if got := Get(); got != 0 {
		t.Fatalf("expected zero default, got %d", got)
	}
}

func TestSetGet(t *testing.T) {
	Set(42)
	defer Set(0)
	if got := Get(); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	Set(7)
	if got := Get(); got != 7 {
		t.Fatalf("expected 7 after overwrite, got %d", got)
	}
}

func TestWithRestoresOnReturn(t *testing.T) {
	Set(1)
	defer Set(0)
	With(2, func() {
		if got := Get(); got != 2 {
			t.Fatalf("expected 2 inside With, got %d", got)
		}
		With(3, func() {
			if got := Get(); got != 3 {
				t.Fatalf("expected 3 in nested With, got %d", got)
			}
		})
		if got := Get(); got != 2 {
			t.Fatalf("expected 2 after nested With, got %d", got)
		}
	})
	if got := Get(); got != 1 {
		t.Fatalf("expected 1 after With, got %d", got)
	}
}

func TestWithRestoresOnPanic(t *testing.T) {
	Set(9)
	defer Set(0)
	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate through With")
			}
		}()
		With(5, func() { panic("boom") })
	}()
	if got := Get(); got != 9 {
		t.Fatalf("expected 9 restored after panic, got %d", got)
	}
}

func TestGoroutineIsolation(t *testing.T) {
	Set(100)
	defer Set(0)

	observed := make(chan Value)
	release := make(chan struct{})
	go func() {
		observed <- Get()
		Set(200)
		observed <- Get()
		<-release
		Set(0)
		close(observed)
	}()

	if got := <-observed; got != 0 {
		t.Fatalf("new goroutine should start at zero, got %d", got)
	}
	if got := <-observed; got != 200 {
		t.Fatalf("expected 200 in other goroutine, got %d", got)
	}
	if got := Get(); got != 100 {
		t.Fatalf("other goroutine's Set leaked into this one: got %d", got)
	}
	close(release)
	<-observed
}
