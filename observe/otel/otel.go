package otel

import "time"

// Nop is a no-op implementation of the pool.Observer interface.
type Nop struct{}

// NewNop returns a no-op observer.
func NewNop() *Nop { return &Nop{} }

func (*Nop) JobInjected()                    {}
func (*Nop) JobStarted()                     {}
func (*Nop) JobFinished(time.Duration, bool) {}
func (*Nop) ScopeActivated()                 {}
func (*Nop) ScopeSettled(time.Duration)      {}
