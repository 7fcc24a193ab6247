package pool

import "time"

// Observer receives lifecycle hooks from a Pool and from the scopes
// running against it. Implementations must be safe for concurrent use;
// hooks are invoked from worker goroutines on the job hot path.
type Observer interface {
	JobInjected()
	JobStarted()
	JobFinished(d time.Duration, panicked bool)
	ScopeActivated()
	ScopeSettled(wait time.Duration)
}
