package jobserver

// Limiter grants permits to run parallel work.
type Limiter interface {
	AcquireToken()
	ReturnToken()
}

var _ Limiter = (*Proxy)(nil)

type localLimiter struct {
	ch chan struct{}
}

// NewLocalLimiter returns a Limiter enforcing a process-local bound of
// n, for callers that want throttling without a jobserver. n <= 0
// yields an unlimited limiter.
func NewLocalLimiter(n int) Limiter {
	if n <= 0 {
		return Disabled()
	}
	return &localLimiter{ch: make(chan struct{}, n)}
}

func (l *localLimiter) AcquireToken() { l.ch <- struct{}{} }

func (l *localLimiter) ReturnToken() {
	select {
	case <-l.ch:
	default:
	}
}
