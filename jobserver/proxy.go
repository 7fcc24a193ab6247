package jobserver

import (
	"sync"
	"weak"
)

// proxyData is the token bookkeeping, guarded by Proxy.mu.
type proxyData struct {
	// free counts permits available to local waiters without contacting
	// the broker, including the process's implicit permit once it has
	// been returned.
	free int

	// waiters counts goroutines blocked in AcquireToken.
	waiters int

	// requested counts broker requests not yet answered.
	requested int

	// tokens holds granted handles not currently in use. Popping one
	// and releasing it is how a permit goes back to the broker; the
	// implicit permit never appears here.
	tokens []*Acquired
}

// Proxy mediates between local demand for parallelism and the globally
// shared broker budget. Permits returned while other goroutines wait
// are recycled locally and never round-trip through the broker.
type Proxy struct {
	helper *Helper
	client *Client

	mu   sync.Mutex
	cond *sync.Cond
	data proxyData
}

// NewProxy builds a proxy over an explicit broker client. A nil client
// yields a disabled proxy imposing no limit.
func NewProxy(c *Client) *Proxy {
	p := &Proxy{client: c}
	p.cond = sync.NewCond(&p.mu)
	if c != nil {
		p.helper = StartHelper(c, p.grant)
	}
	return p
}

// Disabled returns a proxy that imposes no concurrency limit.
func Disabled() *Proxy { return NewProxy(nil) }

var (
	currentMu sync.Mutex
	current   weak.Pointer[Proxy]
)

// Current returns the process-wide proxy, creating one from the
// environment if the previous one has been released. The broker
// protocol assumes one client per process, so all callers share a
// single live proxy.
func Current() *Proxy {
	currentMu.Lock()
	defer currentMu.Unlock()
	if p := current.Value(); p != nil {
		return p
	}
	p := NewProxy(FromEnv())
	current = weak.Make(p)
	return p
}

// Enabled reports whether a broker is connected.
func (p *Proxy) Enabled() bool { return p.helper != nil }

// AcquireToken blocks the calling goroutine until a permit is
// available. It is woken either by another goroutine returning a permit
// locally or by the broker answering an outstanding request; it never
// polls. With no broker configured it returns immediately.
func (p *Proxy) AcquireToken() {
	if p.helper == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.waiters++
	if p.takeToken() {
		return
	}
	p.requestToken()
	for {
		p.cond.Wait()
		if p.takeToken() {
			return
		}
	}
}

// takeToken attempts the local fast path. Caller holds p.mu.
func (p *Proxy) takeToken() bool {
	d := &p.data
	if d.free == 0 {
		return false
	}
	d.free--
	d.waiters--
	// We may have taken a permit some other waiter's request paid for;
	// keep the supply pipeline level with remaining demand.
	if d.requested+d.free < d.waiters {
		p.requestToken()
	}
	return true
}

// requestToken issues one broker request. Caller holds p.mu.
func (p *Proxy) requestToken() {
	p.data.requested++
	p.helper.RequestToken()
}

// ReturnToken gives a permit back. A locally waiting goroutine is
// served first, without contacting the broker; otherwise a held broker
// token is released, and failing that the permit being returned is the
// implicit one, which simply becomes free again.
func (p *Proxy) ReturnToken() {
	if p.helper == nil {
		return
	}
	p.mu.Lock()
	d := &p.data
	if d.waiters > 0 {
		d.free++
		p.mu.Unlock()
		p.cond.Signal()
		return
	}
	if n := len(d.tokens); n > 0 {
		tok := d.tokens[n-1]
		d.tokens = d.tokens[:n-1]
		p.mu.Unlock()
		tok.Release()
		return
	}
	// The implicit permit was never requested and is never released.
	d.free++
	p.mu.Unlock()
}

// grant is invoked from the helper goroutine for each token the broker
// hands out.
func (p *Proxy) grant(tok *Acquired) {
	p.mu.Lock()
	d := &p.data
	d.requested--
	if d.waiters > 0 {
		d.free++
		d.tokens = append(d.tokens, tok)
		p.mu.Unlock()
		p.cond.Signal()
		return
	}
	p.mu.Unlock()
	// Demand evaporated while the request was in flight.
	tok.Release()
}

// ProxyStats is a point-in-time snapshot of the proxy's bookkeeping.
type ProxyStats struct {
	Free       int
	Waiters    int
	Requested  int
	HeldTokens int
	Enabled    bool
}

// Stats returns a snapshot of the proxy's current accounting.
func (p *Proxy) Stats() ProxyStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ProxyStats{
		Free:       p.data.free,
		Waiters:    p.data.waiters,
		Requested:  p.data.requested,
		HeldTokens: len(p.data.tokens),
		Enabled:    p.helper != nil,
	}
}

// Close releases held tokens and stops the helper goroutine. It must
// not be called while goroutines are blocked in AcquireToken. The
// underlying client is closed only if it was created locally via
// NewClient; an environment-inherited pipe stays open. Closing a
// disabled proxy is a no-op.
func (p *Proxy) Close() {
	if p.helper == nil {
		return
	}
	p.mu.Lock()
	tokens := p.data.tokens
	p.data.tokens = nil
	p.mu.Unlock()
	for _, tok := range tokens {
		tok.Release()
	}
	p.helper.Stop()
	if p.client.owned {
		p.client.Close()
		<-p.helper.Done()
	}
}
