package jobserver

import "sync"

// Helper owns the goroutine performing blocking token reads on behalf
// of a Proxy, so the proxy's lock is never held across broker I/O.
type Helper struct {
	client *Client
	cb     func(*Acquired)

	mu      sync.Mutex
	cond    *sync.Cond
	pending int
	stopped bool

	done chan struct{}
}

// StartHelper launches the helper goroutine. cb is invoked once per
// granted token, from the helper goroutine.
func StartHelper(c *Client, cb func(*Acquired)) *Helper {
	h := &Helper{client: c, cb: cb, done: make(chan struct{})}
	h.cond = sync.NewCond(&h.mu)
	go h.serve()
	return h
}

// RequestToken queues one more token request. It never blocks and may
// be called with arbitrary locks held.
func (h *Helper) RequestToken() {
	h.mu.Lock()
	h.pending++
	h.mu.Unlock()
	h.cond.Signal()
}

// Stop prevents further queued requests from being served. A broker
// read already in flight is only unblocked by closing the client.
func (h *Helper) Stop() {
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
	h.cond.Signal()
}

// Done is closed when the helper goroutine has exited.
func (h *Helper) Done() <-chan struct{} { return h.done }

func (h *Helper) serve() {
	defer close(h.done)
	for {
		h.mu.Lock()
		for h.pending == 0 && !h.stopped {
			h.cond.Wait()
		}
		if h.stopped {
			h.mu.Unlock()
			return
		}
		h.pending--
		h.mu.Unlock()

		tok, err := h.client.Acquire()
		if err != nil {
			// Broker gone; no further grants will arrive.
			return
		}
		h.cb(tok)
	}
}
