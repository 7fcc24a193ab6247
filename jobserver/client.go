package jobserver

import (
	"os"
	"strconv"
	"strings"
	"sync"
)

// Acquired is one granted permit. Every token read from the broker must
// eventually be released back exactly once.
type Acquired struct {
	client *Client
	b      byte
}

// Release writes the token back to the broker.
func (a *Acquired) Release() { a.client.release(a.b) }

// Client talks the jobserver pipe protocol: a permit is one byte read
// from the shared pipe, returned by writing the byte back.
type Client struct {
	r, w  *os.File
	owned bool
}

// NewClient creates a standalone broker backed by a local pipe holding
// n tokens. It is used by tests and by processes that are themselves
// the top-level coordinator rather than a child of one.
func NewClient(n int) (*Client, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	c := &Client{r: r, w: w, owned: true}
	for range n {
		if _, err := w.Write([]byte{'+'}); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

var (
	fromEnvOnce sync.Once
	envClient   *Client
)

// FromEnv connects to the broker advertised in MAKEFLAGS. The
// environment may only be consumed once per process; subsequent calls
// return the same client. Returns nil when no broker is configured or
// the advertised endpoint cannot be opened.
func FromEnv() *Client {
	fromEnvOnce.Do(func() {
		envClient = clientFromEnv(os.Getenv("MAKEFLAGS"))
	})
	return envClient
}

func clientFromEnv(flags string) *Client {
	for _, arg := range strings.Fields(flags) {
		val, ok := strings.CutPrefix(arg, "--jobserver-auth=")
		if !ok {
			val, ok = strings.CutPrefix(arg, "--jobserver-fds=")
		}
		if !ok {
			continue
		}
		if path, ok := strings.CutPrefix(val, "fifo:"); ok {
			return fifoClient(path)
		}
		return fdClient(val)
	}
	return nil
}

func fifoClient(path string) *Client {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil
	}
	return &Client{r: f, w: f}
}

func fdClient(val string) *Client {
	rs, ws, ok := strings.Cut(val, ",")
	if !ok {
		return nil
	}
	rfd, err1 := strconv.Atoi(rs)
	wfd, err2 := strconv.Atoi(ws)
	if err1 != nil || err2 != nil || rfd < 0 || wfd < 0 {
		return nil
	}
	return &Client{
		r: os.NewFile(uintptr(rfd), "jobserver-read"),
		w: os.NewFile(uintptr(wfd), "jobserver-write"),
	}
}

// Acquire blocks until a token can be read from the pipe.
func (c *Client) Acquire() (*Acquired, error) {
	var buf [1]byte
	for {
		n, err := c.r.Read(buf[:])
		if n == 1 {
			return &Acquired{client: c, b: buf[0]}, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// release is best-effort: a broker that has gone away has no further
// use for its tokens.
func (c *Client) release(b byte) {
	_, _ = c.w.Write([]byte{b})
}

// Close releases the pipe, unblocking any outstanding Acquire with an
// error. Closing an environment-inherited client would close file
// descriptors shared with the parent process, so Close is only for
// clients created with NewClient.
func (c *Client) Close() error {
	err := c.r.Close()
	if c.w != c.r {
		if werr := c.w.Close(); err == nil {
			err = werr
		}
	}
	return err
}
