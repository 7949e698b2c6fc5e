package pool

import (
	"net/http"
	"time"
)

// Session is one multiplexed transport session to a provider's base URL.
// *http2.ClientConn satisfies it; tests substitute fakes.
type Session interface {
	RoundTrip(*http.Request) (*http.Response, error)

	// CanTakeNewRequest reports whether the session will accept a new
	// stream. It turns false after a GOAWAY or session close.
	CanTakeNewRequest() bool

	Close() error
}

// Conn owns exactly one Session and its bookkeeping. It belongs
// exclusively to one provider's pool; activeStreams and healthy are
// guarded by the owning pool's mutex and mutated only through the
// Manager's acquire/release/cleanup paths.
type Conn struct {
	pool      *providerPool
	sess      Session
	createdAt time.Time

	activeStreams int
	healthy       bool // monotonic true -> false, never reset
}

// Session returns the underlying multiplexed session.
func (c *Conn) Session() Session {
	return c.sess
}

// Provider returns the owning provider's name.
func (c *Conn) Provider() string {
	return c.pool.name
}

// Config returns the owning provider's configuration.
func (c *Conn) Config() ProviderConfig {
	return c.pool.cfg
}

// CreatedAt returns when the session was opened.
func (c *Conn) CreatedAt() time.Time {
	return c.createdAt
}

// ActiveStreams returns the current in-flight stream count.
func (c *Conn) ActiveStreams() int {
	c.pool.mu.Lock()
	defer c.pool.mu.Unlock()
	return c.activeStreams
}

// Healthy reports whether the connection is still eligible for new
// streams.
func (c *Conn) Healthy() bool {
	c.pool.mu.Lock()
	defer c.pool.mu.Unlock()
	return c.healthy
}
