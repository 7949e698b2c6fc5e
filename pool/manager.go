package pool

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/radiant/egress/config"
	"github.com/radiant/egress/models"
)

// DialFunc opens a new multiplexed session to a provider's base URL.
// ctx carries the connect deadline.
type DialFunc func(ctx context.Context, cfg ProviderConfig) (Session, error)

// EventSink receives pool lifecycle notifications. Implementations must
// not block; the Manager calls them outside its locks.
type EventSink interface {
	// ConnectionUnhealthy fires the first time a connection is marked
	// unhealthy.
	ConnectionUnhealthy(provider string, cause error)

	// PoolTimeout fires when a capacity wait exceeds its ceiling.
	PoolTimeout(provider string)
}

// Manager orchestrates acquisition, release and periodic cleanup across
// all per-provider pools. It is the only component that mutates pool
// state.
type Manager struct {
	reg    *Registry
	cfg    config.PoolConfig
	dial   DialFunc
	events EventSink

	stopped chan struct{}
}

// NewManager creates a Manager over reg. dial defaults to DialHTTP2 when
// nil. events may be nil.
func NewManager(reg *Registry, cfg config.PoolConfig, dial DialFunc, events EventSink) *Manager {
	if dial == nil {
		dial = DialHTTP2
	}
	if cfg.AcquireRetryInterval <= 0 {
		cfg.AcquireRetryInterval = 10 * time.Millisecond
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 30 * time.Second
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 30 * time.Second
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	return &Manager{
		reg:     reg,
		cfg:     cfg,
		dial:    dial,
		events:  events,
		stopped: make(chan struct{}),
	}
}

// Start launches the periodic cleanup loop.
func (m *Manager) Start() {
	go m.cleanupLoop()
}

// Acquire returns a connection to provider with one stream reserved.
//
// Selection is first-fit: the pool is scanned in order for a healthy
// connection with spare streams; if none exists and the pool is under
// its cap, a new session is opened; otherwise the caller waits for a
// release (or cleanup eviction) up to the acquire timeout.
//
// Every successful Acquire must be paired with exactly one Release.
func (m *Manager) Acquire(ctx context.Context, provider string) (*Conn, error) {
	p, err := m.reg.lookup(provider)
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(m.cfg.AcquireTimeout)
	for {
		conn, full := p.tryAcquire()
		if conn != nil {
			return conn, nil
		}

		if !full {
			conn, err := m.openConn(ctx, p)
			if err != nil {
				return nil, err
			}
			if conn != nil {
				return conn, nil
			}
			// Lost the race for the last slot; fall through to wait.
			continue
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			if m.events != nil {
				m.events.PoolTimeout(p.name)
			}
			return nil, models.NewProxyError(models.ErrCodePoolTimeout,
				fmt.Sprintf("provider %q: no stream capacity within %s", p.name, m.cfg.AcquireTimeout), nil)
		}

		wait := m.cfg.AcquireRetryInterval
		if wait > remaining {
			wait = remaining
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-p.released:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// tryAcquire scans for a healthy connection with spare capacity and
// reserves a stream on it. full reports whether the pool (including
// in-flight dials) is at its connection cap.
func (p *providerPool) tryAcquire() (conn *Conn, full bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, c := range p.conns {
		if !c.healthy {
			continue
		}
		if !c.sess.CanTakeNewRequest() {
			// GOAWAY or close observed; latch it. In-flight streams
			// on this connection finish independently.
			c.healthy = false
			continue
		}
		if c.activeStreams < p.cfg.MaxStreamsPerConnection {
			c.activeStreams++
			return c, false
		}
	}
	return nil, len(p.conns)+p.dialing >= p.cfg.MaxConnections
}

// openConn dials a new session and appends it to the pool with one
// stream already reserved. Returns (nil, nil) when a concurrent
// acquirer took the last connection slot first. The pool lock is never
// held across the dial.
func (m *Manager) openConn(ctx context.Context, p *providerPool) (*Conn, error) {
	p.mu.Lock()
	if len(p.conns)+p.dialing >= p.cfg.MaxConnections {
		p.mu.Unlock()
		return nil, nil
	}
	p.dialing++
	p.mu.Unlock()

	dctx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	sess, err := m.dial(dctx, p.cfg)
	cancel()

	p.mu.Lock()
	p.dialing--
	if err != nil {
		p.mu.Unlock()
		// A failed dial frees its reserved slot for waiters.
		p.signal()
		return nil, models.NewProxyError(models.ErrCodeTransport,
			fmt.Sprintf("provider %q: connect to %s failed", p.name, p.cfg.BaseURL), err)
	}
	conn := &Conn{
		pool:          p,
		sess:          sess,
		createdAt:     time.Now(),
		activeStreams: 1,
		healthy:       true,
	}
	p.conns = append(p.conns, conn)
	total := len(p.conns)
	p.mu.Unlock()

	slog.Debug("pool: opened connection",
		"provider", p.name,
		"connections", total,
	)
	return conn, nil
}

// Release returns one stream to conn's pool. Must be called exactly once
// per Acquire, on every exit path. The counter floors at zero.
func (m *Manager) Release(conn *Conn) {
	p := conn.pool
	p.mu.Lock()
	if conn.activeStreams > 0 {
		conn.activeStreams--
	}
	p.mu.Unlock()
	p.signal()
}

// MarkUnhealthy permanently excludes conn from future selection.
// Requests already running on it finish or fail independently; the
// session is closed by the next cleanup pass.
func (m *Manager) MarkUnhealthy(conn *Conn, cause error) {
	p := conn.pool
	p.mu.Lock()
	first := conn.healthy
	conn.healthy = false
	p.mu.Unlock()

	if !first {
		return
	}
	slog.Warn("pool: connection marked unhealthy",
		"provider", p.name,
		"error", cause,
	)
	if m.events != nil {
		m.events.ConnectionUnhealthy(p.name, cause)
	}
}

// Cleanup removes every unhealthy connection from every pool, closing
// its session best-effort. Healthy connections and their stream counts
// are left untouched. Safe to run concurrently with Acquire/Release.
func (m *Manager) Cleanup() {
	for _, p := range m.reg.pools() {
		var dead []*Conn

		p.mu.Lock()
		kept := p.conns[:0]
		for _, c := range p.conns {
			if c.healthy && c.sess.CanTakeNewRequest() {
				kept = append(kept, c)
				continue
			}
			c.healthy = false
			dead = append(dead, c)
		}
		p.conns = kept
		p.mu.Unlock()

		if len(dead) == 0 {
			continue
		}
		for _, c := range dead {
			_ = c.sess.Close() // secondary errors intentionally swallowed
		}
		slog.Debug("pool: evicted unhealthy connections",
			"provider", p.name,
			"evicted", len(dead),
		)
		// Eviction frees connection slots; wake capacity waiters.
		p.signal()
	}
}

// Stats reports per-provider pool state. Pure read.
func (m *Manager) Stats() map[string]models.PoolStats {
	stats := make(map[string]models.PoolStats)
	for _, p := range m.reg.pools() {
		p.mu.Lock()
		s := models.PoolStats{
			MaxCapacity: p.cfg.MaxConnections * p.cfg.MaxStreamsPerConnection,
		}
		for _, c := range p.conns {
			s.ActiveStreams += c.activeStreams
			if c.healthy {
				s.Connections++
			}
		}
		s.Capacity = s.Connections * p.cfg.MaxStreamsPerConnection
		p.mu.Unlock()
		stats[p.name] = s
	}
	return stats
}

// Close stops the cleanup loop and closes every session in every pool.
func (m *Manager) Close() {
	close(m.stopped)
	for _, p := range m.reg.pools() {
		p.mu.Lock()
		conns := p.conns
		p.conns = nil
		p.mu.Unlock()
		for _, c := range conns {
			_ = c.sess.Close()
		}
	}
}

func (m *Manager) cleanupLoop() {
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopped:
			return
		case <-ticker.C:
			m.Cleanup()
		}
	}
}
