package pool

import (
	"fmt"
	"net/url"
	"sort"
	"sync"

	"github.com/radiant/egress/models"
)

// ProviderConfig is the immutable per-provider pool configuration.
type ProviderConfig struct {
	// BaseURL is the provider origin; scheme must be http or https.
	BaseURL string

	// MaxConnections is the ceiling on pool size.
	MaxConnections int

	// MaxStreamsPerConnection is the soft multiplexing cap per session.
	// This is a policy knob, not the protocol-level stream limit.
	MaxStreamsPerConnection int

	// DefaultHeaders are merged under caller-supplied headers.
	DefaultHeaders map[string]string
}

// Registry maps provider names to their configuration and pool state.
// Populated once at startup; read-only thereafter except for pool
// mutation through the Manager.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]*providerPool
}

// providerPool is one provider's ordered connection list plus the
// synchronisation state guarding it. All mutation of conns and of each
// Conn's counters goes through the Manager while holding mu.
type providerPool struct {
	name string
	cfg  ProviderConfig

	mu      sync.Mutex
	conns   []*Conn
	dialing int // sessions being opened, counted against MaxConnections

	// released is signalled (non-blocking, capacity 1) whenever a
	// stream is released or an unhealthy connection is evicted, waking
	// capacity waiters early.
	released chan struct{}
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]*providerPool)}
}

// Register stores cfg and initialises an empty pool for name. It must be
// called before any request references name. Caps below 1 are raised to 1.
func (r *Registry) Register(name string, cfg ProviderConfig) error {
	if name == "" {
		return fmt.Errorf("registry: provider name must not be empty")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("registry: provider %q has invalid base URL %q", name, cfg.BaseURL)
	}
	if cfg.MaxConnections < 1 {
		cfg.MaxConnections = 1
	}
	if cfg.MaxStreamsPerConnection < 1 {
		cfg.MaxStreamsPerConnection = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("registry: provider %q already registered", name)
	}
	r.providers[name] = &providerPool{
		name:     name,
		cfg:      cfg,
		released: make(chan struct{}, 1),
	}
	return nil
}

// Config returns the configuration for a registered provider.
func (r *Registry) Config(name string) (ProviderConfig, error) {
	p, err := r.lookup(name)
	if err != nil {
		return ProviderConfig{}, err
	}
	return p.cfg, nil
}

// Names returns all registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) lookup(name string) (*providerPool, error) {
	r.mu.RLock()
	p, ok := r.providers[name]
	r.mu.RUnlock()
	if !ok {
		return nil, models.NewProxyError(models.ErrCodeUnknownProvider,
			fmt.Sprintf("provider %q is not registered", name), nil)
	}
	return p, nil
}

func (r *Registry) pools() []*providerPool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pools := make([]*providerPool, 0, len(r.providers))
	for _, p := range r.providers {
		pools = append(pools, p)
	}
	return pools
}

// signal wakes at most one capacity waiter without blocking.
func (p *providerPool) signal() {
	select {
	case p.released <- struct{}{}:
	default:
	}
}
