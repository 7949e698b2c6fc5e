package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
	Pool      PoolConfig
	Webhook   WebhookConfig
	Providers map[string]ProviderSettings
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// PoolConfig controls connection pool behaviour across all providers.
type PoolConfig struct {
	// AcquireRetryInterval is the fallback re-check interval while a
	// caller waits for pool capacity.
	AcquireRetryInterval time.Duration // default: 10ms

	// AcquireTimeout is the ceiling on the capacity wait; exceeding it
	// fails the request with POOL_TIMEOUT.
	AcquireTimeout time.Duration // default: 30s

	// CleanupInterval is how often unhealthy connections are evicted.
	CleanupInterval time.Duration // default: 30s

	// ConnectTimeout is the deadline for opening a new session.
	ConnectTimeout time.Duration // default: 10s

	// RequestTimeout is the deadline for one upstream exchange.
	RequestTimeout time.Duration // default: 120s
}

// ProviderSettings describes one upstream provider. Supplied at startup
// and never mutated afterwards.
type ProviderSettings struct {
	// BaseURL is the provider origin, e.g. "https://api.openai.com".
	BaseURL string `yaml:"base_url" json:"base_url"`

	// MaxConnections is the ceiling on pool size. Minimum 1.
	MaxConnections int `yaml:"max_connections" json:"max_connections"`

	// MaxStreamsPerConnection is the soft multiplexing cap per session.
	// Minimum 1.
	MaxStreamsPerConnection int `yaml:"max_streams_per_connection" json:"max_streams_per_connection"`

	// DefaultHeaders are merged under caller-supplied headers on every
	// request to this provider (e.g. Authorization).
	DefaultHeaders map[string]string `yaml:"default_headers" json:"default_headers"`
}

// CacheConfig controls the GET response cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached responses.
	MaxEntries int // default: 1000
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 50

	// Burst is the maximum burst size per API key.
	Burst int // default: 100
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// WebhookConfig controls pool event notifications.
type WebhookConfig struct {
	// URL receives pool events; empty disables notifications.
	URL string

	// Secret signs event payloads with HMAC-SHA256 when non-empty.
	Secret string
}

// Load reads configuration from environment variables with sane defaults.
// Providers come from EGRESS_PROVIDERS_FILE (YAML) or EGRESS_PROVIDERS
// (inline JSON); the file takes precedence when both are set.
func Load() (*Config, error) {
	providers, err := loadProviders()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{
			Host: envOr("EGRESS_HOST", "0.0.0.0"),
			Port: envIntOr("EGRESS_PORT", 8080),
			Mode: envOr("EGRESS_MODE", "release"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("EGRESS_AUTH_ENABLED", false),
			APIKeys: envSliceOr("EGRESS_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("EGRESS_RATE_RPS", 50.0),
			Burst:             envIntOr("EGRESS_RATE_BURST", 100),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("EGRESS_CACHE_MAX_ENTRIES", 1000),
		},
		Log: LogConfig{
			Level:  envOr("EGRESS_LOG_LEVEL", "info"),
			Format: envOr("EGRESS_LOG_FORMAT", "json"),
		},
		Pool: PoolConfig{
			AcquireRetryInterval: envDurationOr("EGRESS_ACQUIRE_RETRY_INTERVAL", 10*time.Millisecond),
			AcquireTimeout:       envDurationOr("EGRESS_ACQUIRE_TIMEOUT", 30*time.Second),
			CleanupInterval:      envDurationOr("EGRESS_CLEANUP_INTERVAL", 30*time.Second),
			ConnectTimeout:       envDurationOr("EGRESS_CONNECT_TIMEOUT", 10*time.Second),
			RequestTimeout:       envDurationOr("EGRESS_REQUEST_TIMEOUT", 120*time.Second),
		},
		Webhook: WebhookConfig{
			URL:    os.Getenv("EGRESS_WEBHOOK_URL"),
			Secret: os.Getenv("EGRESS_WEBHOOK_SECRET"),
		},
		Providers: providers,
	}, nil
}

// loadProviders parses the static provider map from the environment.
func loadProviders() (map[string]ProviderSettings, error) {
	if path := os.Getenv("EGRESS_PROVIDERS_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read providers file: %w", err)
		}
		var providers map[string]ProviderSettings
		if err := yaml.Unmarshal(data, &providers); err != nil {
			return nil, fmt.Errorf("config: parse providers file %s: %w", path, err)
		}
		return providers, nil
	}

	if raw := os.Getenv("EGRESS_PROVIDERS"); raw != "" {
		var providers map[string]ProviderSettings
		if err := json.Unmarshal([]byte(raw), &providers); err != nil {
			return nil, fmt.Errorf("config: parse EGRESS_PROVIDERS: %w", err)
		}
		return providers, nil
	}

	return map[string]ProviderSettings{}, nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
