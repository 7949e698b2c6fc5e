package models

// ProxyResult is the outcome of one upstream exchange.
type ProxyResult struct {
	// Status is the upstream HTTP status code.
	Status int `json:"status"`

	// Headers are the upstream response headers, multi-values joined
	// with ", ".
	Headers map[string]string `json:"headers"`

	// Body is the full upstream response body.
	Body []byte `json:"-"`
}

// ContentType returns the upstream Content-Type, or a JSON default.
func (r *ProxyResult) ContentType() string {
	if ct, ok := r.Headers["Content-Type"]; ok && ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// ErrorResponse is the JSON body for failed /proxy requests.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// PoolStats reports the state of one provider's connection pool.
type PoolStats struct {
	// Connections is the number of healthy connections currently open.
	Connections int `json:"connections"`

	// ActiveStreams is the sum of in-flight streams across all
	// connections, healthy or not.
	ActiveStreams int `json:"active_streams"`

	// Capacity is healthy connections x max streams per connection —
	// the ceiling on simultaneous in-flight requests before waiting.
	Capacity int `json:"capacity"`

	// MaxCapacity is max connections x max streams per connection.
	MaxCapacity int `json:"max_capacity"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status  string               `json:"status"` // "healthy" or "degraded"
	Pools   map[string]PoolStats `json:"pools"`
	Uptime  string               `json:"uptime"`
	Version string               `json:"version"`
}

// MemoryStats is a trimmed runtime.MemStats view for GET /metrics.
type MemoryStats struct {
	AllocBytes     uint64 `json:"alloc_bytes"`
	HeapInuseBytes uint64 `json:"heap_inuse_bytes"`
	SysBytes       uint64 `json:"sys_bytes"`
	NumGC          uint32 `json:"num_gc"`
	NumGoroutine   int    `json:"num_goroutine"`
}

// MetricsResponse is the response for GET /metrics.
type MetricsResponse struct {
	Pools  map[string]PoolStats `json:"pools"`
	Memory MemoryStats          `json:"memory"`
	Uptime string               `json:"uptime"`
}
