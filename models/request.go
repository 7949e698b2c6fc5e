package models

import (
	"encoding/json"
	"strings"
)

// ProxyRequest is the payload for POST /proxy and POST /proxy/stream.
type ProxyRequest struct {
	// Provider is the name of a registered upstream provider. Required.
	Provider string `json:"provider" binding:"required"`

	// Path is the request path on the provider, e.g. "/v1/chat/completions".
	// Required. A leading slash is added if missing.
	Path string `json:"path" binding:"required"`

	// Method is the HTTP method for the upstream exchange. Required.
	Method string `json:"method" binding:"required"`

	// Headers are merged over the provider's default headers.
	// Caller-supplied values win on conflict.
	Headers map[string]string `json:"headers,omitempty"`

	// Body is forwarded to the upstream verbatim. May be any JSON value;
	// absent or null means no request body.
	Body json.RawMessage `json:"body,omitempty"`

	// MaxAge enables the GET response cache when > 0, in milliseconds.
	// Ignored for any method other than GET.
	MaxAge int `json:"max_age,omitempty" binding:"omitempty,min=0"`
}

// Defaults normalises unset or sloppy fields.
func (r *ProxyRequest) Defaults() {
	r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
	if !strings.HasPrefix(r.Path, "/") {
		r.Path = "/" + r.Path
	}
}

// HasBody reports whether the request carries a body to forward.
func (r *ProxyRequest) HasBody() bool {
	return len(r.Body) > 0 && string(r.Body) != "null"
}
