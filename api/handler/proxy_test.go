package handler_test

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/radiant/egress/api"
	"github.com/radiant/egress/cache"
	"github.com/radiant/egress/config"
	"github.com/radiant/egress/executor"
	"github.com/radiant/egress/models"
	"github.com/radiant/egress/pool"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func newTestRouter(t *testing.T, upstreamURL string) *gin.Engine {
	t.Helper()
	reg := pool.NewRegistry()
	if upstreamURL != "" {
		err := reg.Register("p", pool.ProviderConfig{
			BaseURL:                 upstreamURL,
			MaxConnections:          2,
			MaxStreamsPerConnection: 8,
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	mgr := pool.NewManager(reg, config.PoolConfig{
		AcquireRetryInterval: 2 * time.Millisecond,
		AcquireTimeout:       time.Second,
		CleanupInterval:      time.Hour,
		ConnectTimeout:       time.Second,
	}, nil, nil)
	t.Cleanup(mgr.Close)

	ex := executor.New(mgr, 5*time.Second)
	cfg := &config.Config{
		Server:    config.ServerConfig{Mode: gin.TestMode},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
	}
	return api.NewRouter(ex, mgr, cfg, cache.New(16), time.Now())
}

func postJSON(t *testing.T, r *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error response: %v (%s)", err, w.Body.String())
	}
	return resp
}

func TestProxyMissingFields(t *testing.T) {
	r := newTestRouter(t, "")

	w := postJSON(t, r, "/proxy", map[string]string{"provider": "p"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != models.ErrCodeInvalidInput {
		t.Errorf("error code = %s", resp.Error.Code)
	}
}

func TestProxyUnknownProvider(t *testing.T) {
	r := newTestRouter(t, "")

	w := postJSON(t, r, "/proxy", models.ProxyRequest{
		Provider: "ghost",
		Path:     "/x",
		Method:   "GET",
	})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != models.ErrCodeUnknownProvider {
		t.Errorf("error code = %s", resp.Error.Code)
	}
}

func TestProxyPassthrough(t *testing.T) {
	upstream := httptest.NewServer(h2c.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"echo":"` + r.URL.Path + `"}`))
	}), &http2.Server{}))
	t.Cleanup(upstream.Close)

	r := newTestRouter(t, upstream.URL)

	w := postJSON(t, r, "/proxy", models.ProxyRequest{
		Provider: "p",
		Path:     "/v1/echo",
		Method:   "GET",
	})
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202 (body %s)", w.Code, w.Body.String())
	}
	if got := w.Body.String(); got != `{"echo":"/v1/echo"}` {
		t.Errorf("body = %q", got)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestProxyCachesGETResponses(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(h2c.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("cached body"))
	}), &http2.Server{}))
	t.Cleanup(upstream.Close)

	r := newTestRouter(t, upstream.URL)
	req := models.ProxyRequest{
		Provider: "p",
		Path:     "/v1/models",
		Method:   "GET",
		MaxAge:   60_000,
	}

	w1 := postJSON(t, r, "/proxy", req)
	if w1.Code != http.StatusOK || w1.Header().Get("X-Cache-Status") != "miss" {
		t.Fatalf("first request: status %d, cache %q", w1.Code, w1.Header().Get("X-Cache-Status"))
	}
	w2 := postJSON(t, r, "/proxy", req)
	if w2.Header().Get("X-Cache-Status") != "hit" {
		t.Errorf("second request cache status = %q, want hit", w2.Header().Get("X-Cache-Status"))
	}
	if w2.Body.String() != "cached body" {
		t.Errorf("cached body = %q", w2.Body.String())
	}
	if hits.Load() != 1 {
		t.Errorf("upstream hit %d times, want 1", hits.Load())
	}
}

func TestProxyStreamSSE(t *testing.T) {
	upstream := httptest.NewServer(h2c.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("hello stream"))
	}), &http2.Server{}))
	t.Cleanup(upstream.Close)

	r := newTestRouter(t, upstream.URL)

	w := postJSON(t, r, "/proxy/stream", models.ProxyRequest{
		Provider: "p",
		Path:     "/v1/stream",
		Method:   "GET",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q", cc)
	}

	body := w.Body.String()
	if !strings.Contains(body, "event: head\n") {
		t.Errorf("missing head event in %q", body)
	}
	if !strings.Contains(body, "event: end\n") {
		t.Errorf("missing end event in %q", body)
	}

	// Reassemble chunk payloads and compare against the upstream body.
	var decoded []byte
	for _, line := range strings.Split(body, "\n") {
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok || strings.HasPrefix(data, "{") {
			continue
		}
		b, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			continue
		}
		decoded = append(decoded, b...)
	}
	if string(decoded) != "hello stream" {
		t.Errorf("reassembled stream = %q", decoded)
	}
}

func TestProxyStreamUnknownProvider(t *testing.T) {
	r := newTestRouter(t, "")

	w := postJSON(t, r, "/proxy/stream", models.ProxyRequest{
		Provider: "ghost",
		Path:     "/x",
		Method:   "GET",
	})
	// Acquisition failed before any upstream byte, so the response is
	// the same 502 JSON as POST /proxy, not an event stream.
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502 (body %s)", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q, want JSON", ct)
	}
	if resp := decodeError(t, w); resp.Error.Code != models.ErrCodeUnknownProvider {
		t.Errorf("error code = %s", resp.Error.Code)
	}
}

func TestHealth(t *testing.T) {
	upstream := httptest.NewServer(h2c.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}), &http2.Server{}))
	t.Cleanup(upstream.Close)

	r := newTestRouter(t, upstream.URL)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp models.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q", resp.Status)
	}
	if _, ok := resp.Pools["p"]; !ok {
		t.Errorf("pools missing provider p: %+v", resp.Pools)
	}
}

func TestMetrics(t *testing.T) {
	r := newTestRouter(t, "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp models.MetricsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Memory.SysBytes == 0 {
		t.Error("memory stats missing")
	}
	if resp.Uptime == "" {
		t.Error("uptime missing")
	}
}
