// Package executor performs one request/response exchange over a pooled
// connection. It owns the acquire/release pairing: every acquired stream
// is released on every exit path, success or failure.
package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/radiant/egress/models"
	"github.com/radiant/egress/pool"
)

// StreamSink receives an upstream exchange incrementally. Chunks are
// forwarded as they arrive; a sink error aborts the exchange without
// affecting connection health.
type StreamSink interface {
	// WriteHead delivers the upstream status and headers once, before
	// any chunk.
	WriteHead(status int, headers map[string]string) error

	// WriteChunk delivers one body chunk.
	WriteChunk(chunk []byte) error
}

// Executor runs exchanges against pooled provider connections.
type Executor struct {
	mgr            *pool.Manager
	requestTimeout time.Duration
}

// New creates an Executor. requestTimeout bounds each upstream exchange;
// <= 0 disables the per-request deadline.
func New(mgr *pool.Manager, requestTimeout time.Duration) *Executor {
	return &Executor{mgr: mgr, requestTimeout: requestTimeout}
}

// Execute performs one buffered exchange: acquire, one stream with
// merged headers, accumulate the full response, release.
func (e *Executor) Execute(ctx context.Context, req *models.ProxyRequest) (*models.ProxyResult, error) {
	conn, err := e.mgr.Acquire(ctx, req.Provider)
	if err != nil {
		return nil, err
	}
	defer e.mgr.Release(conn)

	if e.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.requestTimeout)
		defer cancel()
	}

	resp, err := e.roundTrip(ctx, conn, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if canceled(ctx, err) {
			return nil, err
		}
		e.mgr.MarkUnhealthy(conn, err)
		return nil, models.NewProxyError(models.ErrCodeTransport,
			"reading upstream response failed", err)
	}

	return &models.ProxyResult{
		Status:  status(resp),
		Headers: flattenHeaders(resp.Header),
		Body:    body,
	}, nil
}

// ExecuteStream performs one exchange, forwarding body chunks to sink as
// they arrive from the upstream. Acquisition and release are identical
// to Execute. If the upstream fails mid-stream, chunks already written
// to the sink stand and a TRANSPORT_ERROR is returned.
func (e *Executor) ExecuteStream(ctx context.Context, req *models.ProxyRequest, sink StreamSink) error {
	conn, err := e.mgr.Acquire(ctx, req.Provider)
	if err != nil {
		return err
	}
	defer e.mgr.Release(conn)

	if e.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.requestTimeout)
		defer cancel()
	}

	resp, err := e.roundTrip(ctx, conn, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := sink.WriteHead(status(resp), flattenHeaders(resp.Header)); err != nil {
		return err
	}

	buf := make([]byte, 32*1024)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			if werr := sink.WriteChunk(buf[:n]); werr != nil {
				// Downstream gave up; the connection is fine.
				return werr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if canceled(ctx, err) {
				return err
			}
			e.mgr.MarkUnhealthy(conn, err)
			return models.NewProxyError(models.ErrCodeTransport,
				"upstream stream failed mid-response", err)
		}
	}
}

// roundTrip opens one stream on conn's session: merged headers, method
// and path, body written then half-closed. A transport failure marks the
// connection unhealthy.
func (e *Executor) roundTrip(ctx context.Context, conn *pool.Conn, req *models.ProxyRequest) (*http.Response, error) {
	cfg := conn.Config()
	target := strings.TrimRight(cfg.BaseURL, "/") + req.Path

	var body io.Reader
	if req.HasBody() {
		body = bytes.NewReader(req.Body)
	}

	hreq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, models.NewProxyError(models.ErrCodeInvalidInput,
			"building upstream request failed", err)
	}

	// Provider defaults first, caller-supplied headers override.
	for k, v := range cfg.DefaultHeaders {
		hreq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		hreq.Header.Set(k, v)
	}

	resp, err := conn.Session().RoundTrip(hreq)
	if err != nil {
		if canceled(ctx, err) {
			return nil, err
		}
		e.mgr.MarkUnhealthy(conn, err)
		return nil, models.NewProxyError(models.ErrCodeTransport,
			"upstream request failed", err)
	}
	return resp, nil
}

// canceled reports whether err stems from the exchange context ending
// rather than a transport fault. A caller hanging up aborts its own
// stream only; the multiplexed session stays healthy for everyone else.
func canceled(ctx context.Context, err error) bool {
	if ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// status returns the upstream status, defaulting to 500 when the
// response carries none.
func status(resp *http.Response) int {
	if resp.StatusCode == 0 {
		return http.StatusInternalServerError
	}
	return resp.StatusCode
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vs := range h {
		out[k] = strings.Join(vs, ", ")
	}
	return out
}
