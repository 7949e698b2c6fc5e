package handler

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/radiant/egress/executor"
	"github.com/radiant/egress/models"
)

// ProxyStream returns a handler for POST /proxy/stream.
//
// The response is a text/event-stream. Upstream bytes are forwarded as
// they arrive rather than buffered:
//
//	event: head   data: {"status": ..., "headers": {...}}
//	event: chunk  data: <base64 body bytes>     (repeated)
//	event: end    data: {}
//	event: error  data: {"code": ..., "message": ...}
//
// Chunks are base64-encoded because SSE data lines cannot carry raw
// binary or bare newlines. If the upstream fails mid-response, chunks
// already written stand and a terminal error event marks the truncation.
//
// The event stream is only committed once the upstream head arrives.
// Failures before that point (unknown provider, pool timeout, connect
// errors) get the same 502 JSON as POST /proxy.
func ProxyStream(ex *executor.Executor) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := uuid.NewString()
		c.Header("X-Request-ID", reqID)

		var req models.ProxyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}
		req.Defaults()

		sink := &sseSink{w: c.Writer}
		err := ex.ExecuteStream(c.Request.Context(), &req, sink)
		if err != nil {
			if !sink.opened {
				// Nothing sent yet; fail the request like POST /proxy.
				respondError(c, err)
				return
			}
			proxyErr, ok := err.(*models.ProxyError)
			if !ok {
				proxyErr = models.NewProxyError(models.ErrCodeInternal, err.Error(), err)
			}
			sink.event("error", mustJSON(proxyErr.ToDetail()))
			return
		}
		sink.event("end", "{}")
	}
}

// sseSink adapts a gin response writer to the executor's StreamSink,
// flushing after every event so chunks reach the client immediately.
// The SSE headers are written lazily on the first upstream head, so a
// failed acquisition can still produce an ordinary JSON error.
type sseSink struct {
	w      gin.ResponseWriter
	opened bool
}

func (s *sseSink) WriteHead(status int, headers map[string]string) error {
	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
	s.opened = true

	head := struct {
		Status  int               `json:"status"`
		Headers map[string]string `json:"headers"`
	}{Status: status, Headers: headers}
	return s.event("head", mustJSON(head))
}

func (s *sseSink) WriteChunk(chunk []byte) error {
	return s.event("chunk", base64.StdEncoding.EncodeToString(chunk))
}

func (s *sseSink) event(name, data string) error {
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data); err != nil {
		return err
	}
	s.w.Flush()
	return nil
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
