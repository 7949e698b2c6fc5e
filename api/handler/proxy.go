package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/radiant/egress/cache"
	"github.com/radiant/egress/executor"
	"github.com/radiant/egress/models"
)

// Proxy returns a handler for POST /proxy.
//
// Flow:
//  1. Parse & validate request (provider/path/method required), defaults.
//  2. GET + max_age: serve from cache when fresh.
//  3. Executor.Execute over a pooled connection.
//  4. Pass the upstream status, content type and body through.
func Proxy(ex *executor.Executor, cc *cache.Cache) gin.HandlerFunc {
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

		cacheable := cc != nil && req.Method == http.MethodGet && req.MaxAge > 0
		var cacheKey string
		if cacheable {
			cacheKey = cache.Key(req.Provider, req.Path, req.Headers)
			if cached, hit := cc.Get(cacheKey, req.MaxAge); hit {
				c.Header("X-Cache-Status", "hit")
				c.Data(cached.Status, cached.ContentType(), cached.Body)
				return
			}
		}

		result, err := ex.Execute(c.Request.Context(), &req)
		if err != nil {
			respondError(c, err)
			return
		}

		if cacheable {
			cc.Set(cacheKey, result)
			c.Header("X-Cache-Status", "miss")
		}
		c.Data(result.Status, result.ContentType(), result.Body)
	}
}

// respondError maps a ProxyError to the right HTTP status and writes a
// structured JSON error. Core failures (unknown provider, pool timeout,
// transport) all surface as 502 to the caller.
func respondError(c *gin.Context, err error) {
	proxyErr, ok := err.(*models.ProxyError)
	if !ok {
		proxyErr = models.NewProxyError(models.ErrCodeInternal, err.Error(), err)
	}

	c.JSON(mapErrorToStatus(proxyErr), models.ErrorResponse{
		Success: false,
		Error:   proxyErr.ToDetail(),
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ProxyError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeUnknownProvider, models.ErrCodePoolTimeout, models.ErrCodeTransport:
		return http.StatusBadGateway // 502
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
