package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/radiant/egress/api/handler"
	"github.com/radiant/egress/api/middleware"
	"github.com/radiant/egress/cache"
	"github.com/radiant/egress/config"
	"github.com/radiant/egress/executor"
	"github.com/radiant/egress/pool"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	Proxy:   Auth (if enabled) → RateLimit
//
// Health and metrics are intentionally outside auth so monitoring probes
// always work.
func NewRouter(ex *executor.Executor, mgr *pool.Manager, cfg *config.Config, cc *cache.Cache, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	// Observability — no auth required.
	r.GET("/health", handler.Health(mgr, startTime))
	r.GET("/metrics", handler.Metrics(mgr, startTime))

	// Protected group — auth + rate limit.
	protected := r.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/proxy", handler.Proxy(ex, cc))
	protected.POST("/proxy/stream", handler.ProxyStream(ex))

	return r
}
