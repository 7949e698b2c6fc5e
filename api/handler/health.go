package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/radiant/egress/models"
	"github.com/radiant/egress/pool"
)

// Health returns a handler for GET /health.
//
// Reports per-provider pool stats and degrades status when any pool is
// above 80% of its stream capacity.
func Health(mgr *pool.Manager, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := mgr.Stats()

		status := "healthy"
		for _, s := range stats {
			if s.Capacity > 0 && s.ActiveStreams > int(float64(s.Capacity)*0.8) {
				status = "degraded"
				break
			}
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:  status,
			Pools:   stats,
			Uptime:  time.Since(startTime).Round(time.Second).String(),
			Version: "0.1.0",
		})
	}
}

// Metrics returns a handler for GET /metrics.
func Metrics(mgr *pool.Manager, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		c.JSON(http.StatusOK, models.MetricsResponse{
			Pools: mgr.Stats(),
			Memory: models.MemoryStats{
				AllocBytes:     m.Alloc,
				HeapInuseBytes: m.HeapInuse,
				SysBytes:       m.Sys,
				NumGC:          m.NumGC,
				NumGoroutine:   runtime.NumGoroutine(),
			},
			Uptime: time.Since(startTime).Round(time.Second).String(),
		})
	}
}
