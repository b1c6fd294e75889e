package router

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
)

// setupHealthRoutes registers the probe endpoint used by orchestrators.
func (r *Router) setupHealthRoutes() {
	r.Engine.GET("/health", gin.WrapF(r.Container.Health.HTTPHandler()))
}

// detailedHealthHandler reports components plus process and gateway stats.
func (r *Router) detailedHealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		status, code := "ok", http.StatusOK
		if !r.Container.Health.IsSystemHealthy() {
			status, code = "unavailable", http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":     status,
			"version":    os.Getenv("APP_VERSION"),
			"env":        r.Config.Server.Env,
			"timestamp":  time.Now().Format(time.RFC3339),
			"uptime":     time.Since(startTime).Round(time.Second).String(),
			"model":      r.Container.Gateway.Model(),
			"components": r.Container.Health.GetStatus(),
			"gateway":    r.Container.Breaker.GetMetrics(),
			"memory": gin.H{
				"alloc_mb":  memStats.Alloc / 1024 / 1024,
				"sys_mb":    memStats.Sys / 1024 / 1024,
				"gc_cycles": memStats.NumGC,
			},
		})
	}
}
