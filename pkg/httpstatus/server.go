// Package httpstatus exposes an operational sidecar: health, scheduler
// occupancy, and Prometheus metrics. This is not the transfer API surface
// spec.md excludes (that's Upload/PutObject in pkg/s3engine); it's the
// same kind of read-only status router the teacher's api.SetupRouter
// builds, narrowed to observability endpoints and wired to this engine's
// own scheduler stats instead of migration-task state.
package httpstatus

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"s3transfer/pkg/metrics"
	"s3transfer/pkg/pool"
	"s3transfer/pkg/scheduler"
)

// StatsSource is the minimal view this router needs of the running engine.
type StatsSource interface {
	Stats() scheduler.Stats
}

// NewRouter builds the gin.Engine serving /healthz, /status, and /metrics.
func NewRouter(engine StatsSource, table *pool.Table, collector *metrics.Collector) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = []string{"*"}
	corsCfg.AllowMethods = []string{"GET"}
	router.Use(cors.New(corsCfg))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/status", func(c *gin.Context) {
		stats := engine.Stats()
		c.JSON(http.StatusOK, gin.H{
			"active_uploads":     stats.ActiveUploads,
			"requests_in_flight": stats.RequestsInFlight,
			"requests_preparing": stats.RequestsPreparing,
			"prepare_queue_len":  stats.PrepareQueueLen,
			"budgets": gin.H{
				"max_active_connections": stats.Budgets.MaxActiveConnections,
				"max_requests_in_flight": stats.Budgets.MaxRequestsInFlight,
				"max_requests_prepare":   stats.Budgets.MaxRequestsPrepare,
			},
			"endpoints": table.Snapshot(),
		})
	})

	if collector != nil {
		handler := promhttp.HandlerFor(collector.Registry, promhttp.HandlerOpts{})
		router.GET("/metrics", gin.WrapH(handler))
	}

	return router
}
