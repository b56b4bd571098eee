// Package statusapi exposes a slim, unauthenticated read-only
// diagnostics server for the fall detector: health, live status, and
// (when enabled) Prometheus metrics — the operational surface a
// single-camera daemon needs and nothing more.
package statusapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/falldetect/internal/falldetect/fsm"
)

// StatusSource supplies the live status; cmd/falldetectd satisfies it
// by wrapping the collector's Status method in a Func, so statusapi
// doesn't need to import the collector's concrete type.
type StatusSource interface {
	Status() Status
}

// Status mirrors collector.Status without importing the collector
// package, avoiding an import cycle between statusapi and collector.
type Status struct {
	InferFPS      float64
	State         fsm.State
	LastTriggered string
}

// NewRouter builds the diagnostics gin.Engine. exportMetrics gates the
// /metrics endpoint behind logging.export_prometheus.
func NewRouter(src StatusSource, startedAt time.Time, exportMetrics bool) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	// Read-only surface; browser pages served from other ports (the
	// HUD viewer among them) may fetch it cross-origin.
	r.Use(cors.Default())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	r.GET("/status", func(c *gin.Context) {
		st := src.Status()
		c.JSON(200, gin.H{
			"state":         st.State,
			"infer_fps":     st.InferFPS,
			"last_event_id": st.LastTriggered,
			"uptime_sec":    time.Since(startedAt).Seconds(),
		})
	})

	if exportMetrics {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	return r
}
