package observability

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// AdminStatus reports component state for the admin endpoints.
type AdminStatus interface {
	Ready() bool
	Details() map[string]any
}

// NewAdminRouter serves /health, /ready, and /metrics for one node.
func NewAdminRouter(node, version string, logger zerolog.Logger, status AdminStatus) *gin.Engine {
	RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	started := time.Now()

	r := gin.New()
	r.Use(gin.Recovery(), adminAccess(node, logger))

	r.GET("/health", func(c *gin.Context) {
		body := gin.H{
			"status":    "ok",
			"uptime":    time.Since(started).String(),
			"component": node,
			"version":   version,
		}
		if status != nil {
			for k, v := range status.Details() {
				body[k] = v
			}
		}
		c.JSON(http.StatusOK, body)
	})

	r.GET("/ready", func(c *gin.Context) {
		ready := status == nil || status.Ready()
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"ready":     ready,
			"uptime":    time.Since(started).String(),
			"component": node,
			"version":   version,
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// unroutedPath labels requests that matched no admin route, keeping the
// http series bounded no matter what paths clients probe.
const unroutedPath = "unrouted"

// adminAccess records one metric sample and one log line per admin request.
// Scrapes of /metrics log at trace so a scraper does not flood debug output.
func adminAccess(node string, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = unroutedPath
		}
		status := c.Writer.Status()
		RecordHTTPRequest(node, c.Request.Method, route, status, elapsed)

		var event *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			event = logger.Error()
		case status >= http.StatusBadRequest:
			event = logger.Warn()
		case route == "/metrics":
			event = logger.Trace()
		default:
			event = logger.Debug()
		}
		event.
			Str("node", node).
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("elapsed", elapsed).
			Str("remote", c.ClientIP()).
			Msg("admin request")
	}
}
