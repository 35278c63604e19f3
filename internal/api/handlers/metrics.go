package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/troikatech/voice-core/pkg/metrics"
)

// GetMetrics returns runtime pipeline counters as JSON.
func (h *Handler) GetMetrics(c *gin.Context) {
	m := metrics.GetMetrics()
	m["active_sessions"] = h.container.Sessions.Len()
	c.JSON(http.StatusOK, m)
}

// GetPrometheusMetrics returns the counters in Prometheus text format.
func (h *Handler) GetPrometheusMetrics(c *gin.Context) {
	c.Header("Content-Type", "text/plain; version=0.0.4")
	c.String(http.StatusOK, metrics.GetPrometheusMetrics())
}
