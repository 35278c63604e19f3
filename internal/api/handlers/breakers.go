package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/troikatech/voice-core/pkg/errors"
)

// ListBreakers exposes per-service circuit breaker statistics.
func (h *Handler) ListBreakers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"breakers": h.container.Breakers.AllStats(),
	})
}

// ResetBreaker forces a service's breaker back to CLOSED. This is an
// administrative override; normal recovery goes through HALF_OPEN.
func (h *Handler) ResetBreaker(c *gin.Context) {
	service := c.Param("service")
	if service == "" {
		errors.BadRequest(c, "service name is required")
		return
	}
	h.container.Breakers.Reset(service)
	c.JSON(http.StatusOK, gin.H{
		"service": service,
		"stats":   h.container.Breakers.GetStats(service),
	})
}
