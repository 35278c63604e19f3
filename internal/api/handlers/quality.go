package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/troikatech/voice-core/pkg/errors"
)

// GetCallQuality returns the quality assessment for a call. Live calls
// are scored on demand from the conversation so far; finished calls are
// served from the call-record store.
func (h *Handler) GetCallQuality(c *gin.Context) {
	callSID := c.Param("id")
	if callSID == "" {
		errors.BadRequest(c, "call id is required")
		return
	}

	if s, ok := h.container.Sessions.Get(callSID); ok {
		if score, scored := s.Quality(); scored {
			c.JSON(http.StatusOK, gin.H{
				"call_sid": callSID,
				"live":     true,
				"quality":  score,
			})
			return
		}
		errors.NotFound(c, "no conversation turns recorded yet")
		return
	}

	snapshot, err := h.container.Records.GetQuality(c.Request.Context(), callSID)
	if err != nil || snapshot == nil {
		errors.NotFound(c, "no quality report for call")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"call_sid": callSID,
		"live":     false,
		"quality":  snapshot,
	})
}
