package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

func (h *Handler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	services := map[string]string{
		"api":      "healthy",
		"database": "unknown",
		"redis":    "unknown",
	}

	if h.redisClient != nil {
		if err := h.redisClient.Ping(ctx).Err(); err != nil {
			services["redis"] = "unhealthy"
		} else {
			services["redis"] = "healthy"
		}
	} else {
		services["redis"] = "disabled"
	}

	if h.mongoClient != nil {
		if err := h.mongoClient.Ping(ctx); err != nil {
			services["database"] = "unhealthy"
		} else {
			services["database"] = "healthy"
		}
	} else {
		services["database"] = "disabled"
	}

	if h.cfg.FeatureAI {
		if h.container.Reasoner != nil && h.container.Reasoner.IsAvailable() {
			services["reasoning"] = h.container.Reasoner.Name()
		} else {
			services["reasoning"] = "unavailable"
		}
		if h.container.Synthesizer != nil && h.container.Synthesizer.IsAvailable() {
			services["synthesis"] = h.container.Synthesizer.Name()
		} else {
			services["synthesis"] = "unavailable"
		}
		if h.container.Transcriber != nil && h.container.Transcriber.IsAvailable() {
			services["transcription"] = h.container.Transcriber.Name()
		} else {
			services["transcription"] = "unavailable"
		}
		if h.container.Emotion != nil && h.container.Emotion.IsAvailable() {
			services["emotion"] = h.container.Emotion.Name()
		}
	}

	status := "healthy"
	for _, v := range services {
		if v == "unhealthy" {
			status = "degraded"
			break
		}
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  services,
	})
}
