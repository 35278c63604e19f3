package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/troikatech/voice-core/internal/voice"
	"github.com/troikatech/voice-core/internal/voice/session"
	"github.com/troikatech/voice-core/pkg/breaker"
	"github.com/troikatech/voice-core/pkg/env"
	"github.com/troikatech/voice-core/pkg/logger"
)

func newTestRouter() (*gin.Engine, *voice.Container) {
	gin.SetMode(gin.TestMode)
	logger.Log = zap.NewNop()

	container := &voice.Container{
		Breakers: breaker.NewRegistry(breaker.DefaultConfig(), zap.NewNop()),
		Sessions: session.NewRegistry(),
	}
	h := NewHandler(&env.Config{}, nil, nil, container)

	router := gin.New()
	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", h.GetMetrics)
	router.GET("/metrics/prometheus", h.GetPrometheusMetrics)
	router.GET("/api/breakers", h.ListBreakers)
	router.POST("/api/breakers/:service/reset", h.ResetBreaker)
	return router, container
}

func doRequest(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	router, _ := newTestRouter()
	w := doRequest(router, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if resp.Services["redis"] != "disabled" || resp.Services["database"] != "disabled" {
		t.Errorf("services = %v, want redis and database disabled", resp.Services)
	}
}

func TestGetMetrics(t *testing.T) {
	router, _ := newTestRouter()
	w := doRequest(router, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if _, ok := m["active_sessions"]; !ok {
		t.Errorf("metrics missing active_sessions: %v", m)
	}
}

func TestListBreakers(t *testing.T) {
	router, container := newTestRouter()

	// Touch one breaker so the list is non-empty.
	container.Breakers.Call(context.Background(), "synthesis", func(context.Context) error {
		return nil
	})

	w := doRequest(router, http.MethodGet, "/api/breakers")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Breakers []breaker.Stats `json:"breakers"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(resp.Breakers) != 1 {
		t.Fatalf("got %d breakers, want 1", len(resp.Breakers))
	}
	if resp.Breakers[0].State != "closed" {
		t.Errorf("state = %q, want closed", resp.Breakers[0].State)
	}
}

func TestResetBreaker(t *testing.T) {
	router, container := newTestRouter()

	boom := errors.New("boom")
	for i := 0; i < 10; i++ {
		container.Breakers.Call(context.Background(), "synthesis", func(context.Context) error {
			return boom
		})
	}
	if container.Breakers.GetStats("synthesis").State != "open" {
		t.Fatal("breaker did not open")
	}

	w := doRequest(router, http.MethodPost, "/api/breakers/synthesis/reset")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if container.Breakers.GetStats("synthesis").State != "closed" {
		t.Error("breaker not closed after reset")
	}
}
