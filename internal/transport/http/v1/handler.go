// Package v1 provides the HTTP handlers of the runtime layer.
package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/metrics"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	runtime *service.Runtime
	metrics *metrics.Metrics
}

// NewHandler creates a new handler.
func NewHandler(rt *service.Runtime, m *metrics.Metrics) *Handler {
	return &Handler{
		runtime: rt,
		metrics: m,
	}
}

// RegisterRoutes registers routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	if h.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.metrics.Handler()))
	}

	e.GET("/v1/stats", h.GetStats)
	e.GET("/v1/stats/stream", h.StreamStats)
	e.POST("/v1/context/trim", h.TrimContext)

	// Session API
	e.GET("/v1/sessions/:session_id/state", h.GetSessionState)
	e.POST("/v1/sessions/:session_id/dialogs", h.SaveDialog)
	e.POST("/v1/sessions/:session_id/preferences", h.SetPreferences)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": "0.1.0",
	})
}

// GetStats returns the latency average, queue depth and index row counts.
// GET /v1/stats
func (h *Handler) GetStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.runtime.Stats(c.Request().Context()))
}
