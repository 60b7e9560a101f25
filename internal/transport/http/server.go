// Package http provides the HTTP server of the runtime layer.
package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/metrics"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/service"
	v1 "github.com/huythanhnguyen/mm-chatbot-v-oct/internal/transport/http/v1"
)

// NewServer creates and configures the operations HTTP server: health,
// metrics, runtime stats and session endpoints.
func NewServer(rt *service.Runtime, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	v1.NewHandler(rt, m).RegisterRoutes(e)

	return e
}
