package v1

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

const (
	defaultStreamInterval = 2 * time.Second
	minStreamInterval     = 100 * time.Millisecond
	streamWriteTimeout    = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamStats pushes runtime stats over a WebSocket until the client goes
// away. The period is set with interval_ms.
// GET /v1/stats/stream
func (h *Handler) StreamStats(c echo.Context) error {
	interval := defaultStreamInterval
	if v := c.QueryParam("interval_ms"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			interval = max(time.Duration(ms)*time.Millisecond, minStreamInterval)
		}
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	// The reader only drains control frames and notices the close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ctx := c.Request().Context()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ws.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err := ws.WriteJSON(h.runtime.Stats(ctx)); err != nil {
			return nil
		}

		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
