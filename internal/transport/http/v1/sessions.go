package v1

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/domain"
)

const maxBodyBytes = 1 << 20

type dialogRequest struct {
	UserQuestion string          `json:"user_question"`
	AgentAnswer  string          `json:"agent_answer"`
	Intent       string          `json:"intent"`
	KeyInfo      json.RawMessage `json:"key_info"`
}

// GetSessionState returns the structured state of a session.
// GET /v1/sessions/:session_id/state
func (h *Handler) GetSessionState(c echo.Context) error {
	snap, err := h.runtime.State(c.Param("session_id"))
	if errors.Is(err, domain.ErrEmptySessionID) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, snap)
}

// SaveDialog queues a dialog summary for persistence.
// POST /v1/sessions/:session_id/dialogs
func (h *Handler) SaveDialog(c echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": domain.ErrEmptySessionID.Error()})
	}

	var req dialogRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.UserQuestion == "" && req.AgentAnswer == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "user_question or agent_answer is required"})
	}

	// key_info may be sent as an object or as a JSON-encoded string.
	keyInfo := string(req.KeyInfo)
	var s string
	if json.Unmarshal(req.KeyInfo, &s) == nil {
		keyInfo = s
	}

	summary := h.runtime.SaveDialogSummary(sessionID, req.UserQuestion, req.AgentAnswer, req.Intent, keyInfo)
	return c.JSON(http.StatusAccepted, map[string]any{
		"status":  "queued",
		"summary": summary,
	})
}

// SetPreferences merges user preferences into the session.
// POST /v1/sessions/:session_id/preferences
func (h *Handler) SetPreferences(c echo.Context) error {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": domain.ErrEmptySessionID.Error()})
	}

	body, err := readBody(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	prefs, err := h.runtime.SetUserPreferences(sessionID, string(body))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":      "success",
		"preferences": prefs,
	})
}

func readBody(c echo.Context) ([]byte, error) {
	return io.ReadAll(io.LimitReader(c.Request().Body, maxBodyBytes))
}
