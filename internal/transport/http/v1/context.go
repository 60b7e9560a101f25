package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/domain"
)

type trimTurn struct {
	Role  string        `json:"role"`
	Parts []domain.Part `json:"parts"`
}

type trimRequest struct {
	Turns []trimTurn `json:"turns"`
}

type trimResponse struct {
	Turns       []domain.Turn `json:"turns"`
	Invocations int           `json:"invocations"`
	Kept        int           `json:"kept"`
	Evicted     int           `json:"evicted"`
	Tokens      int           `json:"tokens"`
	OverBudget  bool          `json:"over_budget"`
}

// TrimContext trims a conversation history to the configured budget.
// POST /v1/context/trim
func (h *Handler) TrimContext(c echo.Context) error {
	var req trimRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	turns := make([]domain.Turn, len(req.Turns))
	for i, t := range req.Turns {
		turns[i] = domain.Turn{Role: domain.ParseRole(t.Role), Parts: t.Parts}
	}

	res := h.runtime.PrepareHistory(turns)
	if res.Turns == nil {
		res.Turns = []domain.Turn{}
	}
	return c.JSON(http.StatusOK, trimResponse{
		Turns:       res.Turns,
		Invocations: res.Invocations,
		Kept:        res.Kept,
		Evicted:     res.Evicted,
		Tokens:      res.Tokens,
		OverBudget:  res.OverBudget,
	})
}
