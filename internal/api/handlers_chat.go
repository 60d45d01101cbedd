// handlers_chat.go - Explore chat handler
package api

import (
	"net/http"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/models"
	"github.com/labstack/echo/v4"
)

// HandleChat answers a question about the ingested trials.
func (h *Handler) HandleChat(c echo.Context) error {
	var req models.ChatRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}
	resp, err := h.asker.Ask(c.Request().Context(), req.Question, req.Mode)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}
