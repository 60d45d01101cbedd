// handlers.go - Handler dependencies shared by all endpoints
package api

import (
	"context"
	"net/http"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/dataset"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/models"
	"github.com/labstack/echo/v4"
)

// BatchIngester runs one upload batch through the ingestion pipeline.
type BatchIngester interface {
	IngestBatch(ctx context.Context, batchID string, records []models.UploadRecord) []models.Outcome
}

// Asker answers chat questions.
type Asker interface {
	Ask(ctx context.Context, question, mode string) (*models.ChatResponse, error)
}

// Handler serves the upload, data viewer and chat endpoints.
type Handler struct {
	ingester BatchIngester
	reader   *dataset.Reader
	asker    Asker
	version  string
}

// NewHandler creates a handler over the given services.
func NewHandler(ingester BatchIngester, reader *dataset.Reader, asker Asker, version string) *Handler {
	return &Handler{
		ingester: ingester,
		reader:   reader,
		asker:    asker,
		version:  version,
	}
}

// HandleHealth returns server health status
func (h *Handler) HandleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"version": h.version,
	})
}
