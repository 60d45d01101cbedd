package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/config"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/ingest"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/models"
	"github.com/google/uuid"
)

// IngestFunction serves synchronous batch uploads posted as JSON.
type IngestFunction struct {
	app *App
}

// NewIngester loads configuration from the environment and builds the function.
func NewIngester(ctx context.Context) (*IngestFunction, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app, err := NewApp(ctx, cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("Ingest function initialized.", "bucket", cfg.Store.Bucket)
	return &IngestFunction{app: app}, nil
}

// NewIngestFunction wraps an existing App.
func NewIngestFunction(app *App) *IngestFunction {
	return &IngestFunction{app: app}
}

// Process decodes req and ingests its files as one batch. The returned error is
// only set for malformed requests; per-file failures are reported in the outcomes.
func (f *IngestFunction) Process(ctx context.Context, req *models.IngestRequest) (*models.IngestResponse, error) {
	records, err := ingest.RecordsFromRequest(req)
	if err != nil {
		return nil, err
	}
	batchID := req.BatchID
	if batchID == "" {
		batchID = uuid.NewString()
	}
	logCtx := slog.With("batchId", batchID, "files", len(records))
	logCtx.Info("Processing ingest request.")

	outcomes := f.app.IngestBatch(ctx, batchID, records)

	failed := 0
	for _, o := range outcomes {
		if !o.Succeeded() {
			failed++
		}
	}
	logCtx.Info("Ingest request complete.", "failed", failed)
	return &models.IngestResponse{BatchID: batchID, Outcomes: outcomes}, nil
}
