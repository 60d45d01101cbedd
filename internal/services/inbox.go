package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/config"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/dataset"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/ingest"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/models"
	"github.com/google/uuid"
)

// ErrRetryable marks inbox failures the event source should redeliver.
var ErrRetryable = errors.New("retryable ingest failure")

// GCSEvent is the payload of a Cloud Storage object finalize event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// ObjectReader downloads an object from any bucket.
type ObjectReader interface {
	ReadObject(ctx context.Context, bucket, object string) ([]byte, error)
}

// InboxFunction ingests PDFs dropped under inbox/ in a bucket.
type InboxFunction struct {
	app     *App
	objects ObjectReader
}

// NewInbox loads configuration from the environment and builds the function.
// The store backend must be GCS.
func NewInbox(ctx context.Context) (*InboxFunction, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	app, err := NewApp(ctx, cfg)
	if err != nil {
		return nil, err
	}
	gcs, err := app.GCS()
	if err != nil {
		app.Close()
		return nil, err
	}
	slog.Info("Inbox function initialized.", "bucket", cfg.Store.Bucket)
	return &InboxFunction{app: app, objects: gcs}, nil
}

// NewInboxFunction wraps an existing App and object reader.
func NewInboxFunction(app *App, objects ObjectReader) *InboxFunction {
	return &InboxFunction{app: app, objects: objects}
}

// Process ingests the object named by e. Objects outside the inbox and non-PDFs
// are ignored. Only storage failures and cancellation are returned as errors so
// the event is redelivered; duplicates, extraction failures and schema conflicts
// would fail the same way again.
func (f *InboxFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	if !strings.HasPrefix(e.Name, dataset.InboxPrefix) || strings.HasSuffix(e.Name, "/") {
		logCtx.Info("Object is outside the inbox. Skipping.")
		return nil
	}
	if !strings.EqualFold(path.Ext(e.Name), ".pdf") {
		logCtx.Info("Object is not a PDF. Skipping.")
		return nil
	}
	logCtx.Info("Processing new inbox object.")

	content, err := f.objects.ReadObject(ctx, e.Bucket, e.Name)
	if err != nil {
		logCtx.Error("Failed to download inbox object", "error", err)
		return fmt.Errorf("%w: %w", ErrRetryable, err)
	}

	rec := ingest.NewUploadRecord(path.Base(e.Name), content)
	outcome := f.app.IngestBatch(ctx, uuid.NewString(), []models.UploadRecord{rec})[0]
	logCtx = logCtx.With("fingerprint", outcome.Fingerprint, "status", outcome.Status)

	switch outcome.Status {
	case models.OutcomeIngested, models.OutcomeAlreadyProcessed:
		logCtx.Info("Inbox object handled.")
		return nil
	case models.OutcomeStorageUnavailable, models.OutcomeCancelled:
		logCtx.Warn("Inbox object will be retried.", "reason", outcome.Reason)
		return fmt.Errorf("%w: %s: %s", ErrRetryable, outcome.Status, outcome.Reason)
	default:
		logCtx.Error("Inbox object could not be ingested.", "reason", outcome.Reason)
		return nil
	}
}
