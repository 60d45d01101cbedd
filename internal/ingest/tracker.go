package ingest

import (
	"context"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/models"
)

// Tracker receives informational status updates per fingerprint. Failures are
// logged and never affect ingestion.
type Tracker interface {
	Record(ctx context.Context, update models.StatusUpdate) error
}

type nopTracker struct{}

func (nopTracker) Record(context.Context, models.StatusUpdate) error { return nil }
