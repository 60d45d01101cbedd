package ingest

import (
	"context"
	"errors"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/models"
)

var (
	// ErrDuplicateSkipped reports a fingerprint that already has a dataset row.
	ErrDuplicateSkipped = errors.New("duplicate skipped")
	// ErrExtractionFailed reports an extractor error after all retries.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrStorageUnavailable reports object store failures, including exhausted commit retries.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrSchemaConflict reports a value whose type disagrees with its column.
	ErrSchemaConflict = errors.New("schema conflict")
	// ErrCommitConflict is a lost compare-and-swap on the dataset. It is retried and
	// only surfaces wrapped in ErrStorageUnavailable.
	ErrCommitConflict = errors.New("commit conflict")
)

// statusOf maps a per-file error onto its outcome status.
func statusOf(err error) string {
	switch {
	case err == nil:
		return models.OutcomeIngested
	case errors.Is(err, ErrDuplicateSkipped):
		return models.OutcomeAlreadyProcessed
	case errors.Is(err, ErrExtractionFailed):
		return models.OutcomeExtractionFailed
	case errors.Is(err, ErrSchemaConflict):
		return models.OutcomeSchemaConflict
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return models.OutcomeCancelled
	default:
		return models.OutcomeStorageUnavailable
	}
}

func outcomeOf(fingerprint, filename string, recovered bool, err error) models.Outcome {
	out := models.Outcome{
		Fingerprint: fingerprint,
		Filename:    filename,
		Status:      statusOf(err),
		Recovered:   recovered && err == nil,
	}
	if err != nil {
		out.Reason = err.Error()
	}
	return out
}
