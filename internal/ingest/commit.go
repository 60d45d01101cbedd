package ingest

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/blob"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/dataset"
)

// commit appends the row for prep with an optimistic read-modify-write of the
// dataset object, retrying lost compare-and-swaps with backoff.
func (p *Pipeline) commit(ctx context.Context, prep *prepared) error {
	logCtx := p.logger.With("fingerprint", prep.fingerprint, "filename", prep.filename)

	var lastErr error
	// Row positions at which a write with an unknown result may have landed.
	var uncertain []int
	for attempt := 1; attempt <= p.commitAttempts; attempt++ {
		if attempt > 1 {
			if err := p.sleepBackoff(ctx, attempt-1); err != nil {
				return err
			}
		}

		ds, version, err := dataset.Load(ctx, p.store)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			logCtx.Warn("Failed to read dataset, will retry.", "attempt", attempt, "error", err)
			continue
		}
		if ds.Contains(prep.fingerprint) {
			if landed(ds, prep, uncertain) {
				logCtx.Info("Earlier dataset write landed despite its error.", "attempt", attempt)
				p.refreshCSV(ctx)
				return nil
			}
			return fmt.Errorf("%w: %s", ErrDuplicateSkipped, prep.fingerprint)
		}
		position := ds.Len()
		if err := ds.Append(prep.filename, prep.fingerprint, prep.formData); err != nil {
			if errors.Is(err, dataset.ErrTypeMismatch) {
				return fmt.Errorf("%w: %w", ErrSchemaConflict, err)
			}
			return err
		}
		data, err := ds.Encode()
		if err != nil {
			return fmt.Errorf("%w: encode dataset: %w", ErrStorageUnavailable, err)
		}

		cond := blob.IfMatch(version)
		if version == 0 {
			cond = blob.IfAbsent()
		}
		_, err = p.store.Put(ctx, dataset.TableKey, data, cond)
		if err == nil {
			logCtx.Debug("Dataset row committed.", "attempt", attempt, "rows", ds.Len())
			p.refreshCSV(ctx)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, blob.ErrPreconditionFailed) {
			lastErr = ErrCommitConflict
			logCtx.Info("Dataset changed concurrently, retrying commit.", "attempt", attempt)
			continue
		}
		lastErr = err
		uncertain = append(uncertain, position)
		logCtx.Warn("Dataset write failed, will retry.", "attempt", attempt, "error", err)
	}
	return fmt.Errorf("%w: %d commit attempts exhausted: %w", ErrStorageUnavailable, p.commitAttempts, lastErr)
}

// landed reports whether the row for prep sits exactly where one of this
// call's unacknowledged writes would have put it, with the same filename.
func landed(ds *dataset.Dataset, prep *prepared, uncertain []int) bool {
	i, ok := ds.Position(prep.fingerprint)
	if !ok || ds.Rows[i][dataset.ColumnFilename] != prep.filename {
		return false
	}
	return slices.Contains(uncertain, i)
}

// refreshCSV rewrites the CSV projection from the latest dataset. The CSV
// version is read before the dataset and the write is conditional on it, so a
// writer holding an older dataset loses the swap and rebuilds from a fresh read.
// It is derived data, so failures are only logged.
func (p *Pipeline) refreshCSV(ctx context.Context) {
	var lastErr error
	for attempt := 1; attempt <= p.commitAttempts; attempt++ {
		cond := blob.IfAbsent()
		current, err := p.store.Get(ctx, dataset.CSVKey)
		switch {
		case err == nil:
			cond = blob.IfMatch(current.Version)
		case !errors.Is(err, blob.ErrNotFound):
			lastErr = err
			continue
		}

		ds, _, err := dataset.Load(ctx, p.store)
		if err != nil {
			lastErr = err
			continue
		}
		data, err := ds.Table().CSV()
		if err != nil {
			lastErr = err
			break
		}
		if _, err = p.store.Put(ctx, dataset.CSVKey, data, cond); err == nil {
			return
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if errors.Is(err, blob.ErrPreconditionFailed) {
			p.logger.Debug("CSV projection changed concurrently, rebuilding.", "attempt", attempt)
		}
	}
	p.logger.Warn("Failed to refresh CSV projection.", "error", lastErr)
}
