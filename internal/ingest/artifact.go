package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/blob"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/dataset"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/extract"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/models"
)

// prepared is a record whose artifact is committed and which only needs its row.
type prepared struct {
	fingerprint string
	filename    string
	formData    models.FormData
	recovered   bool
	pageCount   int
}

// prepare runs everything up to and including the artifact commit. It never
// touches the dataset object.
func (p *Pipeline) prepare(ctx context.Context, rec models.UploadRecord) (*prepared, error) {
	fp := rec.Fingerprint
	logCtx := p.logger.With("fingerprint", fp, "filename", rec.DisplayName)

	ds, _, err := dataset.Load(ctx, p.store)
	if err != nil {
		return nil, p.storageErr(ctx, "check dataset", err)
	}
	if ds.Contains(fp) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSkipped, fp)
	}

	prep := &prepared{fingerprint: fp, filename: rec.DisplayName}

	// An artifact without a row is left behind when a run stops between the
	// artifact commit and the append. Reuse it instead of extracting again.
	art, err := dataset.ReadArtifact(ctx, p.store, fp)
	switch {
	case err == nil:
		logCtx.Info("Recovering committed artifact without dataset row.")
		prep.formData = art.FormData
		prep.recovered = true
		return prep, nil
	case !errors.Is(err, dataset.ErrArtifactNotFound):
		return nil, p.storageErr(ctx, "check artifact", err)
	}

	if err := p.putRaw(ctx, rec); err != nil {
		return nil, err
	}

	p.track(ctx, rec, models.StatusExtracting, "", 0)
	res, err := p.extractWithRetry(ctx, rec)
	if err != nil {
		return nil, err
	}

	fd, err := p.putArtifact(ctx, fp, res)
	if err != nil {
		return nil, err
	}
	prep.formData = fd
	prep.pageCount = res.PageCount
	return prep, nil
}

func (p *Pipeline) putRaw(ctx context.Context, rec models.UploadRecord) error {
	for _, key := range []string{
		dataset.RawKey(rec.Fingerprint, rec.DisplayName),
		dataset.RawPDFKey(rec.Fingerprint),
	} {
		if _, err := blob.PutIfAbsent(ctx, p.store, key, rec.Content); err != nil {
			return p.storageErr(ctx, "write "+key, err)
		}
	}
	return nil
}

func (p *Pipeline) extractWithRetry(ctx context.Context, rec models.UploadRecord) (*extract.Result, error) {
	logCtx := p.logger.With("fingerprint", rec.Fingerprint, "filename", rec.DisplayName)

	var lastErr error
	for attempt := 1; attempt <= p.extractAttempts; attempt++ {
		if attempt > 1 {
			if err := p.sleepBackoff(ctx, attempt-1); err != nil {
				return nil, err
			}
		}
		res, err := p.extractOnce(ctx, rec.Content)
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		if errors.Is(err, extract.ErrInvalidPDF) || errors.Is(err, extract.ErrNoText) {
			break
		}
		logCtx.Warn("Extraction failed, will retry.", "attempt", attempt, "error", err)
	}
	return nil, fmt.Errorf("%w: %w", ErrExtractionFailed, lastErr)
}

func (p *Pipeline) extractOnce(ctx context.Context, content []byte) (*extract.Result, error) {
	if p.extractTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.extractTimeout)
		defer cancel()
	}
	res, err := p.extractor.Extract(ctx, content)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, errors.New("extractor returned no result")
	}
	return res, nil
}

// putArtifact writes form_data.json and then summary.txt, both create-if-absent.
// The summary is the commit marker, so a visible summary always has its form data.
// When another writer already stored form data for this fingerprint, that copy
// is returned so every row is built from the persisted artifact.
func (p *Pipeline) putArtifact(ctx context.Context, fp string, res *extract.Result) (models.FormData, error) {
	data, err := res.FormData.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("%w: encode form data: %w", ErrExtractionFailed, err)
	}

	created, err := blob.PutIfAbsent(ctx, p.store, dataset.FormDataKey(fp), data)
	if err != nil {
		return nil, p.storageErr(ctx, "write form data", err)
	}
	fd := res.FormData
	if !created {
		if fd, err = dataset.ReadFormData(ctx, p.store, fp); err != nil {
			return nil, p.storageErr(ctx, "reload form data", err)
		}
	}

	if _, err := blob.PutIfAbsent(ctx, p.store, dataset.SummaryKey(fp), []byte(res.Summary)); err != nil {
		return nil, p.storageErr(ctx, "write summary", err)
	}
	return fd, nil
}

// storageErr classifies a store failure, preserving cancellation.
func (p *Pipeline) storageErr(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}
