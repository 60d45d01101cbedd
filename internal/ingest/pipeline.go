// Package ingest folds uploaded protocol documents into the cumulative dataset.
//
// Each document is identified by the SHA-256 of its content. Artifacts are
// written create-if-absent under that fingerprint, and the dataset row is
// appended with an optimistic compare-and-swap on the dataset object, so repeated
// or concurrent uploads of the same content produce exactly one row.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/blob"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/extract"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/models"
	"golang.org/x/sync/errgroup"
)

// Extractor turns document bytes into a summary and form data.
type Extractor interface {
	Extract(ctx context.Context, pdf []byte) (*extract.Result, error)
}

// Default tuning.
const (
	DefaultCommitAttempts  = 5
	DefaultExtractAttempts = 3
	DefaultBackoff         = 500 * time.Millisecond
	DefaultExtractTimeout  = 5 * time.Minute

	maxBackoff = 30 * time.Second
)

// Pipeline ingests batches of upload records.
type Pipeline struct {
	store     blob.Store
	extractor Extractor
	tracker   Tracker
	logger    *slog.Logger

	commitAttempts  int
	extractAttempts int
	backoff         time.Duration
	extractTimeout  time.Duration
	parallelism     int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithCommitAttempts bounds compare-and-swap attempts per row.
func WithCommitAttempts(n int) Option {
	return func(p *Pipeline) { p.commitAttempts = n }
}

// WithExtractAttempts bounds extractor calls per document.
func WithExtractAttempts(n int) Option {
	return func(p *Pipeline) { p.extractAttempts = n }
}

// WithBackoff sets the initial retry delay. It doubles on each retry.
func WithBackoff(d time.Duration) Option {
	return func(p *Pipeline) { p.backoff = d }
}

// WithExtractTimeout bounds a single extractor call.
func WithExtractTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.extractTimeout = d }
}

// WithParallelism lets up to n documents be extracted concurrently. Rows are
// still committed one at a time in input order.
func WithParallelism(n int) Option {
	return func(p *Pipeline) { p.parallelism = n }
}

// WithTracker reports status transitions to t.
func WithTracker(t Tracker) Option {
	return func(p *Pipeline) { p.tracker = t }
}

// New creates a pipeline writing to store.
func New(store blob.Store, extractor Extractor, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:           store,
		extractor:       extractor,
		tracker:         nopTracker{},
		logger:          slog.Default(),
		commitAttempts:  DefaultCommitAttempts,
		extractAttempts: DefaultExtractAttempts,
		backoff:         DefaultBackoff,
		extractTimeout:  DefaultExtractTimeout,
		parallelism:     1,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.commitAttempts < 1 {
		p.commitAttempts = 1
	}
	if p.extractAttempts < 1 {
		p.extractAttempts = 1
	}
	if p.parallelism < 1 {
		p.parallelism = 1
	}
	p.logger = p.logger.With("component", "ingest-pipeline")
	return p
}

// Ingest processes batch and returns one outcome per record, in input order.
// A failure on one record never affects the others. Once ctx is done, records
// not yet committed are reported as cancelled; committed ones stay valid.
func (p *Pipeline) Ingest(ctx context.Context, records []models.UploadRecord) []models.Outcome {
	batch := make([]models.UploadRecord, len(records))
	for i, rec := range records {
		rec.Fingerprint = Fingerprint(rec.Content)
		batch[i] = rec
	}
	p.logger.Info("Ingesting batch.", "files", len(batch), "parallelism", p.parallelism)

	if p.parallelism == 1 || len(batch) < 2 {
		outcomes := make([]models.Outcome, len(batch))
		for i, rec := range batch {
			outcomes[i] = p.ingestOne(ctx, rec)
		}
		return outcomes
	}
	return p.ingestParallel(ctx, batch)
}

func (p *Pipeline) ingestOne(ctx context.Context, rec models.UploadRecord) models.Outcome {
	if err := ctx.Err(); err != nil {
		return outcomeOf(rec.Fingerprint, rec.DisplayName, false, err)
	}
	prep, err := p.prepare(ctx, rec)
	if err == nil {
		err = p.commit(ctx, prep)
	}
	return p.finish(ctx, rec, prep, err)
}

// ingestParallel prepares records concurrently and commits them in input order as
// soon as each one and all of its predecessors are ready. Repeated fingerprints
// within the batch are prepared at commit time so they see the first copy's row.
func (p *Pipeline) ingestParallel(ctx context.Context, batch []models.UploadRecord) []models.Outcome {
	type result struct {
		prep *prepared
		err  error
	}
	results := make([]result, len(batch))
	ready := make([]chan struct{}, len(batch))
	seen := make(map[string]bool, len(batch))
	deferred := make([]bool, len(batch))
	for i, rec := range batch {
		ready[i] = make(chan struct{})
		if seen[rec.Fingerprint] {
			deferred[i] = true
			close(ready[i])
		}
		seen[rec.Fingerprint] = true
	}

	var g errgroup.Group
	g.SetLimit(p.parallelism)
	launched := make(chan struct{})
	go func() {
		defer close(launched)
		for i := range batch {
			if deferred[i] {
				continue
			}
			g.Go(func() error {
				defer close(ready[i])
				if err := ctx.Err(); err != nil {
					results[i].err = err
					return nil
				}
				results[i].prep, results[i].err = p.prepare(ctx, batch[i])
				return nil
			})
		}
		_ = g.Wait()
	}()

	outcomes := make([]models.Outcome, len(batch))
	for i, rec := range batch {
		<-ready[i]
		if deferred[i] {
			outcomes[i] = p.ingestOne(ctx, rec)
			continue
		}
		prep, err := results[i].prep, results[i].err
		if err == nil {
			if cerr := ctx.Err(); cerr != nil {
				err = cerr
			} else {
				err = p.commit(ctx, prep)
			}
		}
		outcomes[i] = p.finish(ctx, rec, prep, err)
	}
	<-launched
	return outcomes
}

// finish logs and tracks the final state of a record.
func (p *Pipeline) finish(ctx context.Context, rec models.UploadRecord, prep *prepared, err error) models.Outcome {
	recovered := prep != nil && prep.recovered
	out := outcomeOf(rec.Fingerprint, rec.DisplayName, recovered, err)
	logCtx := p.logger.With("fingerprint", rec.Fingerprint, "filename", rec.DisplayName, "status", out.Status)

	status := models.StatusFailed
	switch out.Status {
	case models.OutcomeIngested:
		status = models.StatusCommitted
		logCtx.Info("Document ingested.", "recovered", out.Recovered)
	case models.OutcomeAlreadyProcessed:
		status = models.StatusDuplicate
		logCtx.Info("Duplicate file detected. Skipping.")
	case models.OutcomeExtractionFailed:
		status = models.StatusExtractionFailed
		logCtx.Warn("Extraction failed.", "reason", out.Reason)
	case models.OutcomeCancelled:
		logCtx.Warn("Ingestion cancelled.", "reason", out.Reason)
		return out
	default:
		logCtx.Error("Ingestion failed.", "reason", out.Reason)
	}
	pages := 0
	if prep != nil {
		pages = prep.pageCount
	}
	p.track(ctx, rec, status, out.Reason, pages)
	return out
}

func (p *Pipeline) track(ctx context.Context, rec models.UploadRecord, status, detail string, pageCount int) {
	update := models.StatusUpdate{
		Fingerprint: rec.Fingerprint,
		Filename:    rec.DisplayName,
		Status:      status,
		Detail:      detail,
		PageCount:   pageCount,
	}
	if err := p.tracker.Record(ctx, update); err != nil {
		p.logger.Warn("Failed to record status.", "fingerprint", rec.Fingerprint, "status", status, "error", err)
	}
}

// sleepBackoff waits for the delay of the given retry (1-based), doubling each
// time up to maxBackoff.
func (p *Pipeline) sleepBackoff(ctx context.Context, retry int) error {
	delay := p.backoff
	for i := 1; i < retry && delay < maxBackoff; i++ {
		delay *= 2
	}
	delay = min(delay, maxBackoff)
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
