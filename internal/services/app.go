package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/blob"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/chat"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/config"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/dataset"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/extract"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/gcp"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/ingest"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/llm"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/models"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/query"
)

// App holds the clients and services shared by every entry point.
type App struct {
	Config    *config.Config
	Store     blob.Store
	Completer llm.Completer
	Extractor ingest.Extractor
	Reader    *dataset.Reader
	Engine    *query.Engine
	Chat      *chat.Service

	tracker *gcp.FirestoreTracker
	closers []io.Closer
}

// NewApp builds the store, completion backend, extractor and chat service named by cfg.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &App{Config: cfg}

	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Store = store
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	completer, err := newCompleter(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a.assemble(ctx, completer)
}

// NewAppWith builds an App over an existing store and completer. Firestore tracking
// is still enabled when cfg names a collection.
func NewAppWith(ctx context.Context, cfg *config.Config, store blob.Store, completer llm.Completer) (*App, error) {
	a := &App{Config: cfg, Store: store}
	return a.assemble(ctx, completer)
}

func (a *App) assemble(ctx context.Context, completer llm.Completer) (*App, error) {
	cfg := a.Config
	a.Completer = completer
	if c, ok := completer.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	a.Extractor = extract.NewProtocolExtractor(completer,
		extract.WithChunkSize(cfg.Ingest.ChunkSize),
		extract.WithParallelism(cfg.Ingest.SectionParallelism),
	)
	a.Reader = dataset.NewReader(a.Store)

	engine, err := query.Open(cfg.Chat.MaxRows)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open query engine: %w", err)
	}
	a.Engine = engine
	a.closers = append(a.closers, engine)
	a.Chat = chat.NewService(completer, a.Reader, engine,
		chat.WithTimeout(cfg.Chat.Timeout),
		chat.WithTopK(cfg.Chat.TopK),
	)

	if cfg.GCP.FirestoreCollection != "" {
		client, err := gcp.NewFirestoreClient(ctx, cfg.GCP.ProjectID)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.tracker = gcp.NewFirestoreTracker(client, cfg.GCP.FirestoreCollection)
		a.closers = append(a.closers, a.tracker)
	}

	slog.Info("Application initialized.",
		"store", cfg.Store.Backend,
		"llm", cfg.LLM.Backend,
		"model", cfg.LLM.Model,
		"tracking", a.tracker != nil)
	return a, nil
}

// Pipeline returns an ingestion pipeline whose status records carry batchID.
func (a *App) Pipeline(batchID string) *ingest.Pipeline {
	cfg := a.Config.Ingest
	opts := []ingest.Option{
		ingest.WithCommitAttempts(cfg.CommitAttempts),
		ingest.WithExtractAttempts(cfg.ExtractAttempts),
		ingest.WithBackoff(cfg.Backoff),
		ingest.WithExtractTimeout(cfg.ExtractTimeout),
		ingest.WithParallelism(cfg.Parallelism),
		ingest.WithLogger(slog.Default().With("batchId", batchID)),
	}
	if a.tracker != nil {
		opts = append(opts, ingest.WithTracker(a.tracker.WithBatch(batchID)))
	}
	return ingest.New(a.Store, a.Extractor, opts...)
}

// IngestBatch runs records through a pipeline for batchID.
func (a *App) IngestBatch(ctx context.Context, batchID string, records []models.UploadRecord) []models.Outcome {
	return a.Pipeline(batchID).Ingest(ctx, records)
}

// GCS returns the Cloud Storage backend, or an error when another backend is configured.
func (a *App) GCS() (*gcp.GCSStore, error) {
	s, ok := a.Store.(*gcp.GCSStore)
	if !ok {
		return nil, fmt.Errorf("store backend %q does not support bucket events", a.Config.Store.Backend)
	}
	return s, nil
}

// Close releases every client the App opened, in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// OpenStore opens the object store backend named by cfg.
func OpenStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.Store.Backend {
	case config.StoreMemory:
		return blob.NewMemory(), nil
	case config.StoreBadger:
		store, err := blob.OpenBadger(cfg.Store.BadgerDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open badger store: %w", err)
		}
		return store, nil
	case config.StoreGCS:
		return gcp.NewGCSStore(ctx, cfg.Store.Bucket)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func newCompleter(ctx context.Context, cfg *config.Config) (llm.Completer, error) {
	switch cfg.LLM.Backend {
	case config.LLMVertex:
		return gcp.NewVertexCompleter(ctx, cfg.GCP.ProjectID, cfg.GCP.Region, cfg.LLM.Model)
	case config.LLMOpenAI:
		return llm.NewOpenAICompleter(llm.OpenAIConfig{
			BaseURL:     cfg.LLM.BaseURL,
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
		})
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.LLM.Backend)
	}
}
