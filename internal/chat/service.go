// Package chat answers natural-language questions about the ingested trials,
// either by generating SQL over the dataset or by ranking trial summaries.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/dataset"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/llm"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/models"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/query"
)

// Modes accepted by Ask.
const (
	ModeAuto   = "auto"
	ModeSQL    = "sql"
	ModeSearch = "search"
)

const (
	DefaultTimeout = 60 * time.Second
	DefaultTopK    = 5

	noDataAnswer    = "No trial protocols have been ingested yet."
	noMatchesAnswer = "No ingested trial summaries match that question."
)

var (
	ErrEmptyQuestion = errors.New("question must not be empty")
	ErrUnknownMode   = errors.New("unknown chat mode")
	// ErrQueryFailed wraps failures to generate or run SQL.
	ErrQueryFailed = errors.New("sql query failed")
)

// Service answers chat questions.
type Service struct {
	completer llm.Completer
	reader    *dataset.Reader
	engine    *query.Engine
	timeout   time.Duration
	topK      int
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithTimeout(d time.Duration) Option { return func(s *Service) { s.timeout = d } }
func WithTopK(k int) Option              { return func(s *Service) { s.topK = k } }
func WithLogger(l *slog.Logger) Option   { return func(s *Service) { s.logger = l } }

// NewService creates a chat service.
func NewService(completer llm.Completer, reader *dataset.Reader, engine *query.Engine, opts ...Option) *Service {
	s := &Service{
		completer: completer,
		reader:    reader,
		engine:    engine,
		timeout:   DefaultTimeout,
		topK:      DefaultTopK,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "chat")
	return s
}

// Ask answers question in the given mode. An empty mode means auto, which tries
// SQL first and falls back to summary search.
func (s *Service) Ask(ctx context.Context, question, mode string) (*models.ChatResponse, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	logCtx := s.logger.With("mode", mode)

	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeSQL:
		return s.askSQL(ctx, question)
	case ModeSearch:
		return s.askSearch(ctx, question)
	case ModeAuto, "":
		resp, err := s.askSQL(ctx, question)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}
		logCtx.Warn("SQL answer failed, falling back to summary search.", "error", err)
		return s.askSearch(ctx, question)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

func (s *Service) askSQL(ctx context.Context, question string) (*models.ChatResponse, error) {
	ds, version, err := s.reader.Dataset(ctx)
	if err != nil {
		return nil, err
	}
	if ds.Len() == 0 {
		return &models.ChatResponse{Answer: noDataAnswer, Mode: ModeSQL}, nil
	}
	table := ds.Table()
	if err := s.engine.Load(ctx, table, strconv.FormatInt(int64(version), 10)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	generated, err := s.completer.Complete(ctx, sqlSystemPrompt, sqlPrompt(table.Columns, question))
	if err != nil {
		return nil, err
	}
	statement := llm.StripFences(generated)
	res, err := s.engine.Query(ctx, statement)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	answer, err := s.completer.Complete(ctx, answerSystemPrompt, sqlAnswerPrompt(question, statement, res))
	if err != nil {
		return nil, err
	}
	return &models.ChatResponse{
		Answer:  answer,
		Mode:    ModeSQL,
		SQL:     statement,
		Columns: res.Columns,
		Rows:    res.Rows,
	}, nil
}

func (s *Service) askSearch(ctx context.Context, question string) (*models.ChatResponse, error) {
	summaries, err := s.reader.Summaries(ctx)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return &models.ChatResponse{Answer: noDataAnswer, Mode: ModeSearch}, nil
	}
	hits := Rank(question, summaries, s.topK)
	if len(hits) == 0 {
		return &models.ChatResponse{Answer: noMatchesAnswer, Mode: ModeSearch}, nil
	}

	answer, err := s.completer.Complete(ctx, answerSystemPrompt, searchAnswerPrompt(question, hits))
	if err != nil {
		return nil, err
	}
	sources := make([]string, len(hits))
	for i, h := range hits {
		sources[i] = h.Fingerprint
	}
	return &models.ChatResponse{Answer: answer, Mode: ModeSearch, Sources: sources}, nil
}
