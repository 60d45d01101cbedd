// Package extract turns a clinical trial protocol PDF into a summary and a flat
// set of form fields using a completion API.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Lllllllleong/clinicaltrialexplorer/internal/llm"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/models"
	"golang.org/x/sync/errgroup"
)

// Result is the output of one extraction.
type Result struct {
	Summary   string
	FormData  models.FormData
	PageCount int
}

// ProtocolExtractor runs the section catalogue against a document.
type ProtocolExtractor struct {
	completer   llm.Completer
	chunkSize   int
	parallelism int
	logger      *slog.Logger
}

// Option configures a ProtocolExtractor.
type Option func(*ProtocolExtractor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *ProtocolExtractor) { e.logger = logger }
}

// WithChunkSize overrides MaxChunkSize.
func WithChunkSize(n int) Option {
	return func(e *ProtocolExtractor) { e.chunkSize = n }
}

// WithParallelism bounds concurrent section prompts.
func WithParallelism(n int) Option {
	return func(e *ProtocolExtractor) { e.parallelism = n }
}

// NewProtocolExtractor creates an extractor backed by completer.
func NewProtocolExtractor(completer llm.Completer, opts ...Option) *ProtocolExtractor {
	e := &ProtocolExtractor{
		completer:   completer,
		chunkSize:   MaxChunkSize,
		parallelism: 3,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.parallelism < 1 {
		e.parallelism = 1
	}
	e.logger = e.logger.With("component", "protocol-extractor")
	return e
}

// Extract validates the PDF, pulls its text and runs ExtractText.
func (e *ProtocolExtractor) Extract(ctx context.Context, pdf []byte) (*Result, error) {
	pageCount, err := Inspect(pdf)
	if err != nil {
		return nil, err
	}
	text, err := PlainText(pdf, e.logger)
	if err != nil {
		return nil, err
	}
	res, err := e.ExtractText(ctx, text)
	if err != nil {
		return nil, err
	}
	res.PageCount = pageCount
	return res, nil
}

// ExtractText runs every catalogue section over text. A completion failure fails
// the whole extraction; an unparseable or refused section only loses its fields.
func (e *ProtocolExtractor) ExtractText(ctx context.Context, text string) (*Result, error) {
	chunks := Chunk(text, e.chunkSize)
	if len(chunks) == 0 {
		return nil, ErrNoText
	}
	doc := newDocument(chunks)
	e.logger.Info("Extracting protocol fields.", "chunks", len(chunks), "sections", len(catalogue))

	sections := make([]models.FormData, len(catalogue))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i, sec := range catalogue {
		g.Go(func() error {
			fd, err := e.runSection(gctx, sec, doc.pick(sec))
			if err != nil {
				return fmt.Errorf("section %s: %w", sec.name, err)
			}
			sections[i] = fd
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var form models.FormData
	for _, fd := range sections {
		for _, f := range fd {
			form.Set(f.Name, f.Value)
		}
	}
	return &Result{Summary: summarize(form), FormData: form}, nil
}

func (e *ProtocolExtractor) runSection(ctx context.Context, sec section, text string) (models.FormData, error) {
	logCtx := e.logger.With("section", sec.name)

	out, err := llm.CompleteJSON(ctx, e.completer, SystemPrompt, sec.prompt+"\n\nDocument text:\n"+text)
	if err != nil {
		return nil, err
	}

	var fd models.FormData
	if llm.Refused(out) {
		logCtx.Warn("Model refused section, using defaults.")
	} else if parsed, perr := models.ParseFormData([]byte(trimToObject(out))); perr != nil {
		logCtx.Warn("Failed to parse section response, using defaults.", "error", perr)
	} else {
		fd = parsed
	}

	for _, d := range sec.defaults {
		if v, ok := fd.Get(d.Name); !ok || v == nil || v == "" {
			fd.Set(d.Name, d.Value)
		}
	}

	result := make(models.FormData, 0, len(fd))
	for _, f := range fd {
		name := f.Name
		if sec.nest != "" {
			name = sec.nest + "." + name
		}
		result = append(result, models.Field{Name: name, Value: normalize(name, f.Value)})
	}
	return result, nil
}

// normalize keeps numeric fields numeric and renders everything else as text.
func normalize(name string, v any) any {
	if v == nil {
		return nil
	}
	if numericFields[name] {
		switch x := v.(type) {
		case float64:
			return x
		case string:
			n, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(x), ",", ""), 64)
			if err != nil {
				return nil
			}
			return n
		default:
			return nil
		}
	}
	return models.FormatScalar(v)
}

// trimToObject drops text before the first '{' and after the last '}'.
func trimToObject(s string) string {
	if i := strings.IndexByte(s, '{'); i > 0 {
		s = s[i:]
	}
	if j := strings.LastIndexByte(s, '}'); j >= 0 && j+1 < len(s) {
		s = s[:j+1]
	}
	return s
}

func summarize(form models.FormData) string {
	var parts []string
	for _, key := range []string{"brief_summary", "detailed_description"} {
		if v, ok := form.Get(key); ok {
			if s := strings.TrimSpace(models.FormatScalar(v)); s != "" {
				parts = append(parts, s)
			}
		}
	}
	if len(parts) == 0 {
		if v, ok := form.Get("official_title"); ok {
			return models.FormatScalar(v)
		}
	}
	return strings.Join(parts, "\n\n")
}

// document holds the views of the text that sections are run against.
type document struct {
	chunks []string
	main   string
	full   string
}

func newDocument(chunks []string) *document {
	n := min(3, len(chunks))
	return &document{
		chunks: chunks,
		main:   chunks[0],
		full:   strings.Join(chunks[:n], "\n\n"),
	}
}

func (d *document) pick(sec section) string {
	switch sec.source {
	case sourceMain:
		return d.main
	case sourceKeyword:
		for _, c := range d.chunks {
			lower := strings.ToLower(c)
			for _, kw := range sec.keywords {
				if strings.Contains(lower, kw) {
					return c
				}
			}
		}
	}
	return d.full
}
