package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIConfig configures an OpenAI-compatible chat backend.
type OpenAIConfig struct {
	BaseURL     string // empty uses api.openai.com
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// OpenAICompleter implements Completer using langchaingo's OpenAI client.
type OpenAICompleter struct {
	client      llms.Model
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// NewOpenAICompleter creates a completer for the configured model.
func NewOpenAICompleter(cfg OpenAIConfig) (*OpenAICompleter, error) {
	if cfg.Model == "" {
		return nil, errors.New("openai model must be set")
	}
	token := cfg.APIKey
	if token == "" {
		// Local OpenAI-compatible servers accept any token.
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, err
	}
	return NewOpenAICompleterFromModel(client, cfg), nil
}

// NewOpenAICompleterFromModel wraps an existing langchaingo model.
func NewOpenAICompleterFromModel(model llms.Model, cfg OpenAIConfig) *OpenAICompleter {
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &OpenAICompleter{
		client:      model,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		logger:      slog.Default().With("component", "openai-completer"),
	}
}

// Complete implements Completer.
func (c *OpenAICompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.generate(ctx, systemPrompt, userPrompt)
}

// CompleteJSON implements JSONCompleter.
func (c *OpenAICompleter) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.generate(ctx, systemPrompt, userPrompt, llms.WithJSONMode())
}

func (c *OpenAICompleter) generate(ctx context.Context, systemPrompt, userPrompt string, extra ...llms.CallOption) (string, error) {
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(userPrompt)},
		},
	}
	opts := append([]llms.CallOption{
		llms.WithTemperature(c.temperature),
		llms.WithMaxTokens(c.maxTokens),
	}, extra...)

	resp, err := c.client.GenerateContent(ctx, content, opts...)
	if err != nil {
		c.logger.Error("failed to generate content", "err", err)
		return "", APIError("openai generate", err)
	}
	if len(resp.Choices) == 0 {
		return "", APIError("openai generate", errors.New("no choices returned"))
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

var (
	_ Completer     = (*OpenAICompleter)(nil)
	_ JSONCompleter = (*OpenAICompleter)(nil)
)
