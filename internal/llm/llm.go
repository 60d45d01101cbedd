// Package llm holds the completion-API abstraction shared by the extractor and the
// chat frontend, and an OpenAI-compatible implementation. The Vertex AI
// implementation lives in internal/gcp.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrAPI marks failures of the hosted completion API (quota, network, refusal).
// Callers surface it to the user instead of failing hard.
var ErrAPI = errors.New("completion api error")

// Completer sends one system + user prompt pair and returns the model's text.
// Implementations must be safe for concurrent use.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// JSONCompleter is implemented by backends that can force JSON output.
type JSONCompleter interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// CompleteJSON uses the backend's JSON mode when available and falls back to a
// plain completion otherwise. Code fences are stripped either way.
func CompleteJSON(ctx context.Context, c Completer, systemPrompt, userPrompt string) (string, error) {
	var (
		out string
		err error
	)
	if jc, ok := c.(JSONCompleter); ok {
		out, err = jc.CompleteJSON(ctx, systemPrompt, userPrompt)
	} else {
		out, err = c.Complete(ctx, systemPrompt, userPrompt)
	}
	if err != nil {
		return "", err
	}
	return StripFences(out), nil
}

// APIError wraps err so that errors.Is(err, ErrAPI) holds.
func APIError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrAPI, err)
}

var refusalPhrases = []string{
	"i am unable to",
	"i cannot fulfill",
	"i cannot answer",
	"i cannot provide",
	"i'm sorry",
	"as a large language model",
}

// Refused reports whether the response reads like a model refusal.
func Refused(response string) bool {
	lower := strings.ToLower(response)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// StripFences removes a surrounding markdown code fence (```json, ```sql, ```).
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 && !strings.ContainsAny(s[:nl], " {[") {
		s = s[nl+1:] // language tag
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
