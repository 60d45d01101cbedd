package gcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
	"github.com/Lllllllleong/clinicaltrialexplorer/internal/llm"
)

// DefaultVertexModel is used when no model name is configured.
const DefaultVertexModel = "gemini-1.5-pro"

// VertexCompleter implements llm.Completer on Vertex AI Gemini models.
// A fresh GenerativeModel is derived per call so the system instruction can vary
// between the extractor and the chat frontend.
type VertexCompleter struct {
	baseClient *genai.Client
	modelName  string
}

// NewVertexCompleter creates a new Vertex AI backed completer.
func NewVertexCompleter(ctx context.Context, projectID, region, modelName string) (*VertexCompleter, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexCompleter: projectID and region cannot be empty")
	}
	if modelName == "" {
		modelName = DefaultVertexModel
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &VertexCompleter{baseClient: baseClient, modelName: modelName}, nil
}

func (c *VertexCompleter) model(systemPrompt string, jsonMode bool) *genai.GenerativeModel {
	model := c.baseClient.GenerativeModel(c.modelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr[float32](0.0), // deterministic, structured output
	}
	if jsonMode {
		model.GenerationConfig.ResponseMIMEType = "application/json"
	}
	// Protocols routinely describe adverse events and dosing.
	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockNone},
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockNone},
	}
	return model
}

// Complete implements llm.Completer.
func (c *VertexCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.generate(ctx, c.model(systemPrompt, false), userPrompt)
}

// CompleteJSON implements llm.JSONCompleter.
func (c *VertexCompleter) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.generate(ctx, c.model(systemPrompt, true), userPrompt)
}

func (c *VertexCompleter) generate(ctx context.Context, model *genai.GenerativeModel, userPrompt string) (string, error) {
	resp, err := model.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", llm.APIError("vertex generate", err)
	}
	text := responseText(resp)
	if text == "" {
		return "", llm.APIError("vertex generate", errors.New("model returned an empty response"))
	}
	return text, nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return strings.TrimSpace(sb.String())
}

func (c *VertexCompleter) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}

var (
	_ llm.Completer     = (*VertexCompleter)(nil)
	_ llm.JSONCompleter = (*VertexCompleter)(nil)
)
