package translate

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// implements Backend using Google Gemini
type GeminiBackend struct {
	client  *genai.Client
	model   string
	options Options
}

func NewGeminiBackend(
	ctx context.Context,
	apiKey string,
	opts Options,
) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	return &GeminiBackend{
		client:  client,
		model:   model,
		options: opts,
	}, nil
}

func (b *GeminiBackend) TranslateText(
	ctx context.Context,
	text, source, target string,
) (string, error) {
	prompt := BuildPrompt(b.options, text, source, target)

	parts := []*genai.Part{
		genai.NewPartFromText(prompt),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := b.client.Models.GenerateContent(ctx, b.model, contents, nil)
	if err != nil {
		return "", classifyError("gemini", false, err)
	}

	return cleanResponse(responseText(result)), nil
}

func responseText(result *genai.GenerateContentResponse) string {
	if result == nil {
		return ""
	}
	var text string
	for _, candidate := range result.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				text += part.Text
			}
		}
		if text != "" {
			break
		}
	}
	return text
}
