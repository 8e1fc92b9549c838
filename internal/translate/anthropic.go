package translate

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// implements Backend using Anthropic Claude
type AnthropicBackend struct {
	client  anthropic.Client
	model   anthropic.Model
	options Options
}

func NewAnthropicBackend(apiKey string, opts Options) (*AnthropicBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	model := anthropic.Model(opts.Model)
	if opts.Model == "" {
		model = anthropic.ModelClaudeHaiku4_5
	}

	return &AnthropicBackend{
		client:  client,
		model:   model,
		options: opts,
	}, nil
}

func (b *AnthropicBackend) TranslateText(
	ctx context.Context,
	text, source, target string,
) (string, error) {
	prompt := BuildPrompt(b.options, text, source, target)

	message, err := b.client.Messages.New(
		ctx,
		anthropic.MessageNewParams{
			Model:     b.model,
			MaxTokens: 4096,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(
					anthropic.NewTextBlock(prompt),
				),
			},
		},
	)
	if err != nil {
		var apiErr *anthropic.Error
		transient := errors.As(err, &apiErr) &&
			(apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500)
		return "", classifyError("anthropic", transient, err)
	}

	if message == nil || len(message.Content) == 0 {
		return "", fmt.Errorf("empty response from Anthropic")
	}

	var responseText string
	for _, block := range message.Content {
		if block.Type == "text" {
			responseText += block.Text
		}
	}

	return cleanResponse(responseText), nil
}
