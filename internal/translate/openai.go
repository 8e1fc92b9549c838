package translate

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// implements Backend using OpenAI Chat Completions
type OpenAIBackend struct {
	client  openai.Client
	model   string
	options Options
}

func NewOpenAIBackend(apiKey string, opts Options) (*OpenAIBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))

	model := opts.Model
	if model == "" {
		model = "gpt-5-mini"
	}

	return &OpenAIBackend{
		client:  client,
		model:   model,
		options: opts,
	}, nil
}

func (b *OpenAIBackend) TranslateText(
	ctx context.Context,
	text, source, target string,
) (string, error) {
	prompt := BuildPrompt(b.options, text, source, target)

	completion, err := b.client.Chat.Completions.New(
		ctx,
		openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
			Model: b.model,
		},
	)
	if err != nil {
		var apiErr *openai.Error
		transient := errors.As(err, &apiErr) &&
			(apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500)
		return "", classifyError("openai", transient, err)
	}

	if completion == nil || len(completion.Choices) == 0 {
		return "", fmt.Errorf("empty response from OpenAI")
	}

	return cleanResponse(completion.Choices[0].Message.Content), nil
}
