package translate

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/mgpai22/bilingo/internal/failure"
	"github.com/mgpai22/bilingo/internal/subtitle"
)

// Sentinel joins cue texts in batch mode. It survives translation intact
// in practice; responses are split on the bare pipes.
const Sentinel = " ||| "

const sentinelCore = "|||"

// Backend translates one text (possibly a sentinel-joined batch).
type Backend interface {
	TranslateText(ctx context.Context, text, source, target string) (string, error)
}

// translation service provider
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	// ProviderEcho returns the input unchanged; used for dry runs.
	ProviderEcho Provider = "echo"
)

type Options struct {
	Model  string
	Prompt string
}

// creates Backend based on provider
func Factory(
	ctx context.Context,
	provider Provider,
	apiKey string,
	opts Options,
) (Backend, error) {
	switch provider {
	case ProviderGemini:
		return NewGeminiBackend(ctx, apiKey, opts)
	case ProviderOpenAI:
		return NewOpenAIBackend(apiKey, opts)
	case ProviderAnthropic:
		return NewAnthropicBackend(apiKey, opts)
	case ProviderEcho:
		return EchoBackend{}, nil
	default:
		return nil, fmt.Errorf("unsupported translation provider: %s", provider)
	}
}

// BuildPrompt creates the translation prompt for LLM providers
func BuildPrompt(opts Options, text, source, target string) string {
	var sb strings.Builder

	if source != "" {
		sb.WriteString(fmt.Sprintf(
			"Translate the following %s subtitle text to %s.\n\n",
			subtitle.DisplayName(source),
			subtitle.DisplayName(target),
		))
	} else {
		sb.WriteString(fmt.Sprintf(
			"Translate the following subtitle text to %s.\n\n",
			subtitle.DisplayName(target),
		))
	}

	sb.WriteString("IMPORTANT INSTRUCTIONS:\n")
	sb.WriteString("1. Translate ONLY the text content, preserving the meaning.\n")
	sb.WriteString(fmt.Sprintf(
		"2. The text may contain several segments separated by %q. Keep every separator and translate each segment in place.\n",
		strings.TrimSpace(Sentinel),
	))
	sb.WriteString("3. Return ONLY the translated text, with no quotes, notes, or markdown.\n")
	if strings.HasPrefix(target, "zh-TW") || strings.HasPrefix(target, "zh-Hant") {
		sb.WriteString("4. Use Traditional Chinese characters as written in Taiwan.\n")
	}
	sb.WriteString("\n")

	if opts.Prompt != "" {
		sb.WriteString(fmt.Sprintf("Additional instructions: %s\n\n", opts.Prompt))
	}

	sb.WriteString("Text:\n")
	sb.WriteString(text)
	return sb.String()
}

// JoinBatch joins texts with the sentinel separator.
func JoinBatch(texts []string) string {
	return strings.Join(texts, Sentinel)
}

// SplitBatch splits a batch response on the sentinel and flattens each
// part to a single line.
func SplitBatch(response string) []string {
	parts := strings.Split(response, sentinelCore)
	for i := range parts {
		parts[i] = flatten(parts[i])
	}
	return parts
}

var codeFenceRegex = regexp.MustCompile("```[a-zA-Z]*\\s*")

// a translation is stored as one line; the bilingual layout depends on it
func cleanResponse(s string) string {
	s = codeFenceRegex.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "```", "")
	return flatten(s)
}

func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// classifyError tags provider errors so the engine knows which to retry.
func classifyError(provider string, transient bool, err error) error {
	if transient || failure.IsTransient(err) {
		return failure.Wrap(failure.ErrTransient, "translate", provider, "request failed", err)
	}
	return failure.Wrap(failure.ErrBackend, "translate", provider, "request failed", err)
}

// EchoBackend returns the text unchanged.
type EchoBackend struct{}

func (EchoBackend) TranslateText(_ context.Context, text, _, _ string) (string, error) {
	return text, nil
}
