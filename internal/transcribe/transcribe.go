package transcribe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mgpai22/bilingo/internal/failure"
	"github.com/mgpai22/bilingo/internal/subtitle"
)

const stage = "transcribe"

var (
	// ErrLoad means the backend or model could not be initialized.
	ErrLoad = errors.New("transcriber load error")
	// ErrTranscribe means the backend failed while decoding.
	ErrTranscribe = errors.New("transcription error")
)

// model-size tier
type Tier string

const (
	TierTiny   Tier = "tiny"
	TierBase   Tier = "base"
	TierSmall  Tier = "small"
	TierMedium Tier = "medium"
	TierLarge  Tier = "large"
)

// ParseTier accepts a tier name case-insensitively; empty means small.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TierSmall, nil
	case TierTiny, TierBase, TierSmall, TierMedium, TierLarge:
		return t, nil
	default:
		return "", failure.Input(stage, fmt.Sprintf("unknown model tier %q", s), nil)
	}
}

type Request struct {
	AudioPath string
	// Language is the spoken-language hint, e.g. "en".
	Language string
	Tier     Tier
	VideoID  string
}

// Transcriber turns an audio file into a raw track of the backend's natural
// segments. No partial track is returned on error.
type Transcriber interface {
	Transcribe(ctx context.Context, req Request) (subtitle.Track, error)
}

// transcription service provider
type Provider string

const (
	ProviderWhisper Provider = "whisper"
	ProviderOpenAI  Provider = "openai"
	ProviderGemini  Provider = "gemini"
)

// transcription options
type Options struct {
	// Model overrides the tier-derived model for hosted providers.
	Model  string
	Prompt string
	// WhisperBinary is the local whisper executable; defaults to "whisper".
	WhisperBinary string
}

// creates transcriber based on provider
func Factory(
	ctx context.Context,
	provider Provider,
	apiKey string,
	opts Options,
) (Transcriber, error) {
	switch provider {
	case ProviderWhisper:
		return NewWhisperTranscriber(opts)
	case ProviderOpenAI:
		return NewOpenAITranscriber(apiKey, opts)
	case ProviderGemini:
		return NewGeminiTranscriber(ctx, apiKey, opts)
	default:
		return nil, loadError(string(provider), fmt.Errorf("unsupported provider: %s", provider))
	}
}

func loadError(provider string, err error) error {
	return failure.Wrap(failure.ErrBackend, stage, provider, "", fmt.Errorf("%w: %w", ErrLoad, err))
}

func transcribeError(provider, message string, err error) error {
	if err == nil {
		return failure.Wrap(failure.ErrBackend, stage, provider, "", fmt.Errorf("%w: %s", ErrTranscribe, message))
	}
	return failure.Wrap(failure.ErrBackend, stage, provider, message, fmt.Errorf("%w: %w", ErrTranscribe, err))
}

// newTrack drops empty segments and numbers the rest 1..N.
func newTrack(provider string, req Request, cues []subtitle.Cue) (subtitle.Track, error) {
	kept := make([]subtitle.Cue, 0, len(cues))
	for _, c := range cues {
		c.Primary = strings.TrimSpace(c.Primary)
		if c.Primary == "" {
			continue
		}
		kept = append(kept, c)
	}
	if len(kept) == 0 {
		return subtitle.Track{}, transcribeError(provider, "no speech segments in transcript", nil)
	}
	subtitle.Renumber(kept)

	lang, err := subtitle.CanonicalTag(req.Language)
	if err != nil {
		lang = ""
	}
	return subtitle.Track{VideoID: req.VideoID, LangPrimary: lang, Cues: kept}, nil
}
