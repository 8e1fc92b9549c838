package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/mgpai22/bilingo/internal/audio"
	"github.com/mgpai22/bilingo/internal/subtitle"
)

// hosted API upload limit is 25 MB; larger inputs are re-encoded first
const openAIMaxUpload = 24 << 20

type prepareFunc func(ctx context.Context, in, outDir string, opts audio.PrepareOptions) (string, error)

// implements Transcriber using the OpenAI Audio API
type OpenAITranscriber struct {
	client  openai.Client
	model   string
	options Options
	prepare prepareFunc
}

// segment from OpenAI Whisper verbose_json response
type whisperSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// verbose_json response structure from Whisper
type whisperVerboseResponse struct {
	Text     string           `json:"text"`
	Segments []whisperSegment `json:"segments"`
	Language string           `json:"language"`
	Duration float64          `json:"duration"`
}

func NewOpenAITranscriber(apiKey string, opts Options) (*OpenAITranscriber, error) {
	if apiKey == "" {
		return nil, loadError(string(ProviderOpenAI), fmt.Errorf("API key is required"))
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))

	model := opts.Model
	if model == "" {
		model = "whisper-1"
	}

	return &OpenAITranscriber{
		client:  client,
		model:   model,
		options: opts,
		prepare: audio.Prepare,
	}, nil
}

// transcribes single audio file; the tier is ignored because the hosted
// service exposes a single model
func (t *OpenAITranscriber) Transcribe(ctx context.Context, req Request) (subtitle.Track, error) {
	path := req.AudioPath
	if info, err := os.Stat(path); err == nil && info.Size() > openAIMaxUpload {
		dir, err := os.MkdirTemp("", "bilingo-openai-*")
		if err != nil {
			return subtitle.Track{}, transcribeError(string(ProviderOpenAI), "create temp dir", err)
		}
		defer os.RemoveAll(dir)
		if path, err = t.prepare(ctx, req.AudioPath, dir, audio.DefaultPrepareOptions()); err != nil {
			return subtitle.Track{}, transcribeError(string(ProviderOpenAI), "compress audio", err)
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return subtitle.Track{}, transcribeError(string(ProviderOpenAI), "open audio", err)
	}
	defer file.Close()

	params := openai.AudioTranscriptionNewParams{
		File:                   file,
		Model:                  openai.AudioModel(t.model),
		ResponseFormat:         openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"segment"},
	}
	if req.Language != "" {
		params.Language = openai.String(subtitle.BaseLanguage(req.Language))
	}
	if t.options.Prompt != "" {
		params.Prompt = openai.String(t.options.Prompt)
	}

	resp, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return subtitle.Track{}, transcribeError(string(ProviderOpenAI), "request failed", err)
	}

	cues, err := parseVerboseJSONResponse(resp.RawJSON())
	if err != nil {
		return subtitle.Track{}, transcribeError(string(ProviderOpenAI), "parse response", err)
	}
	return newTrack(string(ProviderOpenAI), req, cues)
}

func parseVerboseJSONResponse(rawJSON string) ([]subtitle.Cue, error) {
	if rawJSON == "" {
		return nil, fmt.Errorf("empty response")
	}

	var verboseResp whisperVerboseResponse
	if err := json.Unmarshal([]byte(rawJSON), &verboseResp); err != nil {
		return nil, fmt.Errorf("failed to parse verbose_json response: %w", err)
	}

	if len(verboseResp.Segments) == 0 {
		text := strings.TrimSpace(verboseResp.Text)
		if text == "" || verboseResp.Duration <= 0 {
			return nil, fmt.Errorf("no segments in response")
		}
		return []subtitle.Cue{{
			Start:   0,
			End:     subtitle.SecondsToMillis(verboseResp.Duration),
			Primary: text,
		}}, nil
	}

	cues := make([]subtitle.Cue, 0, len(verboseResp.Segments))
	for _, seg := range verboseResp.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		cues = append(cues, subtitle.Cue{
			Start:   subtitle.SecondsToMillis(seg.Start),
			End:     subtitle.SecondsToMillis(seg.End),
			Primary: text,
		})
	}
	return cues, nil
}
