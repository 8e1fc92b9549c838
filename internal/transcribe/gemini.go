package transcribe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"google.golang.org/genai"

	"github.com/mgpai22/bilingo/internal/subtitle"
)

// implements Transcriber using Google Gemini audio understanding
type GeminiTranscriber struct {
	client  *genai.Client
	options Options
}

// segment from Gemini's JSON response
type transcriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

func NewGeminiTranscriber(ctx context.Context, apiKey string, opts Options) (*GeminiTranscriber, error) {
	if apiKey == "" {
		return nil, loadError(string(ProviderGemini), fmt.Errorf("API key is required"))
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, loadError(string(ProviderGemini), fmt.Errorf("failed to create Gemini client: %w", err))
	}

	return &GeminiTranscriber{
		client:  client,
		options: opts,
	}, nil
}

// modelForTier maps the size tier onto the hosted model family.
func modelForTier(tier Tier) string {
	switch tier {
	case TierTiny, TierBase:
		return "gemini-2.5-flash-lite"
	case TierLarge:
		return "gemini-2.5-pro"
	default:
		return "gemini-2.5-flash"
	}
}

func (t *GeminiTranscriber) Transcribe(ctx context.Context, req Request) (subtitle.Track, error) {
	model := t.options.Model
	if model == "" {
		model = modelForTier(req.Tier)
	}

	uploadedFile, err := t.client.Files.UploadFromPath(ctx, req.AudioPath, nil)
	if err != nil {
		return subtitle.Track{}, transcribeError(string(ProviderGemini), "upload audio", err)
	}
	defer func() {
		_, _ = t.client.Files.Delete(context.WithoutCancel(ctx), uploadedFile.Name, nil)
	}()

	parts := []*genai.Part{
		genai.NewPartFromText(buildTranscriptionPrompt(req.Language, t.options.Prompt)),
		genai.NewPartFromURI(uploadedFile.URI, uploadedFile.MIMEType),
	}
	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}

	result, err := t.client.Models.GenerateContent(ctx, model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return subtitle.Track{}, transcribeError(string(ProviderGemini), "request failed", err)
	}

	segments, err := extractTranscriptSegments(result.Text())
	if err != nil {
		return subtitle.Track{}, transcribeError(string(ProviderGemini), "parse response", err)
	}

	cues := make([]subtitle.Cue, 0, len(segments))
	for _, seg := range segments {
		cues = append(cues, subtitle.Cue{
			Start:   subtitle.SecondsToMillis(seg.Start),
			End:     subtitle.SecondsToMillis(seg.End),
			Primary: seg.Text,
		})
	}
	return newTrack(string(ProviderGemini), req, cues)
}

// creates the prompt for transcription
func buildTranscriptionPrompt(language, extra string) string {
	var sb strings.Builder

	sb.WriteString("Generate a verbatim transcript of this audio. ")
	sb.WriteString("For each sentence or phrase, provide the start timestamp, end timestamp, and the exact text spoken. ")
	sb.WriteString("Format your response as a JSON array with objects containing 'start', 'end', and 'text' fields, ")
	sb.WriteString("where 'start' and 'end' are timestamps in seconds (as numbers). ")

	if language != "" {
		sb.WriteString(fmt.Sprintf("The audio is in %s. ", subtitle.DisplayName(language)))
	}
	if extra != "" {
		sb.WriteString(extra)
		sb.WriteString(" ")
	}

	sb.WriteString("Return ONLY the JSON array, no other text or markdown formatting.")
	return sb.String()
}

var jsonFenceRegex = regexp.MustCompile("```(?:json)?\\s*")

// removes markdown formatting from the response
func cleanJSONResponse(s string) string {
	s = strings.TrimSpace(s)
	s = jsonFenceRegex.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// extractTranscriptSegments finds the first JSON value in text that holds a
// usable segment array, tolerating prose around it and wrapper objects.
func extractTranscriptSegments(text string) ([]transcriptSegment, error) {
	text = cleanJSONResponse(text)
	for i := 0; i < len(text); i++ {
		if text[i] != '[' && text[i] != '{' {
			continue
		}
		var value any
		dec := json.NewDecoder(strings.NewReader(text[i:]))
		if err := dec.Decode(&value); err != nil {
			continue
		}
		if segments, ok := findSegments(value); ok {
			return segments, nil
		}
		i += int(dec.InputOffset()) - 1
	}
	return nil, errors.New("no transcript segments found in response")
}

var preferredKeys = []string{"segments", "transcript", "data"}

func findSegments(value any) ([]transcriptSegment, bool) {
	switch v := value.(type) {
	case []any:
		segments := make([]transcriptSegment, 0, len(v))
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, false
			}
			seg, ok := toSegment(obj)
			if !ok {
				return nil, false
			}
			segments = append(segments, seg)
		}
		return segments, validateSegments(segments)
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			ri, rj := keyRank(keys[i]), keyRank(keys[j])
			if ri != rj {
				return ri < rj
			}
			return keys[i] < keys[j]
		})
		for _, k := range keys {
			if segments, ok := findSegments(v[k]); ok {
				return segments, true
			}
		}
	}
	return nil, false
}

func keyRank(key string) int {
	for i, k := range preferredKeys {
		if strings.EqualFold(k, key) {
			return i
		}
	}
	return len(preferredKeys)
}

func toSegment(obj map[string]any) (transcriptSegment, bool) {
	var seg transcriptSegment
	found := false
	if v, ok := obj["start"].(float64); ok {
		seg.Start, found = v, true
	}
	if v, ok := obj["end"].(float64); ok {
		seg.End, found = v, true
	}
	if v, ok := obj["text"].(string); ok {
		seg.Text, found = strings.TrimSpace(v), true
	}
	return seg, found
}

// reports whether at least one segment carries timing or text
func validateSegments(segments []transcriptSegment) bool {
	for _, s := range segments {
		if s.Start != 0 || s.End != 0 || s.Text != "" {
			return true
		}
	}
	return false
}
