package transcribe

import (
	"strings"
	"testing"
)

func TestExtractTranscriptSegments(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantTexts []string
		wantErr   bool
	}{
		{
			name:      "bare array",
			input:     `[{"start": 0.0, "end": 2.4, "text": "Good morning, class."}, {"start": 2.4, "end": 4.1, "text": "Open your books."}]`,
			wantTexts: []string{"Good morning, class.", "Open your books."},
		},
		{
			name: "prose around the array",
			input: `Sure! Here is the transcript of the lesson:
			[{"start": 0, "end": 1.5, "text": "Repeat after me."}]
			Let me know if you need the timestamps in milliseconds.`,
			wantTexts: []string{"Repeat after me."},
		},
		{
			name:      "fenced response",
			input:     "```json\n[{\"start\": 3, \"end\": 4, \"text\": \"Page twelve.\"}]\n```",
			wantTexts: []string{"Page twelve."},
		},
		{
			name:      "segments key ranks before others",
			input:     `{"aside": [{"start": 0, "end": 1, "text": "ignored"}], "segments": [{"start": 0, "end": 1, "text": "kept"}]}`,
			wantTexts: []string{"kept"},
		},
		{
			name:      "transcript key before unknown keys",
			input:     `{"a": [{"start": 0, "end": 1, "text": "other"}], "transcript": [{"start": 0, "end": 1, "text": "lesson"}]}`,
			wantTexts: []string{"lesson"},
		},
		{
			name:      "nested wrapper",
			input:     `{"result": {"data": [{"start": 5, "end": 6.5, "text": "Well done."}]}}`,
			wantTexts: []string{"Well done."},
		},
		{
			name:      "skips unrelated values first",
			input:     `{"ok": true} [1, 2] [{"start": 0, "end": 2, "text": "Listen."}]`,
			wantTexts: []string{"Listen."},
		},
		{
			name:      "timing without text still counts",
			input:     `[{"start": 1, "end": 2, "text": ""}]`,
			wantTexts: []string{""},
		},
		{name: "empty array", input: `[]`, wantErr: true},
		{name: "all zero segment", input: `[{"start": 0, "end": 0, "text": ""}]`, wantErr: true},
		{name: "plain prose", input: `The speaker greets the class.`, wantErr: true},
		{name: "truncated json", input: `[{"start": 0, "end": 2, "text": "Hel`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segments, err := extractTranscriptSegments(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", segments)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(segments) != len(tt.wantTexts) {
				t.Fatalf("got %d segments, want %d", len(segments), len(tt.wantTexts))
			}
			for i, want := range tt.wantTexts {
				if segments[i].Text != want {
					t.Errorf("segment %d text = %q, want %q", i, segments[i].Text, want)
				}
			}
		})
	}
}

func TestCleanJSONResponse(t *testing.T) {
	tests := map[string]string{
		"[1]":                      "[1]",
		"```json\n[1]\n```":        "[1]",
		"```\n[1]\n```":            "[1]",
		"  \n```json\n[1]\n```\n ": "[1]",
	}
	for in, want := range tests {
		if got := cleanJSONResponse(in); got != want {
			t.Errorf("cleanJSONResponse(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidateSegments(t *testing.T) {
	if validateSegments(nil) {
		t.Error("nil segments should be invalid")
	}
	if validateSegments([]transcriptSegment{{}, {}}) {
		t.Error("all-zero segments should be invalid")
	}
	if !validateSegments([]transcriptSegment{{}, {End: 1.2}}) {
		t.Error("one timed segment should be enough")
	}
}

func TestModelForTier(t *testing.T) {
	tests := []struct {
		tier Tier
		want string
	}{
		{TierTiny, "gemini-2.5-flash-lite"},
		{TierBase, "gemini-2.5-flash-lite"},
		{TierSmall, "gemini-2.5-flash"},
		{TierMedium, "gemini-2.5-flash"},
		{TierLarge, "gemini-2.5-pro"},
		{"", "gemini-2.5-flash"},
	}
	for _, tt := range tests {
		if got := modelForTier(tt.tier); got != tt.want {
			t.Errorf("modelForTier(%q) = %q, want %q", tt.tier, got, tt.want)
		}
	}
}

func TestBuildTranscriptionPrompt(t *testing.T) {
	prompt := buildTranscriptionPrompt("en", "Speakers are language instructors.")
	if !strings.Contains(prompt, "The audio is in English.") {
		t.Errorf("prompt missing language hint:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Speakers are language instructors.") {
		t.Errorf("prompt missing extra instructions:\n%s", prompt)
	}
}

func TestExtractTranscriptSegmentsValues(t *testing.T) {
	segments, err := extractTranscriptSegments("```json\n[{\"start\": 1.25, \"end\": 2.5, \"text\": \"  Hi there. \"}]\n```")
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 1 || segments[0].Start != 1.25 || segments[0].End != 2.5 || segments[0].Text != "Hi there." {
		t.Errorf("unexpected segments %+v", segments)
	}
}
