package bilingual

import (
	"errors"
	"strings"
	"testing"

	"github.com/mgpai22/bilingo/internal/failure"
	"github.com/mgpai22/bilingo/internal/subtitle"
)

func source() subtitle.Track {
	return subtitle.Track{
		VideoID:     "v1",
		LangPrimary: "en",
		Cues: []subtitle.Cue{
			{Seq: 1, Start: 0, End: 2000, Primary: "Hello."},
			{Seq: 2, Start: 2000, End: 4000, Primary: "World."},
		},
	}
}

func translated() subtitle.Track {
	t := source().Clone()
	t.LangSecondary = "zh-TW"
	t.Cues[0].Secondary = "你好。"
	t.Cues[1].Secondary = "World."
	t.Cues[1].Degraded = true
	return t
}

func TestMerge(t *testing.T) {
	src := source()
	got, err := Merge(src, translated())
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}

	if got.LangPrimary != "en" || got.LangSecondary != "zh-TW" {
		t.Errorf("languages = %q/%q", got.LangPrimary, got.LangSecondary)
	}
	if err := subtitle.CheckAligned("test", src, got); err != nil {
		t.Errorf("timing changed: %v", err)
	}
	if got.Cues[0].Primary != "Hello." || got.Cues[0].Secondary != "你好。" {
		t.Errorf("unexpected first cue %+v", got.Cues[0])
	}
	if !got.Cues[1].Degraded {
		t.Error("degraded flag not carried over")
	}
	if src.Cues[0].Secondary != "" {
		t.Error("source track was mutated")
	}
}

func TestMergeBilingualEncoding(t *testing.T) {
	got, err := Merge(source(), translated())
	if err != nil {
		t.Fatal(err)
	}
	out := subtitle.FormatSRTString(got, subtitle.LayoutBilingual)
	if !strings.HasPrefix(out, "1\n00:00:00,000 --> 00:00:02,000\nHello.\n你好。\n\n") {
		t.Errorf("unexpected bilingual SRT:\n%s", out)
	}
}

func TestMergeRejectsMisaligned(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*subtitle.Track)
	}{
		{"dropped cue", func(tr *subtitle.Track) { tr.Cues = tr.Cues[:1] }},
		{"shifted end", func(tr *subtitle.Track) { tr.Cues[1].End = 3999 }},
		{"renumbered", func(tr *subtitle.Track) { tr.Cues[0].Seq = 5 }},
		{"missing translation", func(tr *subtitle.Track) { tr.Cues[0].Secondary = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := translated()
			tt.mutate(&tr)
			_, err := Merge(source(), tr)
			if !errors.Is(err, failure.ErrIntegrity) {
				t.Fatalf("expected integrity error, got %v", err)
			}
		})
	}
}
