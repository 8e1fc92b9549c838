package translate

import (
	"strings"

	"github.com/abadojack/whatlanggo"

	"github.com/mgpai22/bilingo/internal/subtitle"
)

const detectSampleCues = 5

// DetectLanguage guesses the source language from the first few cues and
// returns its ISO 639-1 code, or "" when the text is too short to tell.
func DetectLanguage(cues []subtitle.Cue) string {
	n := len(cues)
	if n > detectSampleCues {
		n = detectSampleCues
	}
	texts := make([]string, 0, n)
	for _, c := range cues[:n] {
		texts = append(texts, c.Primary)
	}
	sample := strings.TrimSpace(strings.Join(texts, " "))
	if sample == "" {
		return ""
	}

	return whatlanggo.DetectLang(sample).Iso6391()
}
