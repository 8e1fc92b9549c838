package bilingual

import (
	"fmt"

	"github.com/mgpai22/bilingo/internal/failure"
	"github.com/mgpai22/bilingo/internal/subtitle"
)

const stage = "merge"

// Merge combines a source track and its translation into one dual-language
// track. Timing comes from source and is never changed; Secondary and the
// degraded flag come from translated. The tracks must be aligned and every
// translated cue must carry text.
func Merge(source, translated subtitle.Track) (subtitle.Track, error) {
	if err := subtitle.CheckAligned(stage, source, translated); err != nil {
		return subtitle.Track{}, err
	}

	out := source.Clone()
	out.LangSecondary = translated.LangSecondary
	if out.LangPrimary == "" {
		out.LangPrimary = translated.LangPrimary
	}

	for i := range out.Cues {
		t := translated.Cues[i]
		if t.Secondary == "" {
			return subtitle.Track{}, failure.Integrity(stage,
				fmt.Sprintf("cue %d has no translation", t.Seq))
		}
		out.Cues[i].Secondary = t.Secondary
		out.Cues[i].Degraded = t.Degraded
	}

	if err := subtitle.Validate(stage, out, subtitle.ValidateOptions{WaiveMinDuration: true}); err != nil {
		return subtitle.Track{}, err
	}
	return out, nil
}
