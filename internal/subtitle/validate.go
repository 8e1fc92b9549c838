package subtitle

import (
	"fmt"
	"strings"

	"github.com/mgpai22/bilingo/internal/failure"
)

// MinCueDuration is the shortest cue any stage may emit unless waived.
const MinCueDuration int64 = 100

// ValidateOptions selects which track invariants to enforce.
type ValidateOptions struct {
	// MinDuration overrides MinCueDuration; zero means the default.
	MinDuration int64
	// WaiveMinDuration only requires start < end.
	WaiveMinDuration bool
}

// Validate checks dense numbering, non-empty text, positive duration and
// monotonic non-overlap. The returned error wraps failure.ErrIntegrity.
func Validate(stage string, track Track, opts ValidateOptions) error {
	minDur := opts.MinDuration
	if minDur <= 0 {
		minDur = MinCueDuration
	}

	for i, cue := range track.Cues {
		if cue.Seq != i+1 {
			return failure.Integrity(stage, fmt.Sprintf("cue %d has seq %d", i+1, cue.Seq))
		}
		if strings.TrimSpace(cue.Primary) == "" {
			return failure.Integrity(stage, fmt.Sprintf("cue %d has empty text", cue.Seq))
		}
		if cue.Start < 0 || cue.Start >= cue.End {
			return failure.Integrity(stage, fmt.Sprintf(
				"cue %d has invalid window %s --> %s",
				cue.Seq, FormatTimecode(cue.Start), FormatTimecode(cue.End),
			))
		}
		if !opts.WaiveMinDuration && cue.Duration() < minDur {
			return failure.Integrity(stage, fmt.Sprintf(
				"cue %d lasts %dms, minimum %dms", cue.Seq, cue.Duration(), minDur,
			))
		}
		if i > 0 && track.Cues[i-1].End > cue.Start {
			return failure.Integrity(stage, fmt.Sprintf(
				"cue %d overlaps cue %d", cue.Seq, track.Cues[i-1].Seq,
			))
		}
	}
	return nil
}

// CheckAligned verifies two tracks have the same length and identical
// seq/start/end per index.
func CheckAligned(stage string, source, target Track) error {
	if source.Len() != target.Len() {
		return failure.Integrity(stage, fmt.Sprintf(
			"alignment broken: source has %d cues, target has %d",
			source.Len(), target.Len(),
		))
	}
	for i := range source.Cues {
		s, t := source.Cues[i], target.Cues[i]
		if s.Seq != t.Seq || s.Start != t.Start || s.End != t.End {
			return failure.Integrity(stage, fmt.Sprintf(
				"alignment broken at index %d: source %d[%d,%d] target %d[%d,%d]",
				i, s.Seq, s.Start, s.End, t.Seq, t.Start, t.End,
			))
		}
	}
	return nil
}
