package normalize

import (
	"sort"

	"github.com/mgpai22/bilingo/internal/subtitle"
)

// Options controls timing repair.
type Options struct {
	// MinDuration drops cues shorter than this after overlap repair;
	// zero means subtitle.MinCueDuration.
	MinDuration int64
	// Continuous extends each cue's end to the next cue's start.
	Continuous bool
}

// Report counts the cues dropped for each reason.
type Report struct {
	Input     int
	Output    int
	Empty     int
	Duplicate int
	Overlap   int
	Short     int
	// Repaired counts cues whose start was pushed past the previous end.
	Repaired int
}

// Dropped returns the total number of removed cues.
func (r Report) Dropped() int {
	return r.Empty + r.Duplicate + r.Overlap + r.Short
}

// Normalize cleans cue text and repairs timing so the result is densely
// numbered, non-empty, at least MinDuration long and free of overlaps.
// The input track is not modified.
func Normalize(track subtitle.Track, opts Options) (subtitle.Track, Report) {
	minDur := opts.MinDuration
	if minDur <= 0 {
		minDur = subtitle.MinCueDuration
	}

	report := Report{Input: track.Len()}

	sorted := make([]subtitle.Cue, len(track.Cues))
	copy(sorted, track.Cues)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start < sorted[j].Start
	})

	kept := make([]subtitle.Cue, 0, len(sorted))
	for _, cue := range sorted {
		cue.Primary = subtitle.CleanText(cue.Primary)
		cue.Secondary = subtitle.CleanText(cue.Secondary)
		if cue.Primary == "" {
			report.Empty++
			continue
		}
		if cue.Start < 0 {
			cue.Start = 0
		}

		repaired := false
		if n := len(kept); n > 0 {
			prev := kept[n-1]
			if cue.Primary == prev.Primary {
				report.Duplicate++
				continue
			}
			if cue.Start < prev.End {
				cue.Start = prev.End + 1
				if cue.Start >= cue.End {
					report.Overlap++
					continue
				}
				repaired = true
			}
		}

		if cue.End-cue.Start < minDur {
			report.Short++
			continue
		}
		if repaired {
			report.Repaired++
		}
		kept = append(kept, cue)
	}

	if opts.Continuous {
		extendToNext(kept)
	}
	subtitle.Renumber(kept)

	report.Output = len(kept)
	return track.WithCues(kept), report
}

// snaps each end to the following start, leaving the last cue alone
func extendToNext(cues []subtitle.Cue) {
	for i := 0; i+1 < len(cues); i++ {
		if cues[i+1].Start > cues[i].End {
			cues[i].End = cues[i+1].Start
		}
	}
}
