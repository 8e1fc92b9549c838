package segment

import (
	"github.com/mgpai22/bilingo/internal/subtitle"
)

const (
	DefaultMinDuration int64 = 800
	DefaultMaxDuration int64 = 6000
)

// Options bounds the duration given to each split sentence.
type Options struct {
	MinDuration int64
	MaxDuration int64
}

func (o Options) withDefaults() Options {
	if o.MinDuration <= 0 {
		o.MinDuration = DefaultMinDuration
	}
	if o.MaxDuration <= 0 {
		o.MaxDuration = DefaultMaxDuration
	}
	return o
}

// Report summarizes one re-segmentation pass.
type Report struct {
	Input  int
	Merged int
	Output int
	// Waived counts merged cues too short to give every sentence MinDuration.
	Waived int
}

// Segment merges fragment cues into sentences and splits merged cues that
// hold several sentences, redistributing their time window by weight.
func Segment(track subtitle.Track, opts Options) (subtitle.Track, Report) {
	opts = opts.withDefaults()
	report := Report{Input: track.Len()}

	merged := MergeSentences(track.Cues)
	report.Merged = len(merged)

	out := make([]subtitle.Cue, 0, len(merged))
	for _, cue := range merged {
		parts, waived := splitCue(cue, opts)
		if waived {
			report.Waived++
		}
		out = append(out, parts...)
	}
	subtitle.Renumber(out)

	report.Output = len(out)
	return track.WithCues(out), report
}

// MergeSentences accumulates cues until the joined text ends a sentence.
// A trailing fragment without a terminator is emitted as its own cue.
func MergeSentences(cues []subtitle.Cue) []subtitle.Cue {
	var out []subtitle.Cue
	var buf subtitle.Cue
	open := false

	for _, cue := range cues {
		if !open {
			buf = subtitle.Cue{Start: cue.Start}
			open = true
		}
		buf.Primary = joinText(buf.Primary, cue.Primary)
		buf.End = cue.End

		if EndsSentence(buf.Primary) {
			out = append(out, buf)
			open = false
		}
	}
	if open && buf.Primary != "" {
		out = append(out, buf)
	}
	return out
}

func splitCue(cue subtitle.Cue, opts Options) ([]subtitle.Cue, bool) {
	sentences := SplitSentences(cue.Primary)
	if len(sentences) <= 1 {
		return []subtitle.Cue{cue}, false
	}

	span := cue.End - cue.Start
	weights := make([]float64, len(sentences))
	for i, s := range sentences {
		weights[i] = Weight(s)
	}
	shares := Distribute(span, weights, opts.MinDuration, opts.MaxDuration)
	if shares == nil {
		return []subtitle.Cue{cue}, false
	}

	out := make([]subtitle.Cue, len(sentences))
	start := cue.Start
	for i, s := range sentences {
		out[i] = subtitle.Cue{Start: start, End: start + shares[i], Primary: s}
		start += shares[i]
	}
	return out, span < int64(len(sentences))*opts.MinDuration
}
