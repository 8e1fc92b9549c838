package subtitle

import "time"

// single timed subtitle record; times are milliseconds from media origin
type Cue struct {
	Seq       int
	Start     int64
	End       int64
	Primary   string
	Secondary string
	// set when Secondary fell back to the source text
	Degraded bool
}

// Duration returns End-Start in milliseconds.
func (c Cue) Duration() int64 {
	return c.End - c.Start
}

// ordered, densely numbered cue list for one video
type Track struct {
	VideoID       string
	LangPrimary   string
	LangSecondary string
	Cues          []Cue
}

// Len returns the number of cues.
func (t Track) Len() int {
	return len(t.Cues)
}

// Clone returns a deep copy so stages never share cue slices.
func (t Track) Clone() Track {
	out := t
	out.Cues = make([]Cue, len(t.Cues))
	copy(out.Cues, t.Cues)
	return out
}

// WithCues returns a new track carrying t's metadata and the given cues.
func (t Track) WithCues(cues []Cue) Track {
	out := t
	out.Cues = cues
	return out
}

// DegradedCount counts cues flagged as degraded.
func (t Track) DegradedCount() int {
	n := 0
	for _, c := range t.Cues {
		if c.Degraded {
			n++
		}
	}
	return n
}

// Renumber assigns seq 1..N in slice order.
func Renumber(cues []Cue) {
	for i := range cues {
		cues[i].Seq = i + 1
	}
}

// represents supported subtitle formats
type Format string

const (
	FormatSRT Format = "srt"
	FormatVTT Format = "vtt"
)

// selects which text lines a writer emits per cue
type Layout int

const (
	LayoutPrimary Layout = iota
	LayoutSecondary
	LayoutBilingual
)

// interface for writing tracks to files
type Writer interface {
	Write(track Track, path string) error
}

// ToDuration converts milliseconds to a time.Duration.
func ToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// FromDuration converts a time.Duration to milliseconds, truncating.
func FromDuration(d time.Duration) int64 {
	return d.Milliseconds()
}
