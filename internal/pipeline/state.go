package pipeline

import (
	"errors"
	"time"

	"github.com/mgpai22/bilingo/internal/failure"
	"github.com/mgpai22/bilingo/internal/transcribe"
	"github.com/mgpai22/bilingo/internal/translate"
)

const stage = "pipeline"

// State is the lifecycle position of one run.
type State string

const (
	StateInit        State = "init"
	StateTranscribed State = "transcribed"
	StateNormalized  State = "normalized"
	StateSegmented   State = "segmented"
	StateTranslated  State = "translated"
	StateMerged      State = "merged"
	StatePersisted   State = "persisted"
	StateDone        State = "done"
	StateFailed      State = "failed"
	StateCancelled   State = "cancelled"
)

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// StageStatus is the outcome of a single stage within a run.
type StageStatus string

const (
	StageDone      StageStatus = "done"
	StageSkipped   StageStatus = "skipped"
	StageFailed    StageStatus = "failed"
	StageCancelled StageStatus = "cancelled"
)

// stage names used in records and logs
const (
	StageTranscribe = "transcribe"
	StageNormalize  = "normalize"
	StageSegment    = "segment"
	StageTranslate  = "translate"
	StageMerge      = "merge"
	StagePersist    = "persist"
	StagePublish    = "publish"
)

// ErrBusy is returned when another run holds the video's lock.
var ErrBusy = errors.New("video is already being processed")

var errCancelRequested = failure.Wrap(failure.ErrCancelled, stage, "", "cancel requested", nil)

// Request describes one pipeline run. Zero values take the Runner's
// defaults.
type Request struct {
	VideoID   string
	AudioPath string
	WorkDir   string

	SourceLang string
	TargetLang string
	Tier       transcribe.Tier
	Mode       translate.Mode

	MinDuration int64
	MaxDuration int64
	BatchSize   int
	// Delay replaces the shared pacer with a run-local one when positive.
	Delay      time.Duration
	Continuous bool

	// Persist writes the finished track to the store.
	Persist bool
	// PersistCancelled also writes the partial track of a cancelled run.
	PersistCancelled bool
	// Force reruns every stage even when its artifact exists.
	Force bool
}

// StageRecord is the diagnostic entry for one stage.
type StageRecord struct {
	Stage      string      `json:"stage"`
	Status     StageStatus `json:"status"`
	Cues       int         `json:"cues,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	DurationMS int64       `json:"duration_ms"`
	Artifact   string      `json:"artifact,omitempty"`
	Detail     string      `json:"detail,omitempty"`
}

// Result is what Run reports back to the caller.
type Result struct {
	RunID   string
	VideoID string
	State   State
	// BilingualPath is set only when State is StateDone.
	BilingualPath string
	Rows          int
	Degraded      int
	Stages        []StageRecord
	Published     []string
	Err           error
}
