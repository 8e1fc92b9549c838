package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mgpai22/bilingo/internal/failure"
	"github.com/mgpai22/bilingo/internal/subtitle"
)

const stage = "persist"

// DefaultTimeout bounds every database operation.
const DefaultTimeout = 10 * time.Second

// ErrNotFound is returned by LoadTrack when a video has no rows.
var ErrNotFound = errors.New("subtitle track not found")

// Store persists bilingual tracks as one row per cue keyed by (video_id, seq).
type Store interface {
	// UpsertTrack writes every cue of track in a single transaction and
	// removes rows beyond the track's last seq. It returns the row count.
	UpsertTrack(ctx context.Context, track subtitle.Track) (int, error)
	LoadTrack(ctx context.Context, videoID string) (subtitle.Track, error)
	// Purge deletes every row of the video and returns how many were removed.
	Purge(ctx context.Context, videoID string) (int, error)
	Count(ctx context.Context, videoID string) (int, error)
	Close() error
}

// supported database drivers
type Driver string

const (
	DriverSQLite Driver = "sqlite"
	DriverMySQL  Driver = "mysql"
	DriverNone   Driver = "none"
)

type Options struct {
	Driver  Driver
	DSN     string
	Timeout time.Duration
}

// Open connects to the configured database and applies its schema. The
// "none" driver yields a nil Store, which callers treat as persistence off.
func Open(ctx context.Context, opts Options) (Store, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	switch opts.Driver {
	case DriverSQLite, "":
		return OpenSQLite(ctx, opts.DSN, opts.Timeout)
	case DriverMySQL:
		return OpenMySQL(ctx, opts.DSN, opts.Timeout)
	case DriverNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", opts.Driver)
	}
}

// cueRow is the persisted form of one cue.
type cueRow struct {
	ID        uint      `gorm:"primaryKey"`
	VideoID   string    `gorm:"size:191;not null;uniqueIndex:idx_subtitle_cues_video_seq,priority:1"`
	Seq       int       `gorm:"not null;uniqueIndex:idx_subtitle_cues_video_seq,priority:2"`
	StartTime string    `gorm:"size:16;not null"`
	EndTime   string    `gorm:"size:16;not null"`
	EnText    string    `gorm:"type:text;not null"`
	ZhText    string    `gorm:"type:text;not null"`
	Degraded  bool      `gorm:"not null;default:false"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (cueRow) TableName() string { return "subtitle_cues" }

// videoRow keeps per-video metadata the cue rows do not carry.
type videoRow struct {
	VideoID       string    `gorm:"primaryKey;size:191"`
	LangPrimary   string    `gorm:"size:35;not null;default:''"`
	LangSecondary string    `gorm:"size:35;not null;default:''"`
	CueCount      int       `gorm:"not null;default:0"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (videoRow) TableName() string { return "subtitle_videos" }

func newCueRow(videoID string, cue subtitle.Cue, now time.Time) cueRow {
	return cueRow{
		VideoID:   videoID,
		Seq:       cue.Seq,
		StartTime: subtitle.FormatTimecode(cue.Start),
		EndTime:   subtitle.FormatTimecode(cue.End),
		EnText:    cue.Primary,
		ZhText:    cue.Secondary,
		Degraded:  cue.Degraded,
		UpdatedAt: now,
	}
}

func (r cueRow) cue() (subtitle.Cue, error) {
	start, err := subtitle.ParseTimecode(r.StartTime)
	if err != nil {
		return subtitle.Cue{}, fmt.Errorf("row %d start: %w", r.Seq, err)
	}
	end, err := subtitle.ParseTimecode(r.EndTime)
	if err != nil {
		return subtitle.Cue{}, fmt.Errorf("row %d end: %w", r.Seq, err)
	}
	return subtitle.Cue{
		Seq:       r.Seq,
		Start:     start,
		End:       end,
		Primary:   r.EnText,
		Secondary: r.ZhText,
		Degraded:  r.Degraded,
	}, nil
}

func checkTrack(track subtitle.Track) error {
	if strings.TrimSpace(track.VideoID) == "" {
		return failure.Input(stage, "video id is required", nil)
	}
	if track.Len() == 0 {
		return failure.Input(stage, "track has no cues", nil)
	}
	for i, cue := range track.Cues {
		if cue.Seq != i+1 {
			return failure.Integrity(stage, fmt.Sprintf("cue %d has seq %d", i+1, cue.Seq))
		}
	}
	return nil
}

func checkVideoID(videoID string) error {
	if strings.TrimSpace(videoID) == "" {
		return failure.Input(stage, "video id is required", nil)
	}
	return nil
}

func persistenceError(op, videoID string, err error) error {
	return failure.Wrap(failure.ErrPersistence, stage, op, "video "+videoID, err)
}

func notFound(videoID string) error {
	return failure.Wrap(ErrNotFound, stage, "load", "video "+videoID, nil)
}
