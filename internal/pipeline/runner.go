package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mgpai22/bilingo/internal/failure"
	"github.com/mgpai22/bilingo/internal/logging"
	"github.com/mgpai22/bilingo/internal/normalize"
	"github.com/mgpai22/bilingo/internal/segment"
	"github.com/mgpai22/bilingo/internal/store"
	"github.com/mgpai22/bilingo/internal/subtitle"
	"github.com/mgpai22/bilingo/internal/transcribe"
	"github.com/mgpai22/bilingo/internal/translate"
)

// Publisher uploads the finished subtitle files of a video and returns the
// object keys written.
type Publisher interface {
	Publish(ctx context.Context, videoID string, files []string) ([]string, error)
}

// Deps are the collaborators shared by every run of a Runner.
type Deps struct {
	Transcriber transcribe.Transcriber
	Backend     translate.Backend
	// Store is optional; nil disables persistence.
	Store store.Store
	// Publisher is optional; nil disables upload.
	Publisher Publisher
	Logger    *logging.Logger
}

// Options are the defaults applied to every Request.
type Options struct {
	WorkDir    string
	SourceLang string
	TargetLang string
	Tier       transcribe.Tier
	Normalize  normalize.Options
	Segment    segment.Options
	// Translate.Pacer is shared by all runs unless a Request sets Delay.
	Translate translate.EngineOptions
}

// Runner executes pipeline runs, at most one per video id at a time.
type Runner struct {
	deps   Deps
	opts   Options
	logger *logging.Logger

	mu     sync.Mutex
	active map[string]*translate.CancelFlag
}

func New(deps Deps, opts Options) (*Runner, error) {
	if deps.Transcriber == nil {
		return nil, errors.New("pipeline requires a transcriber")
	}
	if deps.Backend == nil {
		return nil, errors.New("pipeline requires a translation backend")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.SourceLang == "" {
		opts.SourceLang = "en"
	}
	if opts.TargetLang == "" {
		opts.TargetLang = "zh-TW"
	}
	if opts.Tier == "" {
		opts.Tier = transcribe.TierSmall
	}
	if opts.Translate.Pacer == nil {
		opts.Translate.Pacer = translate.NewPacer(translate.DefaultDelay)
	}
	return &Runner{
		deps:   deps,
		opts:   opts,
		logger: logger,
		active: make(map[string]*translate.CancelFlag),
	}, nil
}

// Cancel asks the active run of videoID to stop at its next checkpoint.
// It reports whether such a run exists.
func (r *Runner) Cancel(videoID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	flag, ok := r.active[videoID]
	if ok {
		flag.Cancel()
	}
	return ok
}

func (r *Runner) register(videoID string) *translate.CancelFlag {
	r.mu.Lock()
	defer r.mu.Unlock()
	flag := &translate.CancelFlag{}
	r.active[videoID] = flag
	return flag
}

func (r *Runner) unregister(videoID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, videoID)
}

// RunMany runs requests with up to parallel runs at once. Results are in
// request order and one failed run never affects another.
func (r *Runner) RunMany(ctx context.Context, reqs []Request, parallel int) []Result {
	if parallel < 1 {
		parallel = 1
	}
	results := make([]Result, len(reqs))
	g := new(errgroup.Group)
	g.SetLimit(parallel)
	for i, req := range reqs {
		g.Go(func() error {
			results[i] = r.Run(ctx, req)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Run drives one video through every stage and always returns a terminal
// Result. Cancellation is reported as StateCancelled with a nil Err.
func (r *Runner) Run(ctx context.Context, req Request) Result {
	runID := uuid.NewString()
	logger := r.logger.With("video_id", req.VideoID, "run_id", runID)

	req, err := r.prepare(req)
	if err != nil {
		logger.Errorw("run rejected", "error", err)
		return Result{RunID: runID, VideoID: req.VideoID, State: StateFailed, Err: err}
	}

	paths := newArtifacts(req.WorkDir, req.VideoID, req.TargetLang)
	if err := os.MkdirAll(paths.dir, 0o755); err != nil {
		err = failure.Wrap(failure.ErrInput, stage, "workdir", paths.dir, err)
		logger.Errorw("run rejected", "error", err)
		return Result{RunID: runID, VideoID: req.VideoID, State: StateFailed, Err: err}
	}

	lock := flock.New(paths.Lock())
	locked, err := lock.TryLock()
	if err != nil {
		err = failure.Wrap(failure.ErrInput, stage, "lock", paths.Lock(), err)
		return Result{RunID: runID, VideoID: req.VideoID, State: StateFailed, Err: err}
	}
	if !locked {
		err = failure.Wrap(failure.ErrInput, stage, "lock", req.VideoID, ErrBusy)
		logger.Warnw("video is busy", "lock", paths.Lock())
		return Result{RunID: runID, VideoID: req.VideoID, State: StateFailed, Err: err}
	}
	defer func() { _ = lock.Unlock() }()

	flag := r.register(req.VideoID)
	defer r.unregister(req.VideoID)

	x := &execution{
		runner: r,
		req:    req,
		paths:  paths,
		flag:   flag,
		logger: logger,
		record: &Record{
			RunID:      runID,
			VideoID:    req.VideoID,
			AudioPath:  req.AudioPath,
			SourceLang: req.SourceLang,
			TargetLang: req.TargetLang,
			State:      StateInit,
			StartedAt:  time.Now().UTC(),
		},
	}
	prev, err := ReadRecord(paths.Record())
	switch {
	case err == nil:
		x.prev = prev
	case !errors.Is(err, fs.ErrNotExist):
		logger.Warnw("ignoring previous run record", "error", err)
	}

	logger.Infow("run started",
		"audio", req.AudioPath,
		"source", req.SourceLang,
		"target", req.TargetLang,
		"tier", req.Tier,
		"force", req.Force,
	)
	x.save()
	return x.finish(ctx, x.execute(ctx))
}

// prepare fills defaults from the runner options and rejects malformed input.
func (r *Runner) prepare(req Request) (Request, error) {
	if err := CheckVideoID(req.VideoID); err != nil {
		return req, failure.Input(stage, err.Error(), nil)
	}
	if req.WorkDir == "" {
		req.WorkDir = r.opts.WorkDir
	}
	if req.WorkDir == "" {
		return req, failure.Input(stage, "work directory is required", nil)
	}

	if req.SourceLang == "" {
		req.SourceLang = r.opts.SourceLang
	}
	source, err := subtitle.CanonicalTag(req.SourceLang)
	if err != nil {
		return req, failure.Input(stage, "invalid source language", err)
	}
	req.SourceLang = source

	if req.TargetLang == "" {
		req.TargetLang = r.opts.TargetLang
	}
	target, err := subtitle.CanonicalTag(req.TargetLang)
	if err != nil {
		return req, failure.Input(stage, "invalid target language", err)
	}
	req.TargetLang = target

	if req.Tier == "" {
		req.Tier = r.opts.Tier
	}
	if req.Tier, err = transcribe.ParseTier(string(req.Tier)); err != nil {
		return req, err
	}

	switch req.Mode {
	case "", translate.ModeBatch, translate.ModePerCue:
	default:
		return req, failure.Input(stage, fmt.Sprintf("unknown translation mode %q", req.Mode), nil)
	}
	if req.BatchSize < 0 {
		return req, failure.Input(stage, "batch size must be positive", nil)
	}

	if req.MinDuration <= 0 {
		req.MinDuration = r.opts.Segment.MinDuration
	}
	if req.MaxDuration <= 0 {
		req.MaxDuration = r.opts.Segment.MaxDuration
	}
	if req.MinDuration > 0 && req.MaxDuration > 0 && req.MinDuration >= req.MaxDuration {
		return req, failure.Input(stage, fmt.Sprintf(
			"min duration %dms must be below max duration %dms", req.MinDuration, req.MaxDuration,
		), nil)
	}
	req.Continuous = req.Continuous || r.opts.Normalize.Continuous
	return req, nil
}
