package translate

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/mgpai22/bilingo/internal/cache"
	"github.com/mgpai22/bilingo/internal/failure"
	"github.com/mgpai22/bilingo/internal/logging"
	"github.com/mgpai22/bilingo/internal/subtitle"
)

// Mode selects how cues are sent to the backend.
type Mode string

const (
	ModePerCue Mode = "per_cue"
	ModeBatch  Mode = "batch"
)

const (
	DefaultBatchSize   = 5
	DefaultCallTimeout = 20 * time.Second
	DefaultRunTimeout  = 15 * time.Minute
	DefaultDelay       = 500 * time.Millisecond
	MaxConcurrency     = 4
)

// EngineOptions configures an Engine. Zero values take defaults.
type EngineOptions struct {
	Mode        Mode
	BatchSize   int
	Concurrency int
	Retry       RetryPolicy
	CallTimeout time.Duration
	RunTimeout  time.Duration
	// Pacer is shared across engines hitting the same backend. Nil gets a
	// private pacer at DefaultDelay; pass NewPacer(0) for unpaced calls.
	Pacer  *Pacer
	Cache  cache.Cache
	Logger *logging.Logger
}

// Result is the outcome of translating one track.
type Result struct {
	// Track is aligned 1:1 with the input; cues never reached after a
	// cancel keep an empty Secondary.
	Track     subtitle.Track
	Degraded  int
	Cancelled bool
	Calls     int
	CacheHits int
}

// Engine produces target-language tracks aligned with their source.
type Engine struct {
	backend Backend
	opts    EngineOptions
	logger  *logging.Logger
}

func NewEngine(backend Backend, opts EngineOptions) *Engine {
	if opts.Mode == "" {
		opts.Mode = ModeBatch
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Concurrency > MaxConcurrency {
		opts.Concurrency = MaxConcurrency
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = DefaultRunTimeout
	}
	if opts.Pacer == nil {
		opts.Pacer = NewPacer(DefaultDelay)
	}
	if opts.Cache == nil {
		opts.Cache = cache.Nop{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{backend: backend, opts: opts, logger: logger}
}

type cueOutcome struct {
	text     string
	degraded bool
	done     bool
}

type run struct {
	engine    *Engine
	ctx       context.Context
	source    string
	target    string
	cues      []subtitle.Cue
	outcomes  []cueOutcome
	calls     atomic.Int64
	cacheHits atomic.Int64
}

// Translate translates every cue of track into target. Backend failures
// never abort the run: a cue whose translation fails or comes back empty
// falls back to its source text and is flagged Degraded. The flag is
// checked between cues (per-cue mode) or batches; once set, the in-flight
// units finish and the partial track is returned with Cancelled=true.
func (e *Engine) Translate(
	ctx context.Context,
	track subtitle.Track,
	target string,
	flag *CancelFlag,
) (Result, error) {
	target, err := subtitle.CanonicalTag(target)
	if err != nil || target == "" {
		return Result{}, failure.Input("translate", "invalid target language", err)
	}

	source := track.LangPrimary
	if source == "" {
		source = DetectLanguage(track.Cues)
		e.logger.Debugw("detected source language", "language", source)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.opts.RunTimeout)
	defer cancel()

	r := &run{
		engine:   e,
		ctx:      runCtx,
		source:   source,
		target:   target,
		cues:     track.Cues,
		outcomes: make([]cueOutcome, len(track.Cues)),
	}

	cancelled := r.dispatch(ctx, flag)

	out := track.Clone()
	out.LangPrimary = source
	out.LangSecondary = target

	result := Result{Cancelled: cancelled}
	for i := range out.Cues {
		o := r.outcomes[i]
		if !o.done {
			out.Cues[i].Secondary = ""
			out.Cues[i].Degraded = false
			continue
		}
		out.Cues[i].Secondary = o.text
		out.Cues[i].Degraded = o.degraded
		if o.degraded {
			result.Degraded++
		}
	}
	result.Track = out
	result.Calls = int(r.calls.Load())
	result.CacheHits = int(r.cacheHits.Load())

	e.logger.Infow("translation finished",
		"cues", len(out.Cues),
		"degraded", result.Degraded,
		"cancelled", result.Cancelled,
		"calls", result.Calls,
		"cache_hits", result.CacheHits,
	)
	return result, nil
}

// dispatch issues units in order through a semaphore of size Concurrency.
// It reports whether the run stopped early on a cancel request.
func (r *run) dispatch(parent context.Context, flag *CancelFlag) bool {
	units := r.units()
	sem := semaphore.NewWeighted(int64(r.engine.opts.Concurrency))
	g := new(errgroup.Group)

	cancelled := false
	for _, unit := range units {
		if err := sem.Acquire(parent, 1); err != nil {
			cancelled = true
			break
		}
		if flag.Cancelled() || parent.Err() != nil {
			sem.Release(1)
			cancelled = true
			break
		}

		g.Go(func() error {
			defer sem.Release(1)
			if len(unit) == 1 || r.engine.opts.Mode == ModePerCue {
				for _, idx := range unit {
					r.translateCue(idx)
				}
				return nil
			}
			r.translateBatch(unit)
			return nil
		})
	}
	_ = g.Wait()
	return cancelled
}

func (r *run) units() [][]int {
	size := 1
	if r.engine.opts.Mode == ModeBatch {
		size = r.engine.opts.BatchSize
	}
	var units [][]int
	for start := 0; start < len(r.cues); start += size {
		end := start + size
		if end > len(r.cues) {
			end = len(r.cues)
		}
		unit := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			unit = append(unit, i)
		}
		units = append(units, unit)
	}
	return units
}

func (r *run) translateCue(idx int) {
	text := r.cues[idx].Primary
	if cached, ok := r.lookup(text); ok {
		r.outcomes[idx] = cueOutcome{text: cached, done: true}
		return
	}

	translated, err := r.call(text)
	if err == nil && translated == "" {
		err = errors.New("empty translation")
	}
	if err != nil {
		r.engine.logger.Warnw("cue translation degraded",
			"seq", r.cues[idx].Seq,
			"error", err,
		)
		r.outcomes[idx] = cueOutcome{text: text, degraded: true, done: true}
		return
	}

	r.store(text, translated)
	r.outcomes[idx] = cueOutcome{text: translated, done: true}
}

// translateBatch sends uncached cues as one sentinel-joined request and
// falls back to per-cue calls when the response does not split cleanly.
func (r *run) translateBatch(unit []int) {
	pending := make([]int, 0, len(unit))
	for _, idx := range unit {
		if cached, ok := r.lookup(r.cues[idx].Primary); ok {
			r.outcomes[idx] = cueOutcome{text: cached, done: true}
			continue
		}
		pending = append(pending, idx)
	}
	if len(pending) == 0 {
		return
	}
	if len(pending) == 1 {
		r.translateCue(pending[0])
		return
	}

	texts := make([]string, len(pending))
	for i, idx := range pending {
		texts[i] = r.cues[idx].Primary
	}

	response, err := r.call(JoinBatch(texts))
	var parts []string
	if err == nil {
		parts = SplitBatch(response)
	}
	if err != nil || !usableParts(parts, len(pending)) {
		r.engine.logger.Infow("batch fell back to per-cue translation",
			"first_seq", r.cues[pending[0]].Seq,
			"size", len(pending),
			"parts", len(parts),
			"error", err,
			"response", truncateString(response, 200),
		)
		for _, idx := range pending {
			r.translateCue(idx)
		}
		return
	}

	for i, idx := range pending {
		r.store(texts[i], parts[i])
		r.outcomes[idx] = cueOutcome{text: parts[i], done: true}
	}
}

func usableParts(parts []string, want int) bool {
	if len(parts) != want {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
	}
	return true
}

// call performs one paced backend request with retries on transient errors.
func (r *run) call(text string) (string, error) {
	policy := r.engine.opts.Retry
	var lastErr error

	for attempt := 0; attempt < policy.attempts(); attempt++ {
		if attempt > 0 {
			if err := sleepCtx(r.ctx, policy.Backoff(attempt-1)); err != nil {
				return "", errors.Join(lastErr, err)
			}
		}
		if err := r.engine.opts.Pacer.Wait(r.ctx); err != nil {
			return "", errors.Join(lastErr, err)
		}

		callCtx, cancel := context.WithTimeout(r.ctx, r.engine.opts.CallTimeout)
		out, err := r.engine.backend.TranslateText(callCtx, text, r.source, r.target)
		cancel()
		r.calls.Add(1)

		if err == nil {
			return cleanResponse(out), nil
		}
		lastErr = err
		if !failure.IsTransient(err) || r.ctx.Err() != nil {
			break
		}
		r.engine.logger.Debugw("retrying translation call", "attempt", attempt+1, "error", err)
	}
	return "", lastErr
}

func (r *run) lookup(text string) (string, bool) {
	value, ok, err := r.engine.opts.Cache.Get(r.ctx, cache.Key(r.target, text))
	if err != nil {
		r.engine.logger.Warnw("translation cache read failed", "error", err)
		return "", false
	}
	if value = flatten(value); ok && value != "" {
		r.cacheHits.Add(1)
		return value, true
	}
	return "", false
}

func (r *run) store(text, translated string) {
	if err := r.engine.opts.Cache.Set(r.ctx, cache.Key(r.target, text), translated); err != nil {
		r.engine.logger.Warnw("translation cache write failed", "error", err)
	}
}
