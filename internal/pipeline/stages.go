package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/mgpai22/bilingo/internal/bilingual"
	"github.com/mgpai22/bilingo/internal/failure"
	"github.com/mgpai22/bilingo/internal/logging"
	"github.com/mgpai22/bilingo/internal/normalize"
	"github.com/mgpai22/bilingo/internal/segment"
	"github.com/mgpai22/bilingo/internal/subtitle"
	"github.com/mgpai22/bilingo/internal/transcribe"
	"github.com/mgpai22/bilingo/internal/translate"
)

// execution is the state of one Run while it holds the video lock.
type execution struct {
	runner *Runner
	req    Request
	paths  artifacts
	flag   *translate.CancelFlag
	logger *logging.Logger
	record *Record
	prev   *Record

	// fresh is set once any stage recomputes its output; later stages
	// then never reuse their artifacts.
	fresh    bool
	degraded int
	rows     int
}

func (x *execution) execute(ctx context.Context) error {
	raw, err := x.transcribe(ctx)
	if err != nil {
		return err
	}
	if err := x.advance(ctx, StateTranscribed); err != nil {
		return err
	}

	clean, err := x.normalize(raw)
	if err != nil {
		return err
	}
	if err := x.advance(ctx, StateNormalized); err != nil {
		return err
	}

	sentences, err := x.segment(clean)
	if err != nil {
		return err
	}
	if err := x.advance(ctx, StateSegmented); err != nil {
		return err
	}

	translated, err := x.translate(ctx, sentences)
	if err != nil {
		return err
	}
	if err := x.advance(ctx, StateTranslated); err != nil {
		return err
	}

	merged, err := x.merge(sentences, translated)
	if err != nil {
		return err
	}
	if err := x.advance(ctx, StateMerged); err != nil {
		return err
	}

	if err := x.persist(ctx, merged); err != nil {
		return err
	}
	x.transition(StatePersisted)
	return nil
}

// advance records the new state, then honours a pending cancel request.
func (x *execution) advance(ctx context.Context, state State) error {
	x.transition(state)
	if x.flag.Cancelled() || ctx.Err() != nil {
		return errCancelRequested
	}
	return nil
}

func (x *execution) transition(state State) {
	x.record.State = state
	x.logger.Debugw("state changed", "state", state)
	x.save()
}

func (x *execution) save() {
	if err := writeRecord(x.paths.Record(), x.record); err != nil {
		x.logger.Warnw("failed to write run record", "error", err)
	}
}

// note appends a stage entry to the run record.
func (x *execution) note(name string, started time.Time, status StageStatus, cues int, artifact, detail string) {
	x.record.Stages = append(x.record.Stages, StageRecord{
		Stage:      name,
		Status:     status,
		Cues:       cues,
		StartedAt:  started.UTC(),
		DurationMS: time.Since(started).Milliseconds(),
		Artifact:   artifact,
		Detail:     detail,
	})
	x.logger.Infow("stage finished",
		"stage", name,
		"status", status,
		"cues", cues,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
}

func (x *execution) stageFailed(name string, started time.Time, err error) error {
	status := StageFailed
	if failure.Kind(err) == "cancelled" {
		status = StageCancelled
	}
	x.note(name, started, status, 0, "", err.Error())
	return err
}

func (x *execution) write(path string, track subtitle.Track, layout subtitle.Layout, format subtitle.Format) error {
	w, err := subtitle.NewWriter(format, layout)
	if err != nil {
		return err
	}
	if err := w.Write(track, path); err != nil {
		return failure.Wrap(failure.ErrPersistence, stage, "artifact", path, err)
	}
	return nil
}

// reuse loads a stage artifact when the stage may be skipped.
func (x *execution) reuse(name, path string, check func(subtitle.Track) error) (subtitle.Track, bool) {
	if x.req.Force || x.fresh {
		return subtitle.Track{}, false
	}
	track, warnings, err := subtitle.ReadSRTFile(path, subtitle.ParseOptions{})
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			x.logger.Warnw("ignoring unreadable artifact", "stage", name, "path", path, "error", err)
		}
		return subtitle.Track{}, false
	}
	if len(warnings) > 0 || track.Len() == 0 {
		x.logger.Warnw("ignoring damaged artifact", "stage", name, "path", path, "warnings", len(warnings))
		return subtitle.Track{}, false
	}
	track.VideoID = x.req.VideoID
	track.LangPrimary = x.req.SourceLang
	if check != nil {
		if err := check(track); err != nil {
			x.logger.Warnw("ignoring invalid artifact", "stage", name, "path", path, "error", err)
			return subtitle.Track{}, false
		}
	}
	return track, true
}

func (x *execution) transcribe(ctx context.Context) (subtitle.Track, error) {
	started := time.Now()
	path := x.paths.Raw()
	if track, ok := x.reuse(StageTranscribe, path, nil); ok {
		x.note(StageTranscribe, started, StageSkipped, track.Len(), path, "artifact reused")
		return track, nil
	}
	x.fresh = true

	track, err := x.runner.deps.Transcriber.Transcribe(ctx, transcribe.Request{
		AudioPath: x.req.AudioPath,
		Language:  x.req.SourceLang,
		Tier:      x.req.Tier,
		VideoID:   x.req.VideoID,
	})
	if err != nil {
		return subtitle.Track{}, x.stageFailed(StageTranscribe, started, err)
	}
	track.VideoID = x.req.VideoID
	if track.LangPrimary == "" {
		track.LangPrimary = x.req.SourceLang
	}
	if track.Len() == 0 {
		return subtitle.Track{}, x.stageFailed(StageTranscribe, started,
			failure.Input(StageTranscribe, "transcript has no cues", nil))
	}

	if err := x.write(path, track, subtitle.LayoutPrimary, subtitle.FormatSRT); err != nil {
		return subtitle.Track{}, x.stageFailed(StageTranscribe, started, err)
	}
	x.note(StageTranscribe, started, StageDone, track.Len(), path, "")
	return track, nil
}

func (x *execution) normalize(raw subtitle.Track) (subtitle.Track, error) {
	started := time.Now()
	path := x.paths.Clean()
	opts := normalize.Options{
		MinDuration: x.runner.opts.Normalize.MinDuration,
		Continuous:  x.req.Continuous,
	}
	check := func(t subtitle.Track) error {
		return subtitle.Validate(StageNormalize, t, subtitle.ValidateOptions{MinDuration: opts.MinDuration})
	}
	if track, ok := x.reuse(StageNormalize, path, check); ok {
		x.note(StageNormalize, started, StageSkipped, track.Len(), path, "artifact reused")
		return track, nil
	}
	x.fresh = true

	clean, report := normalize.Normalize(raw, opts)
	x.logger.Infow("normalized track",
		"input", report.Input,
		"output", report.Output,
		"empty", report.Empty,
		"duplicate", report.Duplicate,
		"overlap", report.Overlap,
		"short", report.Short,
		"repaired", report.Repaired,
	)
	if clean.Len() == 0 {
		return subtitle.Track{}, x.stageFailed(StageNormalize, started,
			failure.Input(StageNormalize, fmt.Sprintf("all %d cues were dropped", report.Input), nil))
	}
	if err := check(clean); err != nil {
		return subtitle.Track{}, x.stageFailed(StageNormalize, started, err)
	}

	if err := x.write(path, clean, subtitle.LayoutPrimary, subtitle.FormatSRT); err != nil {
		return subtitle.Track{}, x.stageFailed(StageNormalize, started, err)
	}
	x.note(StageNormalize, started, StageDone, clean.Len(), path,
		fmt.Sprintf("dropped %d, repaired %d", report.Dropped(), report.Repaired))
	return clean, nil
}

func (x *execution) segment(clean subtitle.Track) (subtitle.Track, error) {
	started := time.Now()
	path := x.paths.Sentences()
	check := func(t subtitle.Track) error {
		return subtitle.Validate(StageSegment, t, subtitle.ValidateOptions{WaiveMinDuration: true})
	}
	if track, ok := x.reuse(StageSegment, path, check); ok {
		x.note(StageSegment, started, StageSkipped, track.Len(), path, "artifact reused")
		return track, nil
	}
	x.fresh = true

	sentences, report := segment.Segment(clean, segment.Options{
		MinDuration: x.req.MinDuration,
		MaxDuration: x.req.MaxDuration,
	})
	if report.Waived > 0 {
		x.logger.Infow("minimum duration waived for short cues", "cues", report.Waived)
	}
	if err := check(sentences); err != nil {
		return subtitle.Track{}, x.stageFailed(StageSegment, started, err)
	}

	if err := x.write(path, sentences, subtitle.LayoutPrimary, subtitle.FormatSRT); err != nil {
		return subtitle.Track{}, x.stageFailed(StageSegment, started, err)
	}
	x.note(StageSegment, started, StageDone, sentences.Len(), path,
		fmt.Sprintf("%d cues merged into %d sentences", report.Input, report.Output))
	return sentences, nil
}

func (x *execution) engineOptions() translate.EngineOptions {
	opts := x.runner.opts.Translate
	if x.req.Mode != "" {
		opts.Mode = x.req.Mode
	}
	if x.req.BatchSize > 0 {
		opts.BatchSize = x.req.BatchSize
	}
	if x.req.Delay > 0 {
		opts.Pacer = translate.NewPacer(x.req.Delay)
	}
	opts.Logger = x.logger.With("stage", StageTranslate)
	return opts
}

func (x *execution) translate(ctx context.Context, sentences subtitle.Track) (subtitle.Track, error) {
	started := time.Now()
	path := x.paths.Translated()
	if track, ok := x.reuseTranslation(sentences); ok {
		x.note(StageTranslate, started, StageSkipped, track.Len(), path, "artifact reused")
		return track, nil
	}
	x.fresh = true

	engine := translate.NewEngine(x.runner.deps.Backend, x.engineOptions())
	res, err := engine.Translate(ctx, sentences, x.req.TargetLang, x.flag)
	if err != nil {
		return subtitle.Track{}, x.stageFailed(StageTranslate, started, err)
	}
	x.degraded = res.Degraded

	if res.Cancelled {
		done := 0
		for _, c := range res.Track.Cues {
			if c.Secondary != "" {
				done++
			}
		}
		if x.req.PersistCancelled {
			x.persistPartial(ctx, res.Track)
		}
		x.note(StageTranslate, started, StageCancelled, done, "",
			fmt.Sprintf("%d of %d cues translated", done, res.Track.Len()))
		return subtitle.Track{}, errCancelRequested
	}

	if err := subtitle.CheckAligned(StageTranslate, sentences, res.Track); err != nil {
		return subtitle.Track{}, x.stageFailed(StageTranslate, started, err)
	}
	if err := x.write(path, res.Track, subtitle.LayoutSecondary, subtitle.FormatSRT); err != nil {
		return subtitle.Track{}, x.stageFailed(StageTranslate, started, err)
	}
	x.record.DegradedSeqs = degradedSeqs(res.Track)
	x.note(StageTranslate, started, StageDone, res.Track.Len(), path,
		fmt.Sprintf("%d degraded, %d calls, %d cache hits", res.Degraded, res.Calls, res.CacheHits))
	return res.Track, nil
}

// reuseTranslation rebuilds the translated track from the monolingual target
// artifact when it is still aligned with the sentences, restoring degraded
// flags from the previous run record.
func (x *execution) reuseTranslation(sentences subtitle.Track) (subtitle.Track, bool) {
	parsed, ok := x.reuse(StageTranslate, x.paths.Translated(), func(t subtitle.Track) error {
		return subtitle.CheckAligned(StageTranslate, sentences, t)
	})
	if !ok {
		return subtitle.Track{}, false
	}

	flagged := map[int]bool{}
	if x.prev != nil && x.prev.TargetLang == x.req.TargetLang {
		for _, seq := range x.prev.DegradedSeqs {
			flagged[seq] = true
		}
	}

	out := sentences.Clone()
	out.LangSecondary = x.req.TargetLang
	for i := range out.Cues {
		out.Cues[i].Secondary = parsed.Cues[i].Primary
		out.Cues[i].Degraded = flagged[out.Cues[i].Seq]
	}
	x.degraded = out.DegradedCount()
	x.record.DegradedSeqs = degradedSeqs(out)
	return out, true
}

func degradedSeqs(track subtitle.Track) []int {
	var seqs []int
	for _, c := range track.Cues {
		if c.Degraded {
			seqs = append(seqs, c.Seq)
		}
	}
	return seqs
}

func (x *execution) merge(sentences, translated subtitle.Track) (subtitle.Track, error) {
	started := time.Now()
	merged, err := bilingual.Merge(sentences, translated)
	if err != nil {
		return subtitle.Track{}, x.stageFailed(StageMerge, started, err)
	}
	if err := x.write(x.paths.Bilingual(), merged, subtitle.LayoutBilingual, subtitle.FormatSRT); err != nil {
		return subtitle.Track{}, x.stageFailed(StageMerge, started, err)
	}
	if err := x.write(x.paths.BilingualVTT(), merged, subtitle.LayoutBilingual, subtitle.FormatVTT); err != nil {
		return subtitle.Track{}, x.stageFailed(StageMerge, started, err)
	}
	x.note(StageMerge, started, StageDone, merged.Len(), x.paths.Bilingual(), "")
	return merged, nil
}

func (x *execution) persist(ctx context.Context, merged subtitle.Track) error {
	started := time.Now()
	st := x.runner.deps.Store
	if !x.req.Persist || st == nil {
		x.note(StagePersist, started, StageSkipped, 0, "", "persistence disabled")
		return nil
	}
	rows, err := st.UpsertTrack(ctx, merged)
	if err != nil {
		return x.stageFailed(StagePersist, started, err)
	}
	x.rows = rows
	x.record.Rows = rows
	x.note(StagePersist, started, StageDone, rows, "", "")
	return nil
}

// persistPartial writes a cancelled run's cues on explicit request; failures
// are logged because the run is already ending.
func (x *execution) persistPartial(ctx context.Context, partial subtitle.Track) {
	st := x.runner.deps.Store
	if st == nil {
		return
	}
	rows, err := st.UpsertTrack(context.WithoutCancel(ctx), partial)
	if err != nil {
		x.logger.Warnw("failed to persist cancelled run", "error", err)
		return
	}
	x.rows = rows
	x.record.Rows = rows
	x.logger.Infow("persisted partial track of cancelled run", "rows", rows)
}

// finish moves the run into its terminal state and removes outputs that
// must not outlive an unsuccessful run.
func (x *execution) finish(ctx context.Context, err error) Result {
	rec := x.record
	switch {
	case err == nil:
		rec.State = StateDone
	case failure.Kind(err) == "cancelled":
		rec.State = StateCancelled
		rec.ErrorKind = failure.Kind(err)
	default:
		rec.State = StateFailed
		rec.Error = err.Error()
		rec.ErrorKind = failure.Kind(err)
	}

	if rec.State != StateDone {
		if rmErr := x.paths.removeFinal(); rmErr != nil {
			x.logger.Warnw("failed to remove bilingual output", "error", rmErr)
		}
	}

	if rec.State == StateDone && x.runner.deps.Publisher != nil {
		x.publish(ctx)
	}

	finished := time.Now().UTC()
	rec.FinishedAt = &finished
	x.save()

	res := Result{
		RunID:     rec.RunID,
		VideoID:   rec.VideoID,
		State:     rec.State,
		Rows:      x.rows,
		Degraded:  x.degraded,
		Stages:    rec.Stages,
		Published: rec.Published,
	}
	switch rec.State {
	case StateDone:
		res.BilingualPath = x.paths.Bilingual()
		x.logger.Infow("run finished",
			"state", rec.State,
			"output", res.BilingualPath,
			"rows", res.Rows,
			"degraded", res.Degraded,
		)
	case StateCancelled:
		x.logger.Infow("run cancelled", "rows", res.Rows)
	default:
		res.Err = err
		x.logger.Errorw("run failed", "error", err, "kind", rec.ErrorKind)
	}
	return res
}

// publish uploads the finished outputs; a failed upload never fails the run.
func (x *execution) publish(ctx context.Context) {
	started := time.Now()
	files := []string{x.paths.Bilingual(), x.paths.BilingualVTT()}
	keys, err := x.runner.deps.Publisher.Publish(ctx, x.req.VideoID, files)
	if err != nil {
		x.note(StagePublish, started, StageFailed, 0, "", err.Error())
		x.logger.Warnw("publish failed", "error", err)
		return
	}
	x.record.Published = keys
	x.note(StagePublish, started, StageDone, len(keys), "", "")
}
