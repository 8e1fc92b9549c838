package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mgpai22/bilingo/internal/audio"
	"github.com/mgpai22/bilingo/internal/failure"
	"github.com/mgpai22/bilingo/internal/pipeline"
	"github.com/mgpai22/bilingo/internal/transcribe"
	"github.com/mgpai22/bilingo/internal/translate"
)

var generateCmd = &cobra.Command{
	Use:     "run [media_file...]",
	Aliases: []string{"generate"},
	Short:   "Run the full bilingual subtitle pipeline",
	Long: `Run every stage for one or more audio or video files: transcribe, clean,
re-segment into sentences, translate, merge into a bilingual SRT, and store
the result one row per cue.

Video files have their audio extracted into the work directory first.
Artifacts of earlier runs are reused unless --force is given. Press Ctrl+C
to cancel; in-flight runs stop at the next stage boundary and leave no
bilingual output behind.

Examples:
  bilingo run lesson01.mp4
  bilingo run lesson01.mp3 --video-id L01 --mode per_cue
  bilingo run week1/*.mp4 --parallel 2 --tier medium
  bilingo run lesson01.mp4 --force --no-persist`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().
		String("video-id", "", "Video identifier (single input only; defaults to the file name)")
	generateCmd.Flags().
		StringP("target-language", "t", "", "Target language tag (default from config, zh-TW)")
	generateCmd.Flags().
		StringP("language", "l", "", "Spoken language of the media (default from config, en)")
	generateCmd.Flags().
		String("tier", "", "Transcription model tier (tiny, base, small, medium, large)")
	generateCmd.Flags().
		StringP("mode", "m", "", "Translation mode (per_cue, batch)")
	generateCmd.Flags().
		Int("batch-size", 0, "Cues per translation request in batch mode")
	generateCmd.Flags().
		Duration("delay", 0, "Pause between translation requests (e.g. 500ms)")
	generateCmd.Flags().
		Int64("min-duration", 0, "Lower clamp in ms for the time given to each split sentence")
	generateCmd.Flags().
		Int64("max-duration", 0, "Upper clamp in ms for the time given to each split sentence")
	generateCmd.Flags().
		Bool("continuous", false, "Extend each cue to the start of the next")
	generateCmd.Flags().
		Bool("force", false, "Rerun every stage even when artifacts exist")
	generateCmd.Flags().
		Bool("no-persist", false, "Skip writing the track to the database")
	generateCmd.Flags().
		Bool("persist-cancelled", false, "Store the partial track of a cancelled run")
	generateCmd.Flags().
		IntP("parallel", "p", 1, "Number of videos processed at once")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	videoID, _ := cmd.Flags().GetString("video-id")
	if videoID != "" && len(args) > 1 {
		return failure.Input("cli", "--video-id applies to a single input", nil)
	}
	parallel, _ := cmd.Flags().GetInt("parallel")

	template, err := requestFromFlags(cmd)
	if err != nil {
		return err
	}

	rt, err := newSession(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	reqs := make([]pipeline.Request, 0, len(args))
	for _, mediaPath := range args {
		if _, err := os.Stat(mediaPath); err != nil {
			return failure.Input("cli", fmt.Sprintf("file not found: %s", mediaPath), err)
		}
		if !audio.IsMediaFile(mediaPath) {
			return failure.Input("cli", fmt.Sprintf(
				"unsupported file type: %s (expected audio or video file)", filepath.Ext(mediaPath),
			), nil)
		}

		req := template
		req.VideoID = videoID
		if req.VideoID == "" {
			req.VideoID = videoIDFromPath(mediaPath)
		}
		if err := pipeline.CheckVideoID(req.VideoID); err != nil {
			return failure.Input("cli", err.Error(), nil)
		}
		req.AudioPath = mediaPath
		reqs = append(reqs, req)
	}

	for i := range reqs {
		if !audio.IsVideoFile(reqs[i].AudioPath) {
			continue
		}
		audioPath, err := extractForRun(ctx, reqs[i])
		if err != nil {
			return failure.Wrap(failure.ErrInput, "cli", "extract", reqs[i].AudioPath, err)
		}
		reqs[i].AudioPath = audioPath
	}

	logger.Infow("Starting pipeline",
		"videos", len(reqs),
		"parallel", parallel,
		"work_dir", cfg.Paths.WorkDir,
	)

	results := rt.runner.RunMany(ctx, reqs, parallel)
	fmt.Fprintln(cmd.OutOrStdout(), renderResults(results))
	return summarize(results)
}

// requestFromFlags builds the per-run overrides shared by every input.
func requestFromFlags(cmd *cobra.Command) (pipeline.Request, error) {
	flags := cmd.Flags()
	target, _ := flags.GetString("target-language")
	source, _ := flags.GetString("language")
	tierStr, _ := flags.GetString("tier")
	mode, _ := flags.GetString("mode")
	batchSize, _ := flags.GetInt("batch-size")
	delay, _ := flags.GetDuration("delay")
	minDur, _ := flags.GetInt64("min-duration")
	maxDur, _ := flags.GetInt64("max-duration")
	continuous, _ := flags.GetBool("continuous")
	force, _ := flags.GetBool("force")
	noPersist, _ := flags.GetBool("no-persist")
	persistCancelled, _ := flags.GetBool("persist-cancelled")

	req := pipeline.Request{
		SourceLang:       source,
		TargetLang:       target,
		Mode:             translate.Mode(strings.ToLower(mode)),
		BatchSize:        batchSize,
		Delay:            delay,
		MinDuration:      minDur,
		MaxDuration:      maxDur,
		Continuous:       continuous,
		Force:            force,
		Persist:          !noPersist,
		PersistCancelled: persistCancelled,
	}
	if req.Mode == "" {
		req.Mode = translate.Mode(cfg.Translate.Mode)
	}
	if req.BatchSize == 0 {
		req.BatchSize = cfg.Translate.BatchSize
	}
	if tierStr != "" {
		tier, err := transcribe.ParseTier(tierStr)
		if err != nil {
			return pipeline.Request{}, err
		}
		req.Tier = tier
	}
	if delay < 0 {
		return pipeline.Request{}, failure.Input("cli", "--delay must not be negative", nil)
	}
	return req, nil
}

// extractForRun pulls the audio track of a video into the run directory,
// reusing an earlier extraction unless the run is forced.
func extractForRun(ctx context.Context, req pipeline.Request) (string, error) {
	dir := filepath.Join(cfg.Paths.WorkDir, req.VideoID)
	opts := audio.DefaultPrepareOptions()
	base := strings.TrimSuffix(filepath.Base(req.AudioPath), filepath.Ext(req.AudioPath))
	existing := filepath.Join(dir, base+".prepared."+opts.Format)
	if !req.Force {
		if info, err := os.Stat(existing); err == nil && info.Size() > 0 {
			logger.Debugw("Reusing extracted audio", "video_id", req.VideoID, "path", existing)
			return existing, nil
		}
	}
	logger.Infow("Extracting audio from video", "video_id", req.VideoID, "input", req.AudioPath)
	return audio.Prepare(ctx, req.AudioPath, dir, opts)
}

// videoIDFromPath derives an id from the media file name.
func videoIDFromPath(path string) string {
	base := filepath.Base(path)
	id := strings.TrimSuffix(base, filepath.Ext(base))
	id = strings.TrimSpace(id)
	return strings.Join(strings.Fields(id), "_")
}

func renderResults(results []pipeline.Result) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		outcome := r.BilingualPath
		if r.Err != nil {
			outcome = r.Err.Error()
		}
		rows = append(rows, []string{
			r.VideoID,
			string(r.State),
			strconv.Itoa(r.Rows),
			strconv.Itoa(r.Degraded),
			formatElapsed(r.Stages),
			outcome,
		})
	}
	return renderTable(
		[]string{"Video", "State", "Rows", "Degraded", "Elapsed", "Output"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft},
	)
}

func formatElapsed(stages []pipeline.StageRecord) string {
	var total int64
	for _, s := range stages {
		total += s.DurationMS
	}
	if total == 0 {
		return "-"
	}
	return (time.Duration(total) * time.Millisecond).Round(100 * time.Millisecond).String()
}

// summarize turns the batch outcome into the command error: failures win
// over cancellations.
func summarize(results []pipeline.Result) error {
	var failed, cancelled int
	for _, r := range results {
		switch r.State {
		case pipeline.StateFailed:
			failed++
		case pipeline.StateCancelled:
			cancelled++
		}
	}
	switch {
	case failed > 0:
		return &exitError{code: 1, msg: fmt.Sprintf("%d of %d runs failed", failed, len(results))}
	case cancelled > 0:
		return &exitError{code: 130, msg: fmt.Sprintf("%d of %d runs cancelled", cancelled, len(results))}
	default:
		return nil
	}
}
