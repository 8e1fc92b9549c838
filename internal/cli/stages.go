package cli

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mgpai22/bilingo/internal/audio"
	"github.com/mgpai22/bilingo/internal/failure"
	"github.com/mgpai22/bilingo/internal/normalize"
	"github.com/mgpai22/bilingo/internal/segment"
	"github.com/mgpai22/bilingo/internal/subtitle"
	"github.com/mgpai22/bilingo/internal/transcribe"
)

var transcribeCmd = &cobra.Command{
	Use:   "transcribe [media_file]",
	Short: "Transcribe audio into a raw SRT",
	Long: `Run only the transcription stage and write the backend's natural segments
as an SRT file.

Examples:
  bilingo transcribe lesson01.mp3
  bilingo transcribe lesson01.wav --tier large -o lesson01.raw.srt`,
	Args: cobra.ExactArgs(1),
	RunE: runTranscribe,
}

var normalizeCmd = &cobra.Command{
	Use:   "normalize [subtitle_file]",
	Short: "Clean a raw SRT",
	Long: `Drop empty and duplicate cues, repair overlaps, remove cues that are too
short, and renumber. Writes <name>.clean.srt unless -o is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runNormalize,
}

var segmentCmd = &cobra.Command{
	Use:   "segment [subtitle_file]",
	Short: "Re-segment a clean SRT into sentence cues",
	Long: `Merge fragments into whole sentences and split cues that run too long,
distributing time by text weight. Writes <name>.sent.srt unless -o is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runSegment,
}

func init() {
	rootCmd.AddCommand(transcribeCmd, normalizeCmd, segmentCmd)

	transcribeCmd.Flags().StringP("output", "o", "", "Output SRT path")
	transcribeCmd.Flags().StringP("language", "l", "", "Spoken language of the media")
	transcribeCmd.Flags().String("tier", "", "Model tier (tiny, base, small, medium, large)")

	normalizeCmd.Flags().StringP("output", "o", "", "Output SRT path")
	normalizeCmd.Flags().Int64("min-duration", 0, "Drop cues shorter than this many ms")
	normalizeCmd.Flags().Bool("continuous", false, "Extend each cue to the start of the next")

	segmentCmd.Flags().StringP("output", "o", "", "Output SRT path")
	segmentCmd.Flags().Int64("min-duration", 0, "Lower clamp in ms for the time given to each split sentence")
	segmentCmd.Flags().Int64("max-duration", 0, "Upper clamp in ms for the time given to each split sentence")
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	mediaPath := args[0]
	if !audio.IsMediaFile(mediaPath) {
		return failure.Input("cli", fmt.Sprintf("unsupported file type: %s", filepath.Ext(mediaPath)), nil)
	}

	output, _ := cmd.Flags().GetString("output")
	language, _ := cmd.Flags().GetString("language")
	tierStr, _ := cmd.Flags().GetString("tier")
	if language == "" {
		language = cfg.Transcribe.Language
	}
	if tierStr == "" {
		tierStr = cfg.Transcribe.Tier
	}
	tier, err := transcribe.ParseTier(tierStr)
	if err != nil {
		return err
	}
	output = outputPathFor(mediaPath, output, ".raw.srt")

	t, err := newTranscriber(ctx, cfg)
	if err != nil {
		return err
	}

	logger.Infow("Transcribing",
		"input", mediaPath,
		"provider", cfg.Transcribe.Provider,
		"tier", tier,
		"language", language,
	)
	track, err := t.Transcribe(ctx, transcribe.Request{
		AudioPath: mediaPath,
		Language:  language,
		Tier:      tier,
		VideoID:   videoIDFromPath(mediaPath),
	})
	if err != nil {
		return err
	}
	if err := writeTrack(track, output, subtitle.LayoutPrimary); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Transcribed %d cues: %s\n", track.Len(), absPath(output))
	return nil
}

func runNormalize(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	minDur, _ := cmd.Flags().GetInt64("min-duration")
	continuous, _ := cmd.Flags().GetBool("continuous")
	if minDur == 0 {
		minDur = cfg.Normalize.MinDurationMS
	}

	track, err := readTrack(args[0], false)
	if err != nil {
		return err
	}

	clean, report := normalize.Normalize(track, normalize.Options{
		MinDuration: minDur,
		Continuous:  continuous || cfg.Normalize.Continuous,
	})
	if clean.Len() == 0 {
		return failure.Input("normalize", fmt.Sprintf("all %d cues were dropped", report.Input), nil)
	}
	if err := subtitle.Validate("normalize", clean, subtitle.ValidateOptions{MinDuration: minDur}); err != nil {
		return err
	}

	output = outputPathFor(args[0], output, ".clean.srt")
	if err := writeTrack(clean, output, subtitle.LayoutPrimary); err != nil {
		return err
	}

	logger.Infow("Normalized",
		"input", report.Input,
		"output", report.Output,
		"empty", report.Empty,
		"duplicate", report.Duplicate,
		"overlap", report.Overlap,
		"short", report.Short,
		"repaired", report.Repaired,
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Kept %d of %d cues: %s\n", report.Output, report.Input, absPath(output))
	return nil
}

func runSegment(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")
	minDur, _ := cmd.Flags().GetInt64("min-duration")
	maxDur, _ := cmd.Flags().GetInt64("max-duration")
	if minDur == 0 {
		minDur = cfg.Segment.MinDurationMS
	}
	if maxDur == 0 {
		maxDur = cfg.Segment.MaxDurationMS
	}
	if minDur >= maxDur {
		return failure.Input("segment", fmt.Sprintf("min duration %dms must be below max duration %dms", minDur, maxDur), nil)
	}

	track, err := readTrack(args[0], false)
	if err != nil {
		return err
	}

	sentences, report := segment.Segment(track, segment.Options{MinDuration: minDur, MaxDuration: maxDur})
	if err := subtitle.Validate("segment", sentences, subtitle.ValidateOptions{
		MinDuration:      minDur,
		WaiveMinDuration: true,
	}); err != nil {
		return err
	}

	output = outputPathFor(args[0], output, ".sent.srt")
	if err := writeTrack(sentences, output, subtitle.LayoutPrimary); err != nil {
		return err
	}

	logger.Infow("Segmented",
		"input", report.Input,
		"merged", report.Merged,
		"output", report.Output,
		"waived", report.Waived,
	)
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d sentence cues: %s\n", sentences.Len(), absPath(output))
	return nil
}

// readTrack parses an SRT and logs every skipped block.
func readTrack(path string, bilingual bool) (subtitle.Track, error) {
	track, warnings, err := subtitle.ReadSRTFile(path, subtitle.ParseOptions{Bilingual: bilingual})
	if err != nil {
		return subtitle.Track{}, failure.Input("cli", "read subtitles", err)
	}
	for _, w := range warnings {
		logger.Warnw("Skipped subtitle block", "file", path, "warning", w.String())
	}
	if track.Len() == 0 {
		return subtitle.Track{}, failure.Input("cli", fmt.Sprintf("%s has no cues", path), nil)
	}
	track.VideoID = videoIDFromPath(path)
	return track, nil
}

func writeTrack(track subtitle.Track, path string, layout subtitle.Layout) error {
	format := subtitle.GetFormatFromExtension(path)
	w, err := subtitle.NewWriter(format, layout)
	if err != nil {
		return err
	}
	if err := w.Write(track, path); err != nil {
		return failure.Wrap(failure.ErrPersistence, "cli", "write", path, err)
	}
	return nil
}

var stageSuffixes = []string{".raw", ".clean", ".sent", ".bi"}

// outputPathFor returns output when set, otherwise input with its extension
// and any stage suffix replaced by suffix.
func outputPathFor(input, output, suffix string) string {
	if output != "" {
		return output
	}
	base := strings.TrimSuffix(input, filepath.Ext(input))
	for _, s := range stageSuffixes {
		if strings.HasSuffix(base, s) {
			base = strings.TrimSuffix(base, s)
			break
		}
	}
	return base + suffix
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
