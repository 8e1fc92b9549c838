package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mgpai22/bilingo/internal/bilingual"
	"github.com/mgpai22/bilingo/internal/failure"
	"github.com/mgpai22/bilingo/internal/subtitle"
	"github.com/mgpai22/bilingo/internal/translate"
)

var translateCmd = &cobra.Command{
	Use:   "translate [subtitle_file]",
	Short: "Translate an existing SRT and merge it into a bilingual SRT",
	Long: `Translate every cue of an SRT file and write two files next to it:
<name>.<target>.srt with only the translation, and <name>.bi.srt with the
source line above the translated line.

Cues whose translation fails keep their source text and are reported as
degraded. Ctrl+C stops after the batches in flight and writes nothing.

Examples:
  bilingo translate lesson01.sent.srt
  bilingo translate lesson01.srt --mode per_cue --delay 1s
  bilingo translate lesson01.srt -t ja -o lesson01.ja.srt`,
	Args: cobra.ExactArgs(1),
	RunE: runTranslate,
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().
		StringP("target-language", "t", "", "Target language tag (default from config)")
	translateCmd.Flags().
		StringP("output", "o", "", "Path of the translation-only SRT")
	translateCmd.Flags().
		StringP("mode", "m", "", "Translation mode (per_cue, batch)")
	translateCmd.Flags().
		Int("batch-size", 0, "Cues per request in batch mode")
	translateCmd.Flags().
		Duration("delay", -1, "Pause between requests (default from config)")
	translateCmd.Flags().
		String("provider", "", "Translation provider (openai, gemini, anthropic, echo)")
}

func runTranslate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	input := args[0]

	target, _ := cmd.Flags().GetString("target-language")
	output, _ := cmd.Flags().GetString("output")
	mode, _ := cmd.Flags().GetString("mode")
	batchSize, _ := cmd.Flags().GetInt("batch-size")
	delay, _ := cmd.Flags().GetDuration("delay")
	provider, _ := cmd.Flags().GetString("provider")

	if target == "" {
		target = cfg.Translate.TargetLanguage
	}
	target, err := subtitle.CanonicalTag(target)
	if err != nil || target == "" {
		return failure.Input("cli", "invalid target language", err)
	}

	c := *cfg
	if provider != "" {
		c.Translate.Provider = strings.ToLower(provider)
	}
	if mode != "" {
		c.Translate.Mode = strings.ToLower(mode)
	}
	if batchSize > 0 {
		c.Translate.BatchSize = batchSize
	}
	if delay >= 0 {
		c.Translate.DelayMS = int(delay.Milliseconds())
	}
	if err := c.Validate(); err != nil {
		return failure.Input("cli", "invalid options", err)
	}

	source, err := readTrack(input, false)
	if err != nil {
		return err
	}
	if source.LangPrimary == "" {
		source.LangPrimary = cfg.Transcribe.Language
	}

	backend, err := newBackend(ctx, &c)
	if err != nil {
		return err
	}
	tc, err := newCache(ctx, &c)
	if err != nil {
		return err
	}
	defer tc.Close()

	engine := translate.NewEngine(backend, engineOptions(&c, tc))

	logger.Infow("Translating",
		"input", input,
		"cues", source.Len(),
		"provider", c.Translate.Provider,
		"mode", c.Translate.Mode,
		"target", target,
	)
	res, err := engine.Translate(ctx, source, target, nil)
	if err != nil {
		return err
	}
	if res.Cancelled {
		return failure.Wrap(failure.ErrCancelled, "translate", "", "interrupted before every cue was translated", nil)
	}

	merged, err := bilingual.Merge(source, res.Track)
	if err != nil {
		return err
	}

	translatedPath := outputPathFor(input, output, "."+target+".srt")
	bilingualPath := outputPathFor(input, "", ".bi.srt")
	if err := writeTrack(res.Track, translatedPath, subtitle.LayoutSecondary); err != nil {
		return err
	}
	if err := writeTrack(merged, bilingualPath, subtitle.LayoutBilingual); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Translated %d cues (%d degraded, %d requests, %d cached)\n",
		res.Track.Len(), res.Degraded, res.Calls, res.CacheHits)
	fmt.Fprintf(out, "  %s\n  %s\n", absPath(translatedPath), absPath(bilingualPath))
	return nil
}
