package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mgpai22/bilingo/internal/failure"
	"github.com/mgpai22/bilingo/internal/pipeline"
	"github.com/mgpai22/bilingo/internal/store"
	"github.com/mgpai22/bilingo/internal/subtitle"
)

var showCmd = &cobra.Command{
	Use:   "show [video_id]",
	Short: "Print the stored bilingual track of a video",
	Long: `Load the rows stored for a video and print them as a bilingual SRT or as
a table.

Examples:
  bilingo show L01
  bilingo show L01 --format table`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

var purgeCmd = &cobra.Command{
	Use:   "purge [video_id]",
	Short: "Delete the stored rows of a video",
	Args:  cobra.ExactArgs(1),
	RunE:  runPurge,
}

var statusCmd = &cobra.Command{
	Use:   "status [video_id]",
	Short: "Show the last run record of a video",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(showCmd, purgeCmd, statusCmd)

	showCmd.Flags().StringP("format", "f", "srt", "Output format (srt, table)")
}

func requireStore(cmd *cobra.Command) (store.Store, error) {
	st, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, failure.Input("cli", "no database configured (store.driver is none)", nil)
	}
	return st, nil
}

func runShow(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	format = strings.ToLower(format)
	if format != "srt" && format != "table" {
		return failure.Input("cli", fmt.Sprintf("unsupported format %q: use srt or table", format), nil)
	}

	st, err := requireStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	track, err := st.LoadTrack(cmd.Context(), args[0])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return failure.Input("cli", fmt.Sprintf("no stored track for video %s", args[0]), err)
		}
		return err
	}

	out := cmd.OutOrStdout()
	if format == "srt" {
		fmt.Fprint(out, subtitle.FormatSRTString(track, subtitle.LayoutBilingual))
		return nil
	}
	fmt.Fprintln(out, renderTrack(track))
	fmt.Fprintf(out, "%s cues, %d degraded\n", humanize.Comma(int64(track.Len())), track.DegradedCount())
	return nil
}

func renderTrack(track subtitle.Track) string {
	rows := make([][]string, 0, track.Len())
	for _, c := range track.Cues {
		flag := ""
		if c.Degraded {
			flag = "degraded"
		}
		rows = append(rows, []string{
			strconv.Itoa(c.Seq),
			subtitle.FormatTimecode(c.Start),
			subtitle.FormatTimecode(c.End),
			c.Primary,
			c.Secondary,
			flag,
		})
	}
	return renderTable(
		[]string{"#", "Start", "End", track.LangPrimary, track.LangSecondary, ""},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
	)
}

func runPurge(cmd *cobra.Command, args []string) error {
	st, err := requireStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	n, err := st.Purge(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	logger.Infow("Purged video", "video_id", args[0], "rows", n)
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s rows for %s\n", humanize.Comma(int64(n)), args[0])
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	if err := pipeline.CheckVideoID(args[0]); err != nil {
		return failure.Input("cli", err.Error(), nil)
	}
	rec, err := pipeline.ReadRecord(pipeline.RecordPath(cfg.Paths.WorkDir, args[0]))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return failure.Input("cli", fmt.Sprintf("no run record for video %s", args[0]), err)
		}
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderRecord(rec, time.Now()))
	return nil
}

func renderRecord(rec *pipeline.Record, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Video:    %s\n", rec.VideoID)
	fmt.Fprintf(&b, "Run:      %s\n", rec.RunID)
	fmt.Fprintf(&b, "State:    %s\n", rec.State)
	fmt.Fprintf(&b, "Started:  %s\n", humanize.RelTime(rec.StartedAt, now, "ago", "from now"))
	if rec.FinishedAt != nil {
		fmt.Fprintf(&b, "Took:     %s\n", rec.FinishedAt.Sub(rec.StartedAt).Round(time.Second))
	}
	if rec.Rows > 0 {
		fmt.Fprintf(&b, "Rows:     %d\n", rec.Rows)
	}
	if len(rec.DegradedSeqs) > 0 {
		fmt.Fprintf(&b, "Degraded: %s\n", joinInts(rec.DegradedSeqs))
	}
	if rec.Error != "" {
		fmt.Fprintf(&b, "Error:    %s (%s)\n", rec.Error, rec.ErrorKind)
	}

	rows := make([][]string, 0, len(rec.Stages))
	for _, s := range rec.Stages {
		cues := ""
		if s.Cues > 0 {
			cues = strconv.Itoa(s.Cues)
		}
		detail := s.Detail
		if detail == "" {
			detail = s.Artifact
		}
		rows = append(rows, []string{
			s.Stage,
			string(s.Status),
			cues,
			(time.Duration(s.DurationMS) * time.Millisecond).String(),
			detail,
		})
	}
	b.WriteString(renderTable(
		[]string{"Stage", "Status", "Cues", "Took", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	))
	return b.String()
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}
