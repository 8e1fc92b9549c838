package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mgpai22/bilingo/internal/audio"
	"github.com/mgpai22/bilingo/internal/failure"
)

var extractCmd = &cobra.Command{
	Use:   "extract [media_file]",
	Short: "Extract or re-encode the audio track of a media file",
	Long: `Write the audio track of a video or audio file in the shape transcription
backends expect. The defaults produce a mono 16 kHz mp3.

Supported output formats: wav, mp3, aac, flac.

Examples:
  bilingo extract lesson01.mp4
  bilingo extract lesson01.mp4 -d ./audio -f wav
  bilingo extract lesson01.mkv --format flac --sample-rate 44100 --channels 2`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

var validExtractFormats = map[string]bool{
	"wav":  true,
	"mp3":  true,
	"aac":  true,
	"flac": true,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	defaults := audio.DefaultPrepareOptions()
	extractCmd.Flags().
		StringP("dir", "d", "", "Output directory (defaults to the input's directory)")
	extractCmd.Flags().
		StringP("format", "f", defaults.Format, "Output audio format (wav, mp3, aac, flac)")
	extractCmd.Flags().
		IntP("sample-rate", "r", defaults.SampleRate, "Sample rate in Hz (e.g., 16000, 44100, 48000)")
	extractCmd.Flags().
		Int("channels", defaults.Channels, "Number of audio channels (1=mono, 2=stereo)")
	extractCmd.Flags().
		StringP("bitrate", "b", defaults.Bitrate, "Bitrate for lossy formats (e.g., 64k, 128k)")
	extractCmd.Annotations = map[string]string{skipConfig: "true"}
}

func runExtract(cmd *cobra.Command, args []string) error {
	input := args[0]

	dir, _ := cmd.Flags().GetString("dir")
	format, _ := cmd.Flags().GetString("format")
	sampleRate, _ := cmd.Flags().GetInt("sample-rate")
	channels, _ := cmd.Flags().GetInt("channels")
	bitrate, _ := cmd.Flags().GetString("bitrate")

	if !validExtractFormats[format] {
		return failure.Input("cli", fmt.Sprintf(
			"invalid format %q: supported formats are wav, mp3, aac, flac", format,
		), nil)
	}
	if !audio.IsMediaFile(input) {
		return failure.Input("cli", fmt.Sprintf("unsupported file type: %s", filepath.Ext(input)), nil)
	}
	if dir == "" {
		dir = filepath.Dir(input)
	}

	logger.Infow("Extracting audio",
		"input", input,
		"dir", dir,
		"format", format,
		"sample_rate", sampleRate,
		"channels", channels,
	)

	output, err := audio.Prepare(cmd.Context(), input, dir, audio.PrepareOptions{
		Format:     format,
		SampleRate: sampleRate,
		Channels:   channels,
		Bitrate:    bitrate,
	})
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	size := ""
	if info, err := os.Stat(output); err == nil {
		size = " (" + humanize.Bytes(uint64(info.Size())) + ")"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Audio extracted successfully: %s%s\n", absPath(output), size)
	return nil
}
