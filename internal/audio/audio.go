package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	ffmpegbin "github.com/mgpai22/bilingo/internal/ffmpeg"
)

// settings for the audio handed to transcription backends
type PrepareOptions struct {
	Format     string // Output format (mp3, wav, flac)
	SampleRate int    // Sample rate in Hz
	Channels   int    // Number of channels (1=mono, 2=stereo)
	Bitrate    string // Bitrate for lossy formats (e.g., "64k")
}

// mono 16 kHz mp3, small enough for hosted speech APIs
func DefaultPrepareOptions() PrepareOptions {
	return PrepareOptions{
		Format:     "mp3",
		SampleRate: 16000,
		Channels:   1,
		Bitrate:    "64k",
	}
}

// JSON output from ffprobe
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Duration probes the container duration of an audio or video file.
func Duration(ctx context.Context, filePath string) (time.Duration, error) {
	if _, err := os.Stat(filePath); err != nil {
		return 0, fmt.Errorf("file not found: %s", filePath)
	}

	ffprobePath, err := ffmpegbin.FFprobePath()
	if err != nil {
		return 0, err
	}

	cmd := exec.CommandContext(ctx, ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		filePath,
	)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	return parseProbe(out.Bytes())
}

func parseProbe(data []byte) (time.Duration, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}
	if probe.Format.Duration == "" || probe.Format.Duration == "N/A" {
		return 0, nil
	}
	seconds, err := strconv.ParseFloat(probe.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration: %w", err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// Prepare re-encodes the audio track of inputPath into outputDir using
// opts. Video inputs have their audio stream extracted. It returns the
// path of the written file.
func Prepare(ctx context.Context, inputPath, outputDir string, opts PrepareOptions) (string, error) {
	if _, err := os.Stat(inputPath); err != nil {
		return "", fmt.Errorf("input file not found: %s", inputPath)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if opts.Format == "" {
		opts = DefaultPrepareOptions()
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	outputPath := filepath.Join(outputDir, base+".prepared."+opts.Format)

	ffmpegPath, err := ffmpegbin.FFmpegPath()
	if err != nil {
		return "", err
	}

	args := ffmpeg.Input(inputPath).
		Output(outputPath, encodeArgs(opts)).
		OverWriteOutput().
		GetArgs()

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("audio preparation failed: %w: %s", err, lastLine(stderr.String()))
	}
	return outputPath, nil
}

func encodeArgs(opts PrepareOptions) ffmpeg.KwArgs {
	kwargs := ffmpeg.KwArgs{
		"vn": "",              // No video
		"ar": opts.SampleRate, // Sample rate
		"ac": opts.Channels,   // Channels
	}

	switch opts.Format {
	case "flac":
		kwargs["acodec"] = "flac"
	case "wav":
		kwargs["acodec"] = "pcm_s16le"
	default:
		kwargs["acodec"] = "libmp3lame"
		if opts.Bitrate != "" {
			kwargs["b:a"] = opts.Bitrate
		}
	}
	return kwargs
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

var videoExts = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".avi":  true,
	".mov":  true,
	".wmv":  true,
	".flv":  true,
	".webm": true,
	".m4v":  true,
	".mpeg": true,
	".mpg":  true,
	".3gp":  true,
}

var audioExts = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".aac":  true,
	".flac": true,
	".ogg":  true,
	".oga":  true,
	".opus": true,
	".m4a":  true,
	".wma":  true,
	".aiff": true,
}

// checks if the file is a video based on extension
func IsVideoFile(path string) bool {
	return videoExts[strings.ToLower(filepath.Ext(path))]
}

// checks if the file is an audio file based on extension
func IsAudioFile(path string) bool {
	return audioExts[strings.ToLower(filepath.Ext(path))]
}

// checks if the file is either audio or video
func IsMediaFile(path string) bool {
	return IsAudioFile(path) || IsVideoFile(path)
}
