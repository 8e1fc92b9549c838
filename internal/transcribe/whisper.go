package transcribe

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mgpai22/bilingo/internal/subtitle"
)

const defaultWhisperBinary = "whisper"

// runs an external command and returns its combined output
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// implements Transcriber with a local openai-whisper installation
type WhisperTranscriber struct {
	binary string
	run    commandRunner
	// tempDir is where whisper writes its SRT; empty means os.TempDir.
	tempDir string
}

func NewWhisperTranscriber(opts Options) (*WhisperTranscriber, error) {
	binary := opts.WhisperBinary
	if binary == "" {
		binary = defaultWhisperBinary
	}
	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, loadError(string(ProviderWhisper), fmt.Errorf("whisper executable %q not found: %w", binary, err))
	}
	return &WhisperTranscriber{binary: path, run: execRunner}, nil
}

func (t *WhisperTranscriber) Transcribe(ctx context.Context, req Request) (subtitle.Track, error) {
	outDir, err := os.MkdirTemp(t.tempDir, "bilingo-whisper-*")
	if err != nil {
		return subtitle.Track{}, transcribeError(string(ProviderWhisper), "create output dir", err)
	}
	defer os.RemoveAll(outDir)

	out, err := t.run(ctx, t.binary, whisperArgs(req, outDir)...)
	if err != nil {
		if ctx.Err() != nil {
			return subtitle.Track{}, transcribeError(string(ProviderWhisper), "interrupted", ctx.Err())
		}
		return subtitle.Track{}, transcribeError(string(ProviderWhisper), lastOutputLine(out), err)
	}

	base := strings.TrimSuffix(filepath.Base(req.AudioPath), filepath.Ext(req.AudioPath))
	srtPath := filepath.Join(outDir, base+".srt")
	parsed, _, err := subtitle.ReadSRTFile(srtPath, subtitle.ParseOptions{})
	if err != nil {
		return subtitle.Track{}, transcribeError(string(ProviderWhisper), "read whisper output", err)
	}
	return newTrack(string(ProviderWhisper), req, parsed.Cues)
}

func whisperArgs(req Request, outDir string) []string {
	tier := req.Tier
	if tier == "" {
		tier = TierSmall
	}
	args := []string{
		req.AudioPath,
		"--model", string(tier),
		"--task", "transcribe",
		"--output_format", "srt",
		"--output_dir", outDir,
		"--verbose", "False",
		"--fp16", "False",
	}
	if req.Language != "" {
		args = append(args, "--language", subtitle.BaseLanguage(req.Language))
	}
	return args
}

func lastOutputLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
