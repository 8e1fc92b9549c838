package subtitle

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// SubRip format
type SRTWriter struct {
	Layout Layout
}

// WebVTT format
type VTTWriter struct {
	Layout Layout
}

func NewWriter(format Format, layout Layout) (Writer, error) {
	switch format {
	case FormatSRT:
		return &SRTWriter{Layout: layout}, nil
	case FormatVTT:
		return &VTTWriter{Layout: layout}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// writes the track to an SRT file, replacing any previous file atomically
func (w *SRTWriter) Write(track Track, path string) error {
	var buf bytes.Buffer
	if err := WriteSRT(&buf, track, w.Layout); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes())
}

// writes the track to a VTT file, replacing any previous file atomically
func (w *VTTWriter) Write(track Track, path string) error {
	var buf bytes.Buffer
	if err := WriteVTT(&buf, track, w.Layout); err != nil {
		return err
	}
	return writeFileAtomic(path, buf.Bytes())
}

// WriteSRT serializes the track with LF line endings, no BOM, and a blank
// line after every cue.
func WriteSRT(out io.Writer, track Track, layout Layout) error {
	var sb strings.Builder
	for i, cue := range track.Cues {
		// index (1-based)
		sb.WriteString(fmt.Sprintf("%d\n", i+1))

		// timestamps: 00:00:00,000 --> 00:00:00,000
		sb.WriteString(fmt.Sprintf("%s --> %s\n",
			FormatTimecode(cue.Start),
			FormatTimecode(cue.End)))

		sb.WriteString(cueText(cue, layout))
		sb.WriteString("\n\n")
	}

	_, err := io.WriteString(out, sb.String())
	return err
}

// WriteVTT serializes the track as WebVTT.
func WriteVTT(out io.Writer, track Track, layout Layout) error {
	var sb strings.Builder

	// VTT header
	sb.WriteString("WEBVTT\n\n")

	for i, cue := range track.Cues {
		// optional cue identifier
		sb.WriteString(fmt.Sprintf("%d\n", i+1))

		// timestamps: 00:00:00.000 --> 00:00:00.000
		sb.WriteString(fmt.Sprintf("%s --> %s\n",
			formatVTTTimecode(cue.Start),
			formatVTTTimecode(cue.End)))

		sb.WriteString(cueText(cue, layout))
		sb.WriteString("\n\n")
	}

	_, err := io.WriteString(out, sb.String())
	return err
}

// FormatSRTString renders the track as an SRT document.
func FormatSRTString(track Track, layout Layout) string {
	var sb strings.Builder
	_ = WriteSRT(&sb, track, layout)
	return sb.String()
}

// text body for one cue; a block must never be empty or contain a blank
// line, or it would not parse back
func cueText(cue Cue, layout Layout) string {
	switch layout {
	case LayoutSecondary:
		if strings.TrimSpace(cue.Secondary) != "" {
			return dropBlankLines(cue.Secondary)
		}
		return dropBlankLines(cue.Primary)
	case LayoutBilingual:
		primary := singleLine(cue.Primary)
		secondary := singleLine(cue.Secondary)
		if secondary == "" {
			return primary
		}
		return primary + "\n" + secondary
	default:
		return dropBlankLines(cue.Primary)
	}
}

// bilingual cues are exactly two lines, one per language
func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func dropBlankLines(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func writeFileAtomic(path string, data []byte) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0755)
}

// subtitle format based on file extension
func GetFormatFromExtension(path string) Format {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".vtt":
		return FormatVTT
	default:
		return FormatSRT
	}
}

// file extension for a format
func GetExtensionForFormat(format Format) string {
	switch format {
	case FormatVTT:
		return ".vtt"
	default:
		return ".srt"
	}
}
