package subtitle

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var timingLineRegex = regexp.MustCompile(
	`^(\d{2,}:\d{2}:\d{2},\d{3})\s*-->\s*(\d{2,}:\d{2}:\d{2},\d{3})$`,
)

// ParseOptions controls how cue text lines are decoded.
type ParseOptions struct {
	// Bilingual decodes line 1 as primary text and the remaining lines as
	// secondary text. Otherwise every line is joined into the primary text.
	Bilingual bool
}

// Warning describes a cue block that was dropped while parsing.
type Warning struct {
	Line   int
	Reason string
}

func (w Warning) String() string {
	return fmt.Sprintf("line %d: %s", w.Line, w.Reason)
}

type block struct {
	line  int
	lines []string
}

// ParseSRT decodes SRT cues from r. Malformed blocks are dropped and reported
// as warnings; indices in the input are ignored and cues renumbered 1..N.
func ParseSRT(r io.Reader, opts ParseOptions) ([]Cue, []Warning, error) {
	blocks, err := splitSRTBlocks(r)
	if err != nil {
		return nil, nil, err
	}

	var cues []Cue
	var warnings []Warning
	for _, b := range blocks {
		cue, reason := decodeBlock(b, opts)
		if reason != "" {
			warnings = append(warnings, Warning{Line: b.line, Reason: reason})
			continue
		}
		cues = append(cues, cue)
	}

	Renumber(cues)
	return cues, warnings, nil
}

// ReadSRTFile parses the SRT file at path into a track.
func ReadSRTFile(path string, opts ParseOptions) (Track, []Warning, error) {
	file, err := os.Open(path)
	if err != nil {
		return Track{}, nil, fmt.Errorf("failed to open SRT file: %w", err)
	}
	defer file.Close()

	cues, warnings, err := ParseSRT(file, opts)
	if err != nil {
		return Track{}, warnings, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return Track{Cues: cues}, warnings, nil
}

func splitSRTBlocks(r io.Reader) ([]block, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var blocks []block
	var current *block
	lineNum := 0

	for scanner.Scan() {
		line := scanner.Text()
		lineNum++

		if lineNum == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}
		// lone CR from mixed line endings
		line = strings.TrimRight(line, "\r")

		if strings.TrimSpace(line) == "" {
			if current != nil {
				blocks = append(blocks, *current)
				current = nil
			}
			continue
		}

		if current == nil {
			current = &block{line: lineNum}
		}
		current.lines = append(current.lines, strings.TrimSpace(line))
	}
	if current != nil {
		blocks = append(blocks, *current)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading SRT: %w", err)
	}
	return blocks, nil
}

func decodeBlock(b block, opts ParseOptions) (Cue, string) {
	lines := b.lines
	if len(lines) > 0 && isIndexLine(lines[0]) {
		lines = lines[1:]
	}
	if len(lines) == 0 {
		return Cue{}, "missing timecode line"
	}

	matches := timingLineRegex.FindStringSubmatch(lines[0])
	if len(matches) != 3 {
		return Cue{}, fmt.Sprintf("malformed timecode line %q", lines[0])
	}
	start, err := ParseTimecode(matches[1])
	if err != nil {
		return Cue{}, err.Error()
	}
	end, err := ParseTimecode(matches[2])
	if err != nil {
		return Cue{}, err.Error()
	}

	text := lines[1:]
	if len(text) == 0 {
		return Cue{}, "cue has no text"
	}

	cue := Cue{Start: start, End: end}
	if opts.Bilingual && len(text) > 1 {
		cue.Primary = text[0]
		cue.Secondary = strings.Join(text[1:], " ")
	} else {
		cue.Primary = strings.Join(text, " ")
	}
	return cue, ""
}

func isIndexLine(line string) bool {
	_, err := strconv.Atoi(strings.TrimSpace(line))
	return err == nil
}
