package subtitle

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
)

var timecodeRegex = regexp.MustCompile(`^(\d{2,}):(\d{2}):(\d{2}),(\d{3})$`)

// ParseTimecode parses HH:MM:SS,mmm into milliseconds. Hours may exceed 23;
// times are elapsed, not wall clock.
func ParseTimecode(value string) (int64, error) {
	matches := timecodeRegex.FindStringSubmatch(value)
	if len(matches) != 5 {
		return 0, fmt.Errorf("invalid timecode %q", value)
	}

	h, err := strconv.ParseInt(matches[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hours in %q: %w", value, err)
	}
	m, _ := strconv.ParseInt(matches[2], 10, 64)
	s, _ := strconv.ParseInt(matches[3], 10, 64)
	ms, _ := strconv.ParseInt(matches[4], 10, 64)
	if m > 59 || s > 59 {
		return 0, fmt.Errorf("invalid timecode %q: minutes/seconds out of range", value)
	}

	return h*3_600_000 + m*60_000 + s*1000 + ms, nil
}

// FormatTimecode renders milliseconds as HH:MM:SS,mmm. Negative values clamp to zero.
func FormatTimecode(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	hours := ms / 3_600_000
	minutes := (ms / 60_000) % 60
	seconds := (ms / 1000) % 60
	millis := ms % 1000

	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, seconds, millis)
}

func formatVTTTimecode(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	hours := ms / 3_600_000
	minutes := (ms / 60_000) % 60
	seconds := (ms / 1000) % 60
	millis := ms % 1000

	return fmt.Sprintf("%02d:%02d:%02d.%03d", hours, minutes, seconds, millis)
}

// SecondsToMillis converts fractional seconds to milliseconds, truncating
// toward zero. A tiny epsilon absorbs binary float error (2.3s -> 2300ms).
func SecondsToMillis(seconds float64) int64 {
	if seconds < 0 {
		return -SecondsToMillis(-seconds)
	}
	return int64(math.Trunc(seconds*1000 + 1e-6))
}

// MillisToSeconds converts milliseconds to fractional seconds.
func MillisToSeconds(ms int64) float64 {
	return float64(ms) / 1000
}
