package subtitle

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	tagRegex      = regexp.MustCompile(`<[^>]*>`)
	assTagRegex   = regexp.MustCompile(`\{\\[^}]*\}`)
	dotsRegex     = regexp.MustCompile(`\.{2,}`)
	questionRegex = regexp.MustCompile(`\?{2,}`)
	bangRegex     = regexp.MustCompile(`!{2,}`)
)

// CleanText strips markup, control characters and redundant whitespace, and
// collapses repeated terminal punctuation ("..", "...." -> "...", "??" -> "?").
func CleanText(s string) string {
	s = norm.NFC.String(s)
	s = tagRegex.ReplaceAllString(s, "")
	s = assTagRegex.ReplaceAllString(s, "")
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	s = strings.Join(strings.Fields(s), " ")
	s = dotsRegex.ReplaceAllString(s, "...")
	s = questionRegex.ReplaceAllString(s, "?")
	s = bangRegex.ReplaceAllString(s, "!")
	return s
}
