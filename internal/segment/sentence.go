package segment

import (
	"strings"
	"unicode"
)

var abbreviations = map[string]bool{
	"mr.": true, "mrs.": true, "ms.": true, "dr.": true, "prof.": true,
	"sr.": true, "jr.": true, "st.": true, "mt.": true, "vs.": true,
	"etc.": true, "e.g.": true, "i.e.": true, "u.s.": true, "u.k.": true,
	"a.m.": true, "p.m.": true, "no.": true, "fig.": true, "inc.": true,
	"ltd.": true, "co.": true, "approx.": true,
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '…', '。', '！', '？':
		return true
	}
	return false
}

// full-width terminators end a sentence without trailing whitespace
func isCJKTerminator(r rune) bool {
	return r == '。' || r == '！' || r == '？'
}

func isClosing(r rune) bool {
	switch r {
	case '"', '\'', '”', '’', '」', '』', ')', '）':
		return true
	}
	return false
}

func isCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

// EndsSentence reports whether text ends with a sentence terminator,
// optionally followed by closing quotes. Abbreviations are not special
// here: a cue ending in "etc." closes the merge buffer.
func EndsSentence(text string) bool {
	runes := []rune(strings.TrimSpace(text))
	end := len(runes)
	for end > 0 && isClosing(runes[end-1]) {
		end--
	}
	return end > 0 && isTerminator(runes[end-1])
}

// SplitSentences splits text at terminators followed by whitespace (or the
// end of text). Full-width CJK terminators split without whitespace.
// Abbreviations and decimal numbers never split.
func SplitSentences(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	var sentences []string
	start := 0

	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		cjk := isCJKTerminator(runes[i])

		j := i + 1
		for j < len(runes) && (isTerminator(runes[j]) || isClosing(runes[j])) {
			j++
		}
		if j < len(runes) && !cjk && !unicode.IsSpace(runes[j]) {
			i = j - 1
			continue
		}
		if runes[i] == '.' && j-i == 1 && isAbbreviation(lastToken(runes[start:i+1])) {
			i = j - 1
			continue
		}

		if s := strings.TrimSpace(string(runes[start:j])); s != "" {
			sentences = append(sentences, s)
		}
		start = j
		i = j - 1
	}

	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			sentences = append(sentences, s)
		}
	}
	return sentences
}

func lastToken(runes []rune) string {
	i := len(runes)
	for i > 0 && !unicode.IsSpace(runes[i-1]) {
		i--
	}
	token := strings.TrimLeftFunc(string(runes[i:]), func(r rune) bool {
		return isClosing(r) || r == '(' || r == '"' || r == '“' || r == '‘'
	})
	return token
}

func isAbbreviation(token string) bool {
	lower := strings.ToLower(token)
	if abbreviations[lower] {
		return true
	}
	// single-letter initials ("J.")
	runes := []rune(token)
	return len(runes) == 2 && unicode.IsUpper(runes[0]) && runes[1] == '.'
}

// joins cue fragments, without a space across CJK boundaries
func joinText(a, b string) string {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	last := []rune(a)[len([]rune(a))-1]
	first := []rune(b)[0]
	if isCJK(last) || isCJK(first) || isCJKTerminator(last) {
		return a + b
	}
	return a + " " + b
}
