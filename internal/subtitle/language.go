package subtitle

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// CanonicalTag normalizes a BCP-47-like tag ("zh_tw" -> "zh-TW"). An empty
// input yields an empty tag.
func CanonicalTag(tag string) (string, error) {
	tag = strings.TrimSpace(strings.ReplaceAll(tag, "_", "-"))
	if tag == "" {
		return "", nil
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return "", fmt.Errorf("invalid language tag %q: %w", tag, err)
	}
	return parsed.String(), nil
}

// BaseLanguage returns the primary language subtag ("zh-TW" -> "zh").
func BaseLanguage(tag string) string {
	parsed, err := language.Parse(tag)
	if err != nil {
		return strings.ToLower(strings.SplitN(tag, "-", 2)[0])
	}
	base, _ := parsed.Base()
	return base.String()
}

// DisplayName returns an English name for prompts, e.g. "Chinese (Taiwan)".
func DisplayName(tag string) string {
	switch tag {
	case "zh-TW", "zh-Hant", "zh-Hant-TW":
		return "Traditional Chinese (Taiwan)"
	case "zh-CN", "zh-Hans":
		return "Simplified Chinese"
	}
	switch BaseLanguage(tag) {
	case "en":
		return "English"
	case "zh":
		return "Chinese"
	case "ja":
		return "Japanese"
	case "ko":
		return "Korean"
	case "es":
		return "Spanish"
	case "fr":
		return "French"
	case "de":
		return "German"
	default:
		return tag
	}
}
