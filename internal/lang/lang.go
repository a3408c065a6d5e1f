// Package lang classifies inbound text into one of the supported conversation languages.
//
// Detection is a script-range heuristic: no statistical model is involved, so the
// result for a given input never changes between runs.
package lang

import "unicode"

// Code is a short language identifier carried on every session.
type Code string

const (
	Hebrew  Code = "he"
	Arabic  Code = "ar"
	Russian Code = "ru"
)

// Default is used for empty input and for text in scripts we do not support.
const Default = Hebrew

// Supported lists the languages the message catalogue is written in.
var Supported = []Code{Hebrew, Arabic, Russian}

// IsSupported reports whether c has a message catalogue entry.
func IsSupported(c Code) bool {
	for _, s := range Supported {
		if s == c {
			return true
		}
	}
	return false
}

// Normalize maps unknown or empty codes to Default.
func Normalize(c Code) Code {
	if IsSupported(c) {
		return c
	}
	return Default
}

// Detect returns the language of text. Arabic wins over Cyrillic, Cyrillic over
// Hebrew; anything else falls back to Default.
func Detect(text string) Code {
	var hasArabic, hasCyrillic, hasHebrew bool
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Arabic, r):
			hasArabic = true
		case unicode.Is(unicode.Cyrillic, r):
			hasCyrillic = true
		case unicode.Is(unicode.Hebrew, r):
			hasHebrew = true
		}
	}
	switch {
	case hasArabic:
		return Arabic
	case hasCyrillic:
		return Russian
	case hasHebrew:
		return Hebrew
	default:
		return Default
	}
}

// Name returns the English name of the language, used inside model prompts.
func (c Code) Name() string {
	switch c {
	case Arabic:
		return "Arabic"
	case Russian:
		return "Russian"
	default:
		return "Hebrew"
	}
}
