package flow

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// resetKeywords restart the conversation from GREETING when they open a message.
var resetKeywords = []string{
	"hi", "hello", "start", "reset", "restart",
	"שלום", "היי", "אהלן",
	"مرحبا", "اهلا",
	"привет", "здравствуйте",
}

// IsResetKeyword reports whether text is, or begins with, a reset keyword as a whole word.
// Matching is case-insensitive: "Hi there" matches, "history" does not.
func IsResetKeyword(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, kw := range resetKeywords {
		if !strings.HasPrefix(lower, kw) {
			continue
		}
		rest := lower[len(kw):]
		if rest == "" {
			return true
		}
		r, _ := utf8.DecodeRuneInString(rest)
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.Is(unicode.Mn, r) {
			return true
		}
	}
	return false
}

var affirmatives = []string{"yes", "yeah", "yep", "כן", "בטח", "نعم", "اه", "أكيد", "да", "конечно"}

var negatives = []string{"no", "nope", "לא", "אין", "لا", "ما عندي", "нет"}

// propertyAnswer applies the keyword heuristic used when the model extracts no ownership
// answer. ok is false when neither an affirmative nor a negative word is present.
func propertyAnswer(text string) (owns bool, ok bool) {
	lower := strings.ToLower(text)
	for _, w := range affirmatives {
		if containsWord(lower, w) {
			return true, true
		}
	}
	for _, w := range negatives {
		if containsWord(lower, w) {
			return false, true
		}
	}
	return false, false
}

// containsWord reports whether w occurs in s delimited by non-letters.
func containsWord(s, w string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], w)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(w)
		before, _ := utf8.DecodeLastRuneInString(s[:start])
		after, _ := utf8.DecodeRuneInString(s[end:])
		if (start == 0 || !unicode.IsLetter(before)) && (end == len(s) || !unicode.IsLetter(after)) {
			return true
		}
		i = start + 1
		// Stay on a rune boundary.
		for i < len(s) && !utf8.RuneStart(s[i]) {
			i++
		}
	}
}
