package lexicon

import (
	"strings"
	"unicode"
)

// Normalize lowercases text, drops punctuation and symbols and collapses whitespace.
func Normalize(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			continue
		case unicode.IsSpace(r):
			sb.WriteRune(' ')
		default:
			sb.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

func Tokens(text string) []string {
	return strings.Fields(Normalize(text))
}

// ContainsPhrase reports whether phrase occurs in text on word boundaries.
// Both sides are normalized, so callers may pass raw text.
func ContainsPhrase(text, phrase string) bool {
	p := Normalize(phrase)
	if p == "" {
		return false
	}
	return strings.Contains(" "+Normalize(text)+" ", " "+p+" ")
}

// FirstMatch returns the first phrase found in text.
func FirstMatch(text string, phrases []string) (string, bool) {
	norm := " " + Normalize(text) + " "
	for _, phrase := range phrases {
		p := Normalize(phrase)
		if p == "" {
			continue
		}
		if strings.Contains(norm, " "+p+" ") {
			return phrase, true
		}
	}
	return "", false
}

func ContainsAny(text string, phrases []string) bool {
	_, ok := FirstMatch(text, phrases)
	return ok
}
