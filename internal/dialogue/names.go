package dialogue

import (
	"strings"
	"unicode"

	"clinicvoice/internal/lexicon"
)

// extractName returns the word following an introduction phrase such as
// "my name is", capitalized.
func extractName(text string, intros []string) (string, bool) {
	norm := " " + lexicon.Normalize(text) + " "
	for _, intro := range intros {
		p := lexicon.Normalize(intro)
		if p == "" {
			continue
		}
		idx := strings.Index(norm, " "+p+" ")
		if idx < 0 {
			continue
		}
		rest := strings.Fields(norm[idx+len(p)+2:])
		if len(rest) == 0 {
			continue
		}
		return capitalize(rest[0]), true
	}
	return "", false
}

func capitalize(word string) string {
	runes := []rune(word)
	if len(runes) == 0 {
		return ""
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
