// Package language guesses which language a caller is speaking from text.
// Detectors are plain functions; a Resolver layers or votes over them.
package language

import (
	"strings"
	"unicode"

	"clinicvoice/internal/domain"
	"clinicvoice/internal/lexicon"
)

// Detector returns the language text is in, or LangUnknown for no evidence.
type Detector func(text string) domain.Language

// GreetingDetector matches the curated greeting words of each language.
func GreetingDetector(lex *lexicon.Lexicon) Detector {
	return func(text string) domain.Language {
		lang, _ := MatchGreeting(lex, text)
		return lang
	}
}

// MatchGreeting reports the language whose greeting vocabulary appears in text.
// A whole-utterance match wins over a substring match in another language.
func MatchGreeting(lex *lexicon.Lexicon, text string) (domain.Language, bool) {
	norm := lexicon.Normalize(text)
	if norm == "" || lex == nil {
		return domain.LangUnknown, false
	}
	langs := []domain.Language{domain.LangEN, domain.LangRU}
	for _, lang := range langs {
		for _, g := range lex.Greetings[lang] {
			if lexicon.Normalize(g) == norm {
				return lang, true
			}
		}
	}
	for _, lang := range langs {
		if lexicon.ContainsAny(norm, lex.Greetings[lang]) {
			return lang, true
		}
	}
	return domain.LangUnknown, false
}

// ScriptDetector decides by the first Cyrillic or Latin letter in text.
func ScriptDetector(text string) domain.Language {
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			return domain.LangRU
		case unicode.Is(unicode.Latin, r):
			return domain.LangEN
		}
	}
	return domain.LangUnknown
}

// RatioDetector compares Cyrillic and Latin letter counts. Ties are unknown.
func RatioDetector(text string) domain.Language {
	cyr, lat := 0, 0
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			cyr++
		case unicode.Is(unicode.Latin, r):
			lat++
		}
	}
	switch {
	case cyr > lat:
		return domain.LangRU
	case lat > cyr:
		return domain.LangEN
	default:
		return domain.LangUnknown
	}
}

// StopwordDetector counts common function words per language.
func StopwordDetector(text string) domain.Language {
	en, ru := 0, 0
	for _, tok := range strings.Fields(lexicon.Normalize(text)) {
		if _, ok := enStopwords[tok]; ok {
			en++
		}
		if _, ok := ruStopwords[tok]; ok {
			ru++
		}
	}
	switch {
	case ru > en:
		return domain.LangRU
	case en > ru:
		return domain.LangEN
	default:
		return domain.LangUnknown
	}
}

var enStopwords = toSet("the", "a", "an", "is", "are", "i", "my", "you", "to", "it", "and", "of", "what", "how", "can", "do", "want", "need", "please")

var ruStopwords = toSet("и", "в", "не", "на", "я", "что", "как", "мне", "у", "меня", "это", "с", "по", "хочу", "нужно", "можно", "пожалуйста")

func toSet(words ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		out[w] = struct{}{}
	}
	return out
}
