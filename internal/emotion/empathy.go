// Package emotion spots distress in what a caller says so the reply can open
// with reassurance.
package emotion

import (
	"math"
	"strings"
	"unicode/utf8"

	"clinicvoice/internal/domain"
	"clinicvoice/internal/lexicon"
)

// Signal is the outcome of scanning one utterance.
type Signal struct {
	Distressed bool
	// Language is the language whose keywords matched.
	Language domain.Language
	Score    float64
	Hints    []string
}

type Empathy struct {
	lex *lexicon.Lexicon
}

func NewEmpathy(lex *lexicon.Lexicon) *Empathy {
	return &Empathy{lex: lex}
}

// Analyze scans text for the distress keywords of lang, or of every language
// when lang is unknown. Keywords match whole words only, so inflected forms
// have to be listed. Longer keywords weigh more.
func (e *Empathy) Analyze(text string, lang domain.Language) Signal {
	t := lexicon.Normalize(text)
	if t == "" || e.lex == nil {
		return Signal{Language: lang}
	}
	langs := []domain.Language{lang}
	if !lang.Known() {
		langs = []domain.Language{domain.LangEN, domain.LangRU}
	}

	sig := Signal{Language: lang}
	best := 0.0
	for _, l := range langs {
		score := 0.0
		var hints []string
		for _, h := range e.lex.Distress[l] {
			h = lexicon.Normalize(h)
			if h == "" || !lexicon.ContainsPhrase(t, h) {
				continue
			}
			score += 1.0 + math.Min(float64(utf8.RuneCountInString(h))/10.0, 1.0)
			hints = append(hints, h)
		}
		if score > best {
			best = score
			sig = Signal{Distressed: true, Language: l, Score: round(score, 3), Hints: hints}
		}
	}
	return sig
}

// Detect returns the reassurance phrase to prepend when text sounds distressed.
func (e *Empathy) Detect(text string, lang domain.Language) (string, bool) {
	sig := e.Analyze(text, lang)
	if !sig.Distressed {
		return "", false
	}
	phrase := e.lex.Empathy[sig.Language]
	if phrase == "" {
		phrase = e.lex.Empathy[domain.LangEN]
	}
	return phrase, phrase != ""
}

// Prepend puts phrase in front of reply.
func Prepend(phrase, reply string) string {
	phrase = strings.TrimSpace(phrase)
	reply = strings.TrimSpace(reply)
	switch {
	case phrase == "":
		return reply
	case reply == "":
		return phrase
	default:
		return phrase + " " + reply
	}
}

func round(v float64, precision int) float64 {
	p := math.Pow10(precision)
	return math.Round(v*p) / p
}
