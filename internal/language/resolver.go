package language

import (
	"log/slog"

	"clinicvoice/internal/domain"
	"clinicvoice/internal/lexicon"
)

type Mode string

const (
	ModeOrdered Mode = "ordered"
	ModeVote    Mode = "vote"
)

// Resolver combines detectors. Ordered takes the first one with an opinion;
// Vote takes a plurality and reports a tie as unknown.
type Resolver struct {
	Detectors []Detector
	Mode      Mode
	Logger    *slog.Logger
}

// NewResolver returns the default layered resolver: greetings, first script
// letter, script ratio. Vote mode adds the stopword detector.
func NewResolver(lex *lexicon.Lexicon, mode Mode, logger *slog.Logger) *Resolver {
	detectors := []Detector{GreetingDetector(lex), ScriptDetector, RatioDetector}
	if mode == ModeVote {
		detectors = append(detectors, StopwordDetector)
	}
	return &Resolver{Detectors: detectors, Mode: mode, Logger: logger}
}

func (r *Resolver) Detect(text string) domain.Language {
	if r == nil {
		return domain.LangUnknown
	}
	if r.Mode == ModeVote {
		return r.vote(text)
	}
	for _, d := range r.Detectors {
		if lang := safeDetect(d, text); lang.Known() {
			return lang
		}
	}
	return domain.LangUnknown
}

func (r *Resolver) vote(text string) domain.Language {
	counts := map[domain.Language]int{}
	for _, d := range r.Detectors {
		if lang := safeDetect(d, text); lang.Known() {
			counts[lang]++
		}
	}
	best, bestN, tie := domain.LangUnknown, 0, false
	for _, lang := range []domain.Language{domain.LangEN, domain.LangRU} {
		n := counts[lang]
		switch {
		case n > bestN:
			best, bestN, tie = lang, n, false
		case n == bestN && n > 0:
			tie = true
		}
	}
	if tie {
		if r.Logger != nil {
			r.Logger.Debug("language vote tied", "votes", counts)
		}
		return domain.LangUnknown
	}
	return best
}

func safeDetect(d Detector, text string) (lang domain.Language) {
	defer func() {
		if recover() != nil {
			lang = domain.LangUnknown
		}
	}()
	lang = d(text)
	if !lang.Known() {
		return domain.LangUnknown
	}
	return lang
}
