// Package lexicon holds the word lists and canned phrases the dialogue pipeline
// runs on. Everything here is configuration data: Default returns the built-in
// dental clinic set and Load overlays a YAML file on top of it.
package lexicon

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"clinicvoice/internal/domain"
)

type Lexicon struct {
	Greetings     map[domain.Language][]string `yaml:"greetings"`
	Goodbye       map[domain.Language][]string `yaml:"goodbye"`
	Operator      map[domain.Language][]string `yaml:"operator"`
	NameIntro     map[domain.Language][]string `yaml:"name_intro"`
	Distress      map[domain.Language][]string `yaml:"distress"`
	Empathy       map[domain.Language]string   `yaml:"empathy"`
	DirectAnswers []DirectAnswer               `yaml:"direct_answers"`
	Prompts       map[domain.Language]Prompts  `yaml:"prompts"`

	// Transcription quality lists, language independent.
	Denylist    []string `yaml:"denylist"`
	Allowlist   []string `yaml:"allowlist"`
	PhraseHints []string `yaml:"phrase_hints"`
}

// DirectAnswer short-circuits intent resolution when any keyword appears in the utterance.
type DirectAnswer struct {
	Name     string                       `yaml:"name"`
	Keywords map[domain.Language][]string `yaml:"keywords"`
	Answers  map[domain.Language]string   `yaml:"answers"`
}

type Prompts struct {
	LanguageChoice string `yaml:"language_choice"`
	Welcome        string `yaml:"welcome"`
	WelcomeBack    string `yaml:"welcome_back"`
	Reprompt       string `yaml:"reprompt"`
	Escalation     string `yaml:"escalation"`
	Goodbye        string `yaml:"goodbye"`
	Fallback       string `yaml:"fallback"`
	NiceToMeet     string `yaml:"nice_to_meet"`
}

func Load(path string) (*Lexicon, error) {
	lex := Default()
	if strings.TrimSpace(path) == "" {
		return lex, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	if err := yaml.Unmarshal(data, lex); err != nil {
		return nil, fmt.Errorf("parse lexicon %s: %w", path, err)
	}
	if err := lex.validate(); err != nil {
		return nil, fmt.Errorf("lexicon %s: %w", path, err)
	}
	return lex, nil
}

func (l *Lexicon) validate() error {
	for _, lang := range []domain.Language{domain.LangEN, domain.LangRU} {
		p, ok := l.Prompts[lang]
		if !ok {
			return fmt.Errorf("missing prompts for %s", lang)
		}
		if p.Reprompt == "" || p.Escalation == "" || p.Goodbye == "" || p.Fallback == "" {
			return fmt.Errorf("incomplete prompts for %s", lang)
		}
	}
	for i, da := range l.DirectAnswers {
		if da.Name == "" {
			return fmt.Errorf("direct_answers[%d]: name is required", i)
		}
		if len(da.Answers) == 0 {
			return fmt.Errorf("direct_answers[%d] %s: answers are required", i, da.Name)
		}
	}
	return nil
}

// PromptsFor returns the prompts of lang, falling back to English.
func (l *Lexicon) PromptsFor(lang domain.Language) Prompts {
	if p, ok := l.Prompts[lang]; ok {
		return p
	}
	return l.Prompts[domain.LangEN]
}

// Words returns the list for lang, or every language's list merged when lang is unknown.
func Words(m map[domain.Language][]string, lang domain.Language) []string {
	if lang.Known() {
		return m[lang]
	}
	var out []string
	for _, l := range []domain.Language{domain.LangEN, domain.LangRU} {
		out = append(out, m[l]...)
	}
	return out
}

// AnswerFor picks the answer in lang, else English, else any.
func (d DirectAnswer) AnswerFor(lang domain.Language) string {
	if a, ok := d.Answers[lang]; ok && a != "" {
		return a
	}
	if a, ok := d.Answers[domain.LangEN]; ok && a != "" {
		return a
	}
	for _, a := range d.Answers {
		return a
	}
	return ""
}
