// Package prompt builds the LLM requests of the dialogue. Each Strategy is a
// pure function of the utterance and the call context.
package prompt

import (
	"fmt"
	"strings"

	"clinicvoice/internal/domain"
)

type Strategy int

const (
	// StrategyAnswer replies to the caller as the clinic receptionist.
	StrategyAnswer Strategy = iota
	// StrategyClarify asks one short question to learn what the caller needs.
	StrategyClarify
	// StrategyClassify maps the utterance onto a known intent name as JSON.
	StrategyClassify
)

func (s Strategy) String() string {
	switch s {
	case StrategyAnswer:
		return "answer"
	case StrategyClarify:
		return "clarify"
	case StrategyClassify:
		return "classify"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// IntentHint names one catalog intent for the classifier.
type IntentHint struct {
	Name    string
	Example string
}

// Input is everything a strategy may look at.
type Input struct {
	Utterance string
	Language  domain.Language
	// History holds earlier caller utterances, oldest first.
	History   []string
	KnownName string
	Intents   []IntentHint
	Model     string
}

// Build returns the request for s. Unknown strategies fall back to StrategyAnswer.
func Build(s Strategy, in Input) domain.LLMRequest {
	switch s {
	case StrategyClarify:
		return clarify(in)
	case StrategyClassify:
		return classify(in)
	default:
		return answer(in)
	}
}

func answer(in Input) domain.LLMRequest {
	var sb strings.Builder
	sb.WriteString("You are the receptionist of a dental clinic talking to a caller on the phone.\n")
	sb.WriteString("Reply in ")
	sb.WriteString(languageName(in.Language))
	sb.WriteString(" with one or two short sentences that sound natural when spoken aloud.\n")
	sb.WriteString("Never invent prices, dates or medical advice; offer to connect the caller to the administrator instead.\n")
	writeCaller(&sb, in)
	return domain.LLMRequest{
		Model:       in.Model,
		System:      sb.String(),
		Messages:    []domain.Message{{Role: "user", Content: in.Utterance}},
		MaxTokens:   120,
		Temperature: 0.4,
	}
}

func clarify(in Input) domain.LLMRequest {
	var sb strings.Builder
	sb.WriteString("You are the receptionist of a dental clinic talking to a caller on the phone.\n")
	sb.WriteString("The caller said very little. Ask one short, friendly question in ")
	sb.WriteString(languageName(in.Language))
	sb.WriteString(" to find out what they need: an appointment, prices, opening hours or something else.\n")
	writeCaller(&sb, in)
	return domain.LLMRequest{
		Model:       in.Model,
		System:      sb.String(),
		Messages:    []domain.Message{{Role: "user", Content: in.Utterance}},
		MaxTokens:   60,
		Temperature: 0.3,
	}
}

func classify(in Input) domain.LLMRequest {
	var sb strings.Builder
	sb.WriteString("You classify what a dental clinic caller wants.\n")
	sb.WriteString("Known intents, each with an example request:\n")
	for _, it := range in.Intents {
		sb.WriteString("- ")
		sb.WriteString(it.Name)
		if it.Example != "" {
			fmt.Fprintf(&sb, ": %q", it.Example)
		}
		sb.WriteString("\n")
	}
	if in.Language.Known() {
		fmt.Fprintf(&sb, "The caller speaks %s.\n", languageName(in.Language))
	}
	sb.WriteString(`Reply with JSON only: {"intent":"<name or none>","confidence":<0..1>}`)
	return domain.LLMRequest{
		Model:       in.Model,
		System:      sb.String(),
		Messages:    []domain.Message{{Role: "user", Content: in.Utterance}},
		MaxTokens:   64,
		Temperature: 0,
	}
}

func writeCaller(sb *strings.Builder, in Input) {
	if in.KnownName != "" {
		fmt.Fprintf(sb, "The caller's name is %s.\n", in.KnownName)
	}
	if len(in.History) > 0 {
		sb.WriteString("Earlier in this call the caller said:\n")
		for _, h := range in.History {
			sb.WriteString("- ")
			sb.WriteString(h)
			sb.WriteString("\n")
		}
	}
}

func languageName(lang domain.Language) string {
	if lang == domain.LangRU {
		return "Russian"
	}
	return "English"
}
