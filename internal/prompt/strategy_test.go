package prompt

import (
	"strings"
	"testing"

	"clinicvoice/internal/domain"
)

func TestBuildAnswerCarriesHistoryAndLanguage(t *testing.T) {
	req := Build(StrategyAnswer, Input{
		Utterance: "can my kid come too",
		Language:  domain.LangRU,
		History:   []string{"I want a cleaning", "next week"},
		KnownName: "Anna",
		Model:     "gpt-4o-mini",
	})
	if req.Model != "gpt-4o-mini" || len(req.Messages) != 1 || req.Messages[0].Content != "can my kid come too" {
		t.Fatalf("unexpected request: %+v", req)
	}
	for _, want := range []string{"Russian", "Anna", "- I want a cleaning\n- next week"} {
		if !strings.Contains(req.System, want) {
			t.Fatalf("system prompt missing %q:\n%s", want, req.System)
		}
	}
}

func TestBuildClarifyDiffersFromAnswer(t *testing.T) {
	in := Input{Utterance: "um", Language: domain.LangEN}
	a, c := Build(StrategyAnswer, in), Build(StrategyClarify, in)
	if a.System == c.System {
		t.Fatal("clarify should use its own instructions")
	}
	if !strings.Contains(c.System, "Ask one short") {
		t.Fatalf("clarify prompt:\n%s", c.System)
	}
}

func TestBuildClassifyListsIntents(t *testing.T) {
	req := Build(StrategyClassify, Input{
		Utterance: "squeeze me in friday",
		Intents: []IntentHint{
			{Name: "book_appointment", Example: "i want to book an appointment"},
			{Name: "opening_hours"},
		},
	})
	if req.Temperature != 0 {
		t.Fatalf("temperature=%v, want 0", req.Temperature)
	}
	for _, want := range []string{`- book_appointment: "i want to book an appointment"`, "- opening_hours\n", `{"intent"`} {
		if !strings.Contains(req.System, want) {
			t.Fatalf("classify prompt missing %q:\n%s", want, req.System)
		}
	}
}

func TestBuildIsPure(t *testing.T) {
	in := Input{Utterance: "price", Language: domain.LangEN, History: []string{"hi"}}
	a, b := Build(StrategyAnswer, in), Build(StrategyAnswer, in)
	if a.System != b.System || a.Messages[0] != b.Messages[0] {
		t.Fatal("same input must give the same request")
	}
	if in.History[0] != "hi" {
		t.Fatal("input must not be modified")
	}
}

func TestStrategyString(t *testing.T) {
	if StrategyClarify.String() != "clarify" || Strategy(9).String() != "strategy(9)" {
		t.Fatal("unexpected strategy names")
	}
}
