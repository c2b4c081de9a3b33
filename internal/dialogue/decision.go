package dialogue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"clinicvoice/internal/domain"
	"clinicvoice/internal/lexicon"
	"clinicvoice/internal/prompt"
)

type outcomeKind int

const (
	outcomeReprompt outcomeKind = iota
	outcomeLanguage
	outcomeControl
	outcomeDirect
	outcomeName
	outcomeMatched
	outcomeUnmatched
)

// turn is what one decision is made from.
type turn struct {
	session CallSession
	text    string
	norm    string
	lang    domain.Language
	engine  string
}

type outcome struct {
	kind       outcomeKind
	rule       string
	reply      string
	action     domain.NextAction
	state      State
	resolution domain.Resolution
	knownName  string
	strategy   string
	llm        time.Duration
	resolve    time.Duration
}

// rule pairs a predicate with the reply it produces. Rules are tried in order
// and the first match wins; resolveIntent is the default.
type rule struct {
	name string
	when func(t *turn) bool
	then func(ctx context.Context, t *turn) outcome
}

func (s *Service) decisionTable() []rule {
	return []rule{
		{name: "empty", when: s.isEmpty, then: s.reprompt},
		{name: "goodbye", when: s.isGoodbye, then: s.goodbye},
		{name: "operator", when: s.isOperator, then: s.operator},
		{name: "direct_answer", when: s.isDirectQuestion, then: s.directAnswer},
		{name: "name_intro", when: s.isNameIntro, then: s.rememberName},
	}
}

func (s *Service) decide(ctx context.Context, t *turn) outcome {
	for _, r := range s.table {
		if r.when(t) {
			o := r.then(ctx, t)
			o.rule = r.name
			return o
		}
	}
	o := s.resolveIntent(ctx, t)
	o.rule = "intent"
	return o
}

func (s *Service) isEmpty(t *turn) bool {
	return len([]rune(t.norm)) < s.cfg.MinTranscriptLen || t.norm == ""
}

func (s *Service) reprompt(_ context.Context, t *turn) outcome {
	return outcome{
		kind:   outcomeReprompt,
		reply:  s.lex.PromptsFor(t.lang).Reprompt,
		action: domain.ActionContinue,
		state:  StateAwaitingQuery,
	}
}

// Control phrases are matched in every language so a caller can always leave.
func (s *Service) isGoodbye(t *turn) bool {
	return lexicon.ContainsAny(t.norm, lexicon.Words(s.lex.Goodbye, domain.LangUnknown))
}

func (s *Service) goodbye(_ context.Context, t *turn) outcome {
	return outcome{
		kind:   outcomeControl,
		reply:  s.lex.PromptsFor(t.lang).Goodbye,
		action: domain.ActionEnd,
		state:  StateEnded,
	}
}

func (s *Service) isOperator(t *turn) bool {
	return lexicon.ContainsAny(t.norm, lexicon.Words(s.lex.Operator, domain.LangUnknown))
}

func (s *Service) operator(_ context.Context, t *turn) outcome {
	return outcome{
		kind:   outcomeControl,
		reply:  s.lex.PromptsFor(t.lang).Escalation,
		action: domain.ActionEscalate,
		state:  StateEscalated,
	}
}

func (s *Service) findDirectAnswer(t *turn) (lexicon.DirectAnswer, bool) {
	for _, da := range s.lex.DirectAnswers {
		if lexicon.ContainsAny(t.norm, lexicon.Words(da.Keywords, domain.LangUnknown)) {
			return da, true
		}
	}
	return lexicon.DirectAnswer{}, false
}

func (s *Service) isDirectQuestion(t *turn) bool {
	_, ok := s.findDirectAnswer(t)
	return ok
}

func (s *Service) directAnswer(_ context.Context, t *turn) outcome {
	da, _ := s.findDirectAnswer(t)
	return outcome{
		kind:   outcomeDirect,
		reply:  da.AnswerFor(t.lang),
		action: domain.ActionContinue,
		state:  StateAwaitingQuery,
		resolution: domain.Resolution{
			Matched:    true,
			Intent:     da.Name,
			Answer:     da.AnswerFor(t.lang),
			Confidence: 1,
			Path:       domain.PathKeyword,
		},
	}
}

func (s *Service) isNameIntro(t *turn) bool {
	_, ok := extractName(t.norm, lexicon.Words(s.lex.NameIntro, domain.LangUnknown))
	return ok
}

func (s *Service) rememberName(_ context.Context, t *turn) outcome {
	name, _ := extractName(t.norm, lexicon.Words(s.lex.NameIntro, domain.LangUnknown))
	return outcome{
		kind:      outcomeName,
		reply:     fmt.Sprintf(s.lex.PromptsFor(t.lang).NiceToMeet, name),
		action:    domain.ActionContinue,
		state:     StateAwaitingQuery,
		knownName: name,
	}
}

// resolveIntent answers from the catalog, or falls back to the LLM until the
// caller has gone unmatched EscalationThreshold times in a row.
func (s *Service) resolveIntent(ctx context.Context, t *turn) outcome {
	started := time.Now()
	res := domain.Unmatched()
	if s.intents != nil {
		res = s.intents.Resolve(ctx, t.text, t.lang)
	}
	resolveDur := time.Since(started)

	if res.Matched {
		return outcome{
			kind:       outcomeMatched,
			reply:      res.Answer,
			action:     domain.ActionContinue,
			state:      StateAwaitingQuery,
			resolution: res,
			resolve:    resolveDur,
		}
	}

	p := s.lex.PromptsFor(t.lang)
	if t.session.FallbackCount+1 >= s.cfg.EscalationThreshold {
		return outcome{
			kind:    outcomeUnmatched,
			reply:   p.Escalation,
			action:  domain.ActionEscalate,
			state:   StateEscalated,
			resolve: resolveDur,
		}
	}

	strategy := prompt.StrategyAnswer
	if len(strings.Fields(t.norm)) < 2 {
		strategy = prompt.StrategyClarify
	}
	reply, llmDur := s.generate(ctx, strategy, t)
	if reply == "" {
		reply = p.Fallback
	}
	return outcome{
		kind:     outcomeUnmatched,
		reply:    reply,
		action:   domain.ActionContinue,
		state:    StateAwaitingQuery,
		strategy: strategy.String(),
		resolve:  resolveDur,
		llm:      llmDur,
	}
}

func (s *Service) generate(ctx context.Context, strategy prompt.Strategy, t *turn) (string, time.Duration) {
	if s.llm == nil {
		return "", 0
	}
	req := prompt.Build(strategy, prompt.Input{
		Utterance: t.text,
		Language:  t.lang,
		History:   t.session.HistoryTexts(),
		KnownName: t.session.KnownName,
		Model:     s.cfg.LLMModel,
	})
	started := time.Now()
	resp, err := s.llm.Complete(ctx, req)
	dur := time.Since(started)
	s.metrics.ObserveCall("llm_reply", dur)
	if err != nil {
		s.logger.Warn("llm fallback reply failed", "call_id", t.session.CallID, "strategy", strategy.String(), "error", err)
		return "", dur
	}
	return strings.TrimSpace(resp.Content), dur
}
