package dialogue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"clinicvoice/internal/asr"
	"clinicvoice/internal/domain"
	"clinicvoice/internal/lexicon"
	"clinicvoice/internal/telephony"
)

type fakeIntents struct {
	byText map[string]domain.Resolution
	calls  int
}

func (f *fakeIntents) Resolve(_ context.Context, utterance string, _ domain.Language) domain.Resolution {
	f.calls++
	if res, ok := f.byText[lexicon.Normalize(utterance)]; ok {
		return res
	}
	return domain.Unmatched()
}

type fakeAcquirer struct {
	audio []byte
	err   error
	calls int
}

func (f *fakeAcquirer) Fetch(context.Context, string) ([]byte, error) {
	f.calls++
	return f.audio, f.err
}

type fakeCascade struct {
	result asr.Result
	langs  []domain.Language
}

func (f *fakeCascade) Transcribe(_ context.Context, _ []byte, lang domain.Language) asr.Result {
	f.langs = append(f.langs, lang)
	return f.result
}

type fakeLLM struct {
	reply string
	err   error
	reqs  []domain.LLMRequest
}

func (f *fakeLLM) Complete(_ context.Context, req domain.LLMRequest) (domain.LLMResponse, error) {
	f.reqs = append(f.reqs, req)
	return domain.LLMResponse{Content: f.reply}, f.err
}

type fakeProfiles struct {
	mu     sync.Mutex
	names  map[string]string
	turns  []domain.TurnRecord
	recErr error
}

func (f *fakeProfiles) KnownName(_ context.Context, phone string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n, ok := f.names[phone]; ok {
		return n, nil
	}
	return "", errors.New("not found")
}

func (f *fakeProfiles) SaveKnownName(_ context.Context, phone, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.names == nil {
		f.names = map[string]string{}
	}
	f.names[phone] = name
	return nil
}

func (f *fakeProfiles) RecordTurn(_ context.Context, rec domain.TurnRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, rec)
	return f.recErr
}

type fakeEvents struct {
	mu       sync.Mutex
	events   []domain.CallEvent
	handoffs []string
	number   string
}

func (f *fakeEvents) PublishCallEvent(_ context.Context, ev domain.CallEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeEvents) RequestHandoff(_ context.Context, callID, number string) error {
	f.handoffs = append(f.handoffs, callID+"->"+number)
	return nil
}

func (f *fakeEvents) HandoffNumber() string { return f.number }

type harness struct {
	svc      *Service
	intents  *fakeIntents
	llm      *fakeLLM
	profiles *fakeProfiles
	events   *fakeEvents
	acquirer *fakeAcquirer
	cascade  *fakeCascade
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		intents: &fakeIntents{byText: map[string]domain.Resolution{
			"i want to book an appointment": {
				Matched: true, Intent: "book_appointment", Answer: "Which day suits you best?",
				Confidence: 0.91, Path: domain.PathSemantic,
			},
			"im scared it will hurt": {
				Matched: true, Intent: "pain_worry", Answer: "Treatment is done under anesthesia.",
				Confidence: 0.85, Path: domain.PathSemantic,
			},
		}},
		llm:      &fakeLLM{reply: "Could you tell me a bit more?"},
		profiles: &fakeProfiles{},
		events:   &fakeEvents{},
		acquirer: &fakeAcquirer{audio: make([]byte, 8000)},
		cascade:  &fakeCascade{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h.svc = NewService(Config{
		EscalationThreshold: 2,
		HistoryLimit:        2,
		MinTranscriptLen:    3,
		FallbackLanguage:    domain.LangEN,
		OperatorNumber:      "+15550100",
		LLMModel:            "test-model",
	}, Deps{
		Sessions: NewSessionManager(0, nil, logger),
		Lexicon:  lexicon.Default(),
		Acquirer: h.acquirer,
		Cascade:  h.cascade,
		Intents:  h.intents,
		LLM:      h.llm,
		Profiles: h.profiles,
		Events:   h.events,
		Logger:   logger,
	})
	return h
}

func (h *harness) say(t *testing.T, callID, text string) domain.SpokenReplyPlan {
	t.Helper()
	plan, err := h.svc.ProcessTurn(context.Background(), callID, domain.TurnInput{SpeechText: text, CallerNumber: "+15551234"})
	if err != nil {
		t.Fatalf("ProcessTurn(%q): %v", text, err)
	}
	return plan
}

// pastLanguageChoice opens a call and answers the language prompt.
func (h *harness) pastLanguageChoice(t *testing.T, callID string) {
	t.Helper()
	if _, err := h.svc.StartCall(context.Background(), callID, "+15551234"); err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	h.say(t, callID, "hello")
}

func (h *harness) session(t *testing.T, callID string) CallSession {
	t.Helper()
	sess, ok := h.svc.sessions.Get(callID)
	if !ok {
		t.Fatalf("session %s missing", callID)
	}
	return sess
}

func TestLanguageChoiceGreeting(t *testing.T) {
	h := newHarness(t)
	plan, err := h.svc.StartCall(context.Background(), "CA1", "+15551234")
	if err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	if !strings.Contains(plan.Text, "Say hello") || plan.NextAction != domain.ActionContinue {
		t.Fatalf("unexpected language prompt: %+v", plan)
	}

	plan = h.say(t, "CA1", "Привет")
	if plan.LanguageTag != "ru-RU" || !strings.HasPrefix(plan.Text, "Добро пожаловать") {
		t.Fatalf("unexpected welcome: %+v", plan)
	}
	sess := h.session(t, "CA1")
	if sess.State != StateAwaitingQuery || sess.Language != domain.LangRU {
		t.Fatalf("state=%s language=%s", sess.State, sess.Language)
	}
}

func TestLanguageChoiceFallsBackWithoutGreeting(t *testing.T) {
	h := newHarness(t)
	plan := h.say(t, "CA1", "")
	if plan.LanguageTag != "en-US" || plan.NextAction != domain.ActionContinue {
		t.Fatalf("unexpected plan: %+v", plan)
	}
	if sess := h.session(t, "CA1"); sess.State != StateAwaitingQuery || sess.Language != domain.LangEN {
		t.Fatalf("state=%s language=%s", sess.State, sess.Language)
	}
}

func TestWelcomeBackForKnownCaller(t *testing.T) {
	h := newHarness(t)
	h.profiles.names = map[string]string{"+15551234": "Anna"}
	h.pastLanguageChoice(t, "CA1")
	if got := h.session(t, "CA1").KnownName; got != "Anna" {
		t.Fatalf("known name=%q", got)
	}
	plan, _ := h.svc.ProcessTurn(context.Background(), "CA2", domain.TurnInput{SpeechText: "hello", CallerNumber: "+15551234"})
	if !strings.Contains(plan.Text, "Welcome back, Anna") {
		t.Fatalf("text=%q", plan.Text)
	}
}

func TestPriceShortCircuits(t *testing.T) {
	h := newHarness(t)
	h.pastLanguageChoice(t, "CA1")

	plan := h.say(t, "CA1", "price")
	if plan.Text != "The price for dental cleaning is 100 dollars." || plan.NextAction != domain.ActionContinue {
		t.Fatalf("unexpected plan: %+v", plan)
	}
	if h.intents.calls != 0 {
		t.Fatalf("intent resolver called %d times, want 0", h.intents.calls)
	}
}

func TestByeEndsCall(t *testing.T) {
	h := newHarness(t)
	h.pastLanguageChoice(t, "CA1")

	plan := h.say(t, "CA1", "bye")
	if plan.NextAction != domain.ActionEnd {
		t.Fatalf("action=%s, want end", plan.NextAction)
	}
	if h.session(t, "CA1").State != StateEnded {
		t.Fatal("expected ended state")
	}

	// Terminal: no more resolution.
	plan = h.say(t, "CA1", "i want to book an appointment")
	if plan.NextAction != domain.ActionEnd || h.intents.calls != 0 {
		t.Fatalf("plan=%+v intent calls=%d", plan, h.intents.calls)
	}
}

func TestOperatorEscalatesWithHandoff(t *testing.T) {
	h := newHarness(t)
	h.pastLanguageChoice(t, "CA1")

	plan := h.say(t, "CA1", "Can I talk to a human please")
	if plan.NextAction != domain.ActionEscalate || plan.HandoffNumber != "+15550100" {
		t.Fatalf("unexpected plan: %+v", plan)
	}
	if len(h.events.handoffs) != 1 || h.events.handoffs[0] != "CA1->+15550100" {
		t.Fatalf("handoffs=%v", h.events.handoffs)
	}
}

func TestHandoffPrefersOnlineOperator(t *testing.T) {
	h := newHarness(t)
	h.events.number = "+15559999"
	h.pastLanguageChoice(t, "CA1")
	if plan := h.say(t, "CA1", "operator"); plan.HandoffNumber != "+15559999" {
		t.Fatalf("handoff=%q", plan.HandoffNumber)
	}
}

func TestScaredGetsEmpathyPrefix(t *testing.T) {
	h := newHarness(t)
	h.pastLanguageChoice(t, "CA1")

	plan := h.say(t, "CA1", "I'm scared it will hurt")
	want := "Don't worry, our doctors are very gentle and everything is done with anesthesia. Treatment is done under anesthesia."
	if plan.Text != want {
		t.Fatalf("text=%q\nwant=%q", plan.Text, want)
	}
}

func TestEmpathyPrefixesLLMReply(t *testing.T) {
	h := newHarness(t)
	h.pastLanguageChoice(t, "CA1")

	plan := h.say(t, "CA1", "i am nervous about tomorrow")
	if !strings.HasPrefix(plan.Text, "Don't worry") || !strings.HasSuffix(plan.Text, "Could you tell me a bit more?") {
		t.Fatalf("text=%q", plan.Text)
	}
}

func TestTwoUnmatchedTurnsEscalate(t *testing.T) {
	h := newHarness(t)
	h.pastLanguageChoice(t, "CA1")

	first := h.say(t, "CA1", "blorf snarg")
	if first.NextAction != domain.ActionContinue {
		t.Fatalf("first unmatched turn should continue: %+v", first)
	}
	if got := h.session(t, "CA1").FallbackCount; got != 1 {
		t.Fatalf("fallbackCount=%d, want 1", got)
	}

	plan := h.say(t, "CA1", "wibble wobble")
	if plan.NextAction != domain.ActionEscalate || plan.HandoffNumber == "" {
		t.Fatalf("second unmatched turn must escalate: %+v", plan)
	}
	sess := h.session(t, "CA1")
	if sess.State != StateEscalated || sess.FallbackCount != 2 {
		t.Fatalf("state=%s fallbackCount=%d", sess.State, sess.FallbackCount)
	}
	if len(h.llm.reqs) != 1 {
		t.Fatalf("llm calls=%d, want 1", len(h.llm.reqs))
	}
}

func TestDirectAnswerResetsFallbackCount(t *testing.T) {
	h := newHarness(t)
	h.pastLanguageChoice(t, "CA1")

	h.say(t, "CA1", "blorf snarg")
	h.say(t, "CA1", "what is the price")
	if got := h.session(t, "CA1").FallbackCount; got != 0 {
		t.Fatalf("fallbackCount=%d, want 0", got)
	}
}

func TestFallbackCountResetsOnMatch(t *testing.T) {
	h := newHarness(t)
	h.pastLanguageChoice(t, "CA1")

	h.say(t, "CA1", "blorf snarg")
	if got := h.session(t, "CA1").FallbackCount; got != 1 {
		t.Fatalf("fallbackCount=%d, want 1", got)
	}
	plan := h.say(t, "CA1", "I want to book an appointment")
	if plan.Text != "Which day suits you best?" {
		t.Fatalf("text=%q", plan.Text)
	}
	if got := h.session(t, "CA1").FallbackCount; got != 0 {
		t.Fatalf("fallbackCount=%d, want 0", got)
	}
	if plan := h.say(t, "CA1", "wibble wobble"); plan.NextAction != domain.ActionContinue {
		t.Fatalf("counter should have restarted: %+v", plan)
	}
}

func TestRepromptDoesNotCountAsFallback(t *testing.T) {
	h := newHarness(t)
	h.pastLanguageChoice(t, "CA1")

	for i := 0; i < 3; i++ {
		plan := h.say(t, "CA1", "uh")
		if plan.NextAction != domain.ActionContinue || !strings.Contains(plan.Text, "repeat") {
			t.Fatalf("turn %d: %+v", i, plan)
		}
	}
	sess := h.session(t, "CA1")
	if sess.FallbackCount != 0 || len(sess.History) != 0 {
		t.Fatalf("fallbackCount=%d history=%d", sess.FallbackCount, len(sess.History))
	}
}

func TestHistoryKeepsLastTwo(t *testing.T) {
	h := newHarness(t)
	h.pastLanguageChoice(t, "CA1")

	h.say(t, "CA1", "I want to book an appointment")
	h.say(t, "CA1", "my name is anna")
	h.say(t, "CA1", "what about hours")

	sess := h.session(t, "CA1")
	got := sess.HistoryTexts()
	if len(got) != 2 || got[0] != "my name is anna" || got[1] != "what about hours" {
		t.Fatalf("history=%v", got)
	}
}

func TestLLMReplyUsesHistoryAndClarify(t *testing.T) {
	h := newHarness(t)
	h.pastLanguageChoice(t, "CA1")

	h.say(t, "CA1", "I want to book an appointment")
	h.say(t, "CA1", "zzzz")
	if len(h.llm.reqs) != 1 {
		t.Fatalf("llm calls=%d", len(h.llm.reqs))
	}
	req := h.llm.reqs[0]
	if req.Model != "test-model" || !strings.Contains(req.System, "I want to book an appointment") {
		t.Fatalf("request lacks history: %+v", req)
	}
	if !strings.Contains(req.System, "Ask one short") {
		t.Fatalf("single-word utterance should use the clarify strategy:\n%s", req.System)
	}
}

func TestLLMFailureFallsBackToPrompt(t *testing.T) {
	h := newHarness(t)
	h.llm.err = errors.New("timeout")
	h.pastLanguageChoice(t, "CA1")

	plan := h.say(t, "CA1", "blorf snarg")
	if plan.Text != lexicon.Default().Prompts[domain.LangEN].Fallback {
		t.Fatalf("text=%q", plan.Text)
	}
}

func TestNameIntroIsRemembered(t *testing.T) {
	h := newHarness(t)
	h.pastLanguageChoice(t, "CA1")

	plan := h.say(t, "CA1", "Hi, my name is Anna")
	if plan.Text != "Nice to meet you, Anna. How can I help you?" {
		t.Fatalf("text=%q", plan.Text)
	}
	if h.session(t, "CA1").KnownName != "Anna" || h.profiles.names["+15551234"] != "Anna" {
		t.Fatal("name not stored")
	}
}

func TestRecordingTurnUsesCascade(t *testing.T) {
	h := newHarness(t)
	h.pastLanguageChoice(t, "CA1")
	h.cascade.result = asr.Result{Text: "price", Engine: "whisper", Escalated: true, Reason: asr.ReasonShortAudio}

	plan, err := h.svc.ProcessTurn(context.Background(), "CA1", domain.TurnInput{RecordingURL: "https://api.example/rec/RE1"})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if plan.Text != "The price for dental cleaning is 100 dollars." {
		t.Fatalf("text=%q", plan.Text)
	}
	if h.acquirer.calls != 1 || len(h.cascade.langs) != 1 || h.cascade.langs[0] != domain.LangEN {
		t.Fatalf("acquirer calls=%d cascade langs=%v", h.acquirer.calls, h.cascade.langs)
	}
	last := h.profiles.turns[len(h.profiles.turns)-1]
	if last.Engine != "whisper" || last.Intent != "price" || last.Path != domain.PathKeyword {
		t.Fatalf("turn record=%+v", last)
	}
}

func TestMissingRecordingReprompts(t *testing.T) {
	h := newHarness(t)
	h.pastLanguageChoice(t, "CA1")
	h.acquirer.err = telephony.ErrNoAudio

	plan, err := h.svc.ProcessTurn(context.Background(), "CA1", domain.TurnInput{RecordingURL: "https://api.example/rec/RE2"})
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	if !strings.Contains(plan.Text, "repeat") || plan.NextAction != domain.ActionContinue {
		t.Fatalf("unexpected plan: %+v", plan)
	}
	if len(h.cascade.langs) != 0 {
		t.Fatal("cascade must not run without audio")
	}
}

func TestSideEffectsFailuresAreSwallowed(t *testing.T) {
	h := newHarness(t)
	h.profiles.recErr = errors.New("db down")
	h.pastLanguageChoice(t, "CA1")
	if plan := h.say(t, "CA1", "price"); plan.NextAction != domain.ActionContinue {
		t.Fatalf("unexpected plan: %+v", plan)
	}
	if len(h.events.events) != 2 {
		t.Fatalf("events=%d, want 2", len(h.events.events))
	}
}

func TestSessionMutatedOncePerTurn(t *testing.T) {
	h := newHarness(t)
	h.pastLanguageChoice(t, "CA1")
	before := h.session(t, "CA1")
	h.say(t, "CA1", "blorf snarg")
	after := h.session(t, "CA1")
	if after.Turns != before.Turns+1 || after.FallbackCount != before.FallbackCount+1 {
		t.Fatalf("turns %d->%d fallbacks %d->%d", before.Turns, after.Turns, before.FallbackCount, after.FallbackCount)
	}
}

func TestEndCallEvicts(t *testing.T) {
	h := newHarness(t)
	h.pastLanguageChoice(t, "CA1")
	h.svc.EndCall("CA1")
	if _, ok := h.svc.sessions.Get("CA1"); ok {
		t.Fatal("session should be gone")
	}
}

func TestMissingCallID(t *testing.T) {
	h := newHarness(t)
	if _, err := h.svc.ProcessTurn(context.Background(), " ", domain.TurnInput{}); !errors.Is(err, ErrMissingCallID) {
		t.Fatalf("err=%v", err)
	}
}

func TestConcurrentCallsAreIndependent(t *testing.T) {
	h := newHarness(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = h.svc.ProcessTurn(context.Background(), id, domain.TurnInput{SpeechText: "hello"})
		}(string(rune('A' + i)))
	}
	wg.Wait()
	if n := h.svc.sessions.Len(); n != 20 {
		t.Fatalf("sessions=%d, want 20", n)
	}
}

func TestTwoGibberishRecordingsEscalate(t *testing.T) {
	h := newHarness(t)
	h.pastLanguageChoice(t, "CA1")
	h.cascade.result = asr.Result{Text: "mmf grr", Engine: "whisper", Escalated: true, Reason: asr.ReasonNoKeyword}

	in := domain.TurnInput{RecordingURL: "https://api.example/rec/RE3"}
	first, _ := h.svc.ProcessTurn(context.Background(), "CA1", in)
	second, _ := h.svc.ProcessTurn(context.Background(), "CA1", in)
	if first.NextAction != domain.ActionContinue || second.NextAction != domain.ActionEscalate {
		t.Fatalf("actions=%s,%s want continue,escalate", first.NextAction, second.NextAction)
	}
}
