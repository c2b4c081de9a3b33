// Package dialogue runs the per-call state machine: it turns one caller turn
// into a spoken reply and decides whether the call continues, goes to an
// operator or ends.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"clinicvoice/internal/asr"
	"clinicvoice/internal/domain"
	"clinicvoice/internal/emotion"
	"clinicvoice/internal/language"
	"clinicvoice/internal/lexicon"
	"clinicvoice/internal/llm"
	"clinicvoice/internal/metrics"
)

type Acquirer interface {
	Fetch(ctx context.Context, recordingURL string) ([]byte, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, lang domain.Language) asr.Result
}

type LanguageDetector interface {
	Detect(text string) domain.Language
}

type IntentResolver interface {
	Resolve(ctx context.Context, utterance string, lang domain.Language) domain.Resolution
}

// ProfileStore remembers callers across calls and keeps the turn log.
type ProfileStore interface {
	KnownName(ctx context.Context, phone string) (string, error)
	SaveKnownName(ctx context.Context, phone, name string) error
	RecordTurn(ctx context.Context, rec domain.TurnRecord) error
}

// CallEvents fans turns out to operators and hands calls over.
type CallEvents interface {
	PublishCallEvent(ctx context.Context, ev domain.CallEvent) error
	RequestHandoff(ctx context.Context, callID, number string) error
	HandoffNumber() string
}

type Config struct {
	EscalationThreshold int
	HistoryLimit        int
	MinTranscriptLen    int
	FallbackLanguage    domain.Language
	OperatorNumber      string
	LLMModel            string
}

// Deps are the collaborators of a Service. Profiles, Events, LLM and Metrics
// are optional.
type Deps struct {
	Sessions  *SessionManager
	Lexicon   *lexicon.Lexicon
	Acquirer  Acquirer
	Cascade   Transcriber
	Languages LanguageDetector
	Intents   IntentResolver
	Empathy   *emotion.Empathy
	LLM       llm.Provider
	Profiles  ProfileStore
	Events    CallEvents
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

type Service struct {
	cfg       Config
	sessions  *SessionManager
	lex       *lexicon.Lexicon
	acquirer  Acquirer
	cascade   Transcriber
	languages LanguageDetector
	intents   IntentResolver
	empathy   *emotion.Empathy
	llm       llm.Provider
	profiles  ProfileStore
	events    CallEvents
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
	table     []rule
}

func NewService(cfg Config, deps Deps) *Service {
	if cfg.EscalationThreshold <= 0 {
		cfg.EscalationThreshold = 2
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 2
	}
	if cfg.MinTranscriptLen <= 0 {
		cfg.MinTranscriptLen = 3
	}
	if !cfg.FallbackLanguage.Known() {
		cfg.FallbackLanguage = domain.LangEN
	}
	if deps.Lexicon == nil {
		deps.Lexicon = lexicon.Default()
	}
	if deps.Empathy == nil {
		deps.Empathy = emotion.NewEmpathy(deps.Lexicon)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Sessions == nil {
		deps.Sessions = NewSessionManager(0, deps.Metrics, deps.Logger)
	}
	if deps.Languages == nil {
		deps.Languages = language.NewResolver(deps.Lexicon, language.ModeOrdered, deps.Logger)
	}
	s := &Service{
		cfg:       cfg,
		sessions:  deps.Sessions,
		lex:       deps.Lexicon,
		acquirer:  deps.Acquirer,
		cascade:   deps.Cascade,
		languages: deps.Languages,
		intents:   deps.Intents,
		empathy:   deps.Empathy,
		llm:       deps.LLM,
		profiles:  deps.Profiles,
		events:    deps.Events,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       time.Now,
	}
	s.table = s.decisionTable()
	return s
}

var ErrMissingCallID = errors.New("call id is required")

// StartCall opens the session of a new call and returns the language prompt.
// A returning caller's name is looked up once here.
func (s *Service) StartCall(ctx context.Context, callID, callerNumber string) (domain.SpokenReplyPlan, error) {
	if strings.TrimSpace(callID) == "" {
		return domain.SpokenReplyPlan{}, ErrMissingCallID
	}
	sess, created, release := s.sessions.Begin(callID, callerNumber)
	defer release()
	if created {
		sess.KnownName = s.lookupName(ctx, callerNumber)
		s.sessions.Update(sess)
		s.logger.Info("call started", "call_id", callID, "returning_caller", sess.KnownName != "")
	}

	switch {
	case sess.State.Terminal():
		return s.terminalPlan(sess), nil
	case sess.State == StateAwaitingLanguage:
		return domain.SpokenReplyPlan{
			Text:        s.lex.PromptsFor(s.cfg.FallbackLanguage).LanguageChoice,
			LanguageTag: language.Locale(s.cfg.FallbackLanguage),
			NextAction:  domain.ActionContinue,
		}, nil
	default:
		return domain.SpokenReplyPlan{
			Text:        s.lex.PromptsFor(sess.Language).Reprompt,
			LanguageTag: language.Locale(sess.Language),
			NextAction:  domain.ActionContinue,
		}, nil
	}
}

type turnTiming struct {
	acquire    time.Duration
	transcribe time.Duration
}

// ProcessTurn runs one caller turn. Collaborator failures degrade the reply
// and are never returned; the session is written exactly once.
func (s *Service) ProcessTurn(ctx context.Context, callID string, in domain.TurnInput) (domain.SpokenReplyPlan, error) {
	if strings.TrimSpace(callID) == "" {
		return domain.SpokenReplyPlan{}, ErrMissingCallID
	}
	turnStart := time.Now()

	sess, created, release := s.sessions.Begin(callID, in.CallerNumber)
	defer release()
	if created {
		sess.KnownName = s.lookupName(ctx, in.CallerNumber)
	}
	if sess.State.Terminal() {
		return s.terminalPlan(sess), nil
	}

	var timing turnTiming
	text, engine := s.transcript(ctx, sess, in, &timing)
	t := &turn{
		session: sess,
		text:    text,
		norm:    lexicon.Normalize(text),
		engine:  engine,
	}

	var o outcome
	if sess.State == StateAwaitingLanguage {
		o = s.chooseLanguage(t)
	} else {
		t.lang = s.turnLanguage(sess, text)
		o = s.decide(ctx, t)
	}

	if t.norm != "" {
		if phrase, ok := s.empathy.Detect(t.text, t.lang); ok {
			o.reply = emotion.Prepend(phrase, o.reply)
		}
	}

	next := s.advance(sess, t, o)
	if !s.sessions.Update(next) {
		s.logger.Warn("session evicted during turn", "call_id", callID)
	}

	plan := domain.SpokenReplyPlan{
		Text:        o.reply,
		LanguageTag: language.Locale(t.lang),
		NextAction:  o.action,
	}
	if o.action == domain.ActionEscalate {
		plan.HandoffNumber = s.handoffNumber()
	}

	s.afterTurn(ctx, next, t, o, plan)

	s.logger.Info("turn timing",
		"call_id", callID,
		"turn", next.Turns,
		"state", next.State,
		"language", t.lang,
		"engine", engine,
		"rule", o.rule,
		"strategy", o.strategy,
		"intent", o.resolution.Intent,
		"path", o.resolution.Path,
		"fallbacks", next.FallbackCount,
		"action", o.action,
		"acquire_ms", timing.acquire.Milliseconds(),
		"transcribe_ms", timing.transcribe.Milliseconds(),
		"resolve_ms", o.resolve.Milliseconds(),
		"llm_ms", o.llm.Milliseconds(),
		"total_ms", time.Since(turnStart).Milliseconds(),
	)
	return plan, nil
}

// EndCall drops the session once the call is over.
func (s *Service) EndCall(callID string) {
	if s.sessions.Evict(callID) {
		s.logger.Info("call ended", "call_id", callID)
	}
}

func (s *Service) transcript(ctx context.Context, sess CallSession, in domain.TurnInput, timing *turnTiming) (string, string) {
	if text := strings.TrimSpace(in.SpeechText); text != "" {
		return text, "telephony"
	}
	if strings.TrimSpace(in.RecordingURL) == "" || s.acquirer == nil || s.cascade == nil {
		return "", ""
	}

	started := time.Now()
	audio, err := s.acquirer.Fetch(ctx, in.RecordingURL)
	timing.acquire = time.Since(started)
	s.metrics.ObserveCall("recording_fetch", timing.acquire)
	if err != nil {
		s.logger.Warn("recording unavailable, asking caller to repeat", "call_id", sess.CallID, "error", err)
		return "", ""
	}

	started = time.Now()
	res := s.cascade.Transcribe(ctx, audio, sess.Language)
	timing.transcribe = time.Since(started)
	s.metrics.ObserveCall("transcription", timing.transcribe)
	if res.Escalated {
		s.metrics.RecordEscalation(res.Reason)
	}
	return res.Text, res.Engine
}

// chooseLanguage handles the first turn: a greeting picks the language,
// anything else gets the fallback language. The call always moves on.
func (s *Service) chooseLanguage(t *turn) outcome {
	lang, ok := language.MatchGreeting(s.lex, t.text)
	if !ok {
		lang = s.cfg.FallbackLanguage
	}
	t.lang = lang

	p := s.lex.PromptsFor(lang)
	reply := p.Welcome
	if t.session.KnownName != "" && p.WelcomeBack != "" {
		reply = fmt.Sprintf(p.WelcomeBack, t.session.KnownName)
	}
	return outcome{
		kind:   outcomeLanguage,
		rule:   "language_choice",
		reply:  reply,
		action: domain.ActionContinue,
		state:  StateAwaitingQuery,
	}
}

func (s *Service) turnLanguage(sess CallSession, text string) domain.Language {
	if detected := s.languages.Detect(text); detected.Known() {
		return detected
	}
	if sess.Language.Known() {
		return sess.Language
	}
	return s.cfg.FallbackLanguage
}

// advance computes the next session version from the turn's outcome.
func (s *Service) advance(sess CallSession, t *turn, o outcome) CallSession {
	now := s.now()
	next := sess.clone()
	next.State = o.state
	next.Language = t.lang
	switch o.kind {
	case outcomeMatched, outcomeDirect:
		next.FallbackCount = 0
	case outcomeUnmatched:
		next.FallbackCount++
	}
	if o.kind != outcomeReprompt && o.kind != outcomeLanguage && t.norm != "" {
		next.History = pushHistory(next.History, domain.Utterance{
			Raw:        t.text,
			Normalized: t.norm,
			Language:   t.lang,
			At:         now,
		}, s.cfg.HistoryLimit)
	}
	if o.knownName != "" {
		next.KnownName = o.knownName
	}
	next.Turns++
	next.LastTurnAt = now
	return next
}

func (s *Service) terminalPlan(sess CallSession) domain.SpokenReplyPlan {
	p := s.lex.PromptsFor(sess.Language)
	if sess.State == StateEscalated {
		return domain.SpokenReplyPlan{
			Text:          p.Escalation,
			LanguageTag:   language.Locale(sess.Language),
			NextAction:    domain.ActionEscalate,
			HandoffNumber: s.handoffNumber(),
		}
	}
	return domain.SpokenReplyPlan{
		Text:        p.Goodbye,
		LanguageTag: language.Locale(sess.Language),
		NextAction:  domain.ActionEnd,
	}
}

func (s *Service) handoffNumber() string {
	if s.events != nil {
		if n := s.events.HandoffNumber(); n != "" {
			return n
		}
	}
	return s.cfg.OperatorNumber
}

func (s *Service) lookupName(ctx context.Context, phone string) string {
	if s.profiles == nil || strings.TrimSpace(phone) == "" {
		return ""
	}
	name, err := s.profiles.KnownName(ctx, phone)
	if err != nil {
		s.logger.Debug("caller profile lookup", "error", err)
		return ""
	}
	return name
}

// afterTurn runs the best-effort side effects of a committed turn.
func (s *Service) afterTurn(ctx context.Context, sess CallSession, t *turn, o outcome, plan domain.SpokenReplyPlan) {
	s.metrics.RecordTurn(string(plan.NextAction))
	now := s.now()

	if s.profiles != nil {
		if o.knownName != "" && sess.CallerNumber != "" {
			if err := s.profiles.SaveKnownName(ctx, sess.CallerNumber, o.knownName); err != nil {
				s.logger.Warn("save caller name failed", "call_id", sess.CallID, "error", err)
			}
		}
		if err := s.profiles.RecordTurn(ctx, domain.TurnRecord{
			TurnID:       uuid.NewString(),
			CallID:       sess.CallID,
			CallerNumber: sess.CallerNumber,
			Turn:         sess.Turns,
			State:        string(sess.State),
			Language:     t.lang,
			Transcript:   t.text,
			Engine:       t.engine,
			Intent:       o.resolution.Intent,
			Path:         o.resolution.Path,
			Confidence:   o.resolution.Confidence,
			Reply:        plan.Text,
			NextAction:   plan.NextAction,
			Fallbacks:    sess.FallbackCount,
			CreatedAt:    now,
		}); err != nil {
			s.logger.Warn("record turn failed", "call_id", sess.CallID, "error", err)
		}
	}

	if s.events == nil {
		return
	}
	if err := s.events.PublishCallEvent(ctx, domain.CallEvent{
		EventID:    uuid.NewString(),
		CallID:     sess.CallID,
		Turn:       sess.Turns,
		State:      string(sess.State),
		Language:   t.lang,
		Transcript: t.text,
		Intent:     o.resolution.Intent,
		Reply:      plan.Text,
		NextAction: plan.NextAction,
		Fallbacks:  sess.FallbackCount,
		At:         now,
	}); err != nil {
		s.logger.Warn("publish call event failed", "call_id", sess.CallID, "error", err)
	}
	if plan.NextAction == domain.ActionEscalate {
		if err := s.events.RequestHandoff(ctx, sess.CallID, plan.HandoffNumber); err != nil {
			s.logger.Warn("operator handoff request failed", "call_id", sess.CallID, "error", err)
		}
	}
}
