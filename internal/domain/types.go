package domain

import (
	"strings"
	"time"
)

type Language string

const (
	LangUnknown Language = "unknown"
	LangEN      Language = "en"
	LangRU      Language = "ru"
)

func ParseLanguage(s string) Language {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "en", "en-us", "en-gb", "english":
		return LangEN
	case "ru", "ru-ru", "russian":
		return LangRU
	default:
		return LangUnknown
	}
}

func (l Language) Known() bool {
	return l == LangEN || l == LangRU
}

type Utterance struct {
	Raw        string
	Normalized string
	Language   Language
	At         time.Time
}

// TurnInput carries exactly one of RecordingURL or SpeechText.
type TurnInput struct {
	RecordingURL string `json:"recording_url,omitempty"`
	SpeechText   string `json:"speech_text,omitempty"`
	CallerNumber string `json:"caller_number,omitempty"`
}

type NextAction string

const (
	ActionContinue NextAction = "continue"
	ActionEscalate NextAction = "escalate"
	ActionEnd      NextAction = "end"
)

type SpokenReplyPlan struct {
	Text        string     `json:"text"`
	LanguageTag string     `json:"language_tag"`
	NextAction  NextAction `json:"next_action"`
	// HandoffNumber is set when NextAction is ActionEscalate.
	HandoffNumber string `json:"handoff_number,omitempty"`
}

type ResolutionPath string

const (
	PathNone       ResolutionPath = ""
	PathSemantic   ResolutionPath = "semantic"
	PathLexical    ResolutionPath = "lexical"
	PathClassifier ResolutionPath = "classifier"
	// PathKeyword marks a canned answer picked by keyword before resolution.
	PathKeyword ResolutionPath = "keyword"
)

// Resolution is Matched with Intent/Answer/Confidence set, or the zero value for Unmatched.
type Resolution struct {
	Matched    bool
	Intent     string
	Answer     string
	Confidence float64
	Path       ResolutionPath
}

func Unmatched() Resolution {
	return Resolution{}
}

type Message struct {
	Role    string
	Content string
}

type LLMRequest struct {
	Model       string
	System      string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

type LLMResponse struct {
	Content string
}

// TurnRecord is one finished dialogue turn as written to the turn log.
type TurnRecord struct {
	TurnID       string
	CallID       string
	CallerNumber string
	Turn         int
	State        string
	Language     Language
	Transcript   string
	Engine       string
	Intent       string
	Path         ResolutionPath
	Confidence   float64
	Reply        string
	NextAction   NextAction
	Fallbacks    int
	CreatedAt    time.Time
}

// CallEvent is published after every turn so operators can follow live calls.
type CallEvent struct {
	EventID    string     `json:"event_id"`
	CallID     string     `json:"call_id"`
	Turn       int        `json:"turn"`
	State      string     `json:"state"`
	Language   Language   `json:"language"`
	Transcript string     `json:"transcript,omitempty"`
	Intent     string     `json:"intent,omitempty"`
	Reply      string     `json:"reply"`
	NextAction NextAction `json:"next_action"`
	Fallbacks  int        `json:"fallbacks"`
	At         time.Time  `json:"at"`
}
