package dialogue

import (
	"time"

	"clinicvoice/internal/domain"
)

type State string

const (
	StateAwaitingLanguage State = "awaiting_language_choice"
	StateAwaitingQuery    State = "awaiting_query"
	StateEscalated        State = "escalated"
	StateEnded            State = "ended"
)

func (s State) Terminal() bool {
	return s == StateEscalated || s == StateEnded
}

// CallSession is the per-call dialogue state. Values are snapshots: a turn
// works on a copy and hands the next version to SessionManager.Update.
type CallSession struct {
	CallID        string
	CallerNumber  string
	State         State
	Language      domain.Language
	History       []domain.Utterance
	FallbackCount int
	KnownName     string
	Turns         int
	CreatedAt     time.Time
	LastTurnAt    time.Time
}

func (s CallSession) clone() CallSession {
	out := s
	out.History = append([]domain.Utterance(nil), s.History...)
	return out
}

// HistoryTexts returns the raw text of the remembered utterances, oldest first.
func (s CallSession) HistoryTexts() []string {
	out := make([]string, 0, len(s.History))
	for _, u := range s.History {
		out = append(out, u.Raw)
	}
	return out
}

// pushHistory appends u and drops the oldest entries beyond limit.
func pushHistory(h []domain.Utterance, u domain.Utterance, limit int) []domain.Utterance {
	if limit <= 0 {
		return nil
	}
	h = append(h, u)
	if over := len(h) - limit; over > 0 {
		h = append([]domain.Utterance(nil), h[over:]...)
	}
	return h
}
