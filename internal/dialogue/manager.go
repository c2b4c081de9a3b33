package dialogue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"clinicvoice/internal/domain"
	"clinicvoice/internal/metrics"
)

type sessionEntry struct {
	// turn serializes the turns of one call.
	turn    sync.Mutex
	session CallSession
}

// SessionManager owns every live CallSession. Sessions idle for longer than
// the TTL are evicted by Sweep.
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	ttl      time.Duration
	now      func() time.Time
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewSessionManager(ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) *SessionManager {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SessionManager{
		sessions: make(map[string]*sessionEntry),
		ttl:      ttl,
		now:      time.Now,
		metrics:  m,
		logger:   logger,
	}
}

// GetOrCreate returns the session of callID, creating it when absent. When
// two turns race to create the same call only one session is stored.
func (m *SessionManager) GetOrCreate(callID, callerNumber string) (CallSession, bool) {
	entry, created := m.entry(callID, callerNumber)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return entry.session.clone(), created
}

func (m *SessionManager) entry(callID, callerNumber string) (*sessionEntry, bool) {
	m.mu.RLock()
	entry, ok := m.sessions[callID]
	m.mu.RUnlock()
	if ok {
		return entry, false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.sessions[callID]; ok {
		return entry, false
	}
	now := m.now()
	entry = &sessionEntry{session: CallSession{
		CallID:       callID,
		CallerNumber: callerNumber,
		State:        StateAwaitingLanguage,
		Language:     domain.LangUnknown,
		CreatedAt:    now,
		LastTurnAt:   now,
	}}
	m.sessions[callID] = entry
	m.metrics.SetSessions(len(m.sessions))
	return entry, true
}

// Begin creates the session if needed and locks it for one turn. The returned
// release func must be called when the turn is over.
func (m *SessionManager) Begin(callID, callerNumber string) (CallSession, bool, func()) {
	for {
		entry, created := m.entry(callID, callerNumber)
		entry.turn.Lock()
		m.mu.RLock()
		current := m.sessions[callID] == entry
		sess := entry.session.clone()
		m.mu.RUnlock()
		if current {
			return sess, created, entry.turn.Unlock
		}
		// Swept or evicted between lookup and lock.
		entry.turn.Unlock()
	}
}

func (m *SessionManager) Get(callID string) (CallSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.sessions[callID]
	if !ok {
		return CallSession{}, false
	}
	return entry.session.clone(), true
}

// Update stores next as the current version of its call. It reports false
// when the call has been evicted meanwhile.
func (m *SessionManager) Update(next CallSession) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.sessions[next.CallID]
	if !ok {
		return false
	}
	entry.session = next.clone()
	return true
}

func (m *SessionManager) Evict(callID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[callID]; !ok {
		return false
	}
	delete(m.sessions, callID)
	m.metrics.SetSessions(len(m.sessions))
	return true
}

func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep evicts sessions idle longer than the TTL and returns how many went.
// Sessions in the middle of a turn are left alone.
func (m *SessionManager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, entry := range m.sessions {
		if now.Sub(entry.session.LastTurnAt) <= m.ttl {
			continue
		}
		if !entry.turn.TryLock() {
			continue
		}
		delete(m.sessions, id)
		entry.turn.Unlock()
		evicted++
	}
	if evicted > 0 {
		m.metrics.SetSessions(len(m.sessions))
	}
	return evicted
}

// RunJanitor sweeps every interval until ctx is done.
func (m *SessionManager) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(m.now()); n > 0 {
				m.logger.Info("evicted idle call sessions", "count", n, "remaining", m.Len())
			}
		}
	}
}
