package mqtt

import (
	"sort"
	"strings"
	"sync"
	"time"
)

type OperatorState struct {
	OperatorID  string
	Number      string
	Available   bool
	Online      bool
	LastUpdated time.Time
	// AvailableSince orders handoffs: the operator waiting longest goes first.
	AvailableSince time.Time
}

// OperatorRegistry tracks operator presence reported over MQTT. Entries that
// stop reporting for longer than the TTL are treated as offline.
type OperatorRegistry struct {
	mu   sync.RWMutex
	data map[string]OperatorState
	ttl  time.Duration
	now  func() time.Time
}

func NewOperatorRegistry(ttl time.Duration) *OperatorRegistry {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &OperatorRegistry{
		data: make(map[string]OperatorState),
		ttl:  ttl,
		now:  time.Now,
	}
}

// SetStatus records a status report. An empty number keeps the known one.
func (r *OperatorRegistry) SetStatus(operatorID, number string, available bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	current := r.data[operatorID]
	if number = strings.TrimSpace(number); number == "" {
		number = current.Number
	}
	since := current.AvailableSince
	if available && (!current.Available || !current.Online || r.isExpired(current, now)) {
		since = now
	}
	if !available {
		since = time.Time{}
	}
	r.data[operatorID] = OperatorState{
		OperatorID:     operatorID,
		Number:         number,
		Available:      available,
		Online:         true,
		LastUpdated:    now,
		AvailableSince: since,
	}
}

func (r *OperatorRegistry) SetOnline(operatorID string, online bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state := r.data[operatorID]
	state.OperatorID = operatorID
	state.Online = online
	if !online {
		state.Available = false
		state.AvailableSince = time.Time{}
	}
	state.LastUpdated = r.now()
	r.data[operatorID] = state
}

func (r *OperatorRegistry) Get(operatorID string) (OperatorState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.data[operatorID]
	if !ok || r.isExpired(state, r.now()) {
		return OperatorState{}, false
	}
	return state, true
}

// ListAvailable returns the operators who can take a call, longest waiting first.
func (r *OperatorRegistry) ListAvailable() []OperatorState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	out := make([]OperatorState, 0, len(r.data))
	for _, state := range r.data {
		if !state.Online || !state.Available || state.Number == "" || r.isExpired(state, now) {
			continue
		}
		out = append(out, state)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AvailableSince.Equal(out[j].AvailableSince) {
			return out[i].AvailableSince.Before(out[j].AvailableSince)
		}
		return out[i].OperatorID < out[j].OperatorID
	})
	return out
}

// Claim marks the available operator reached at number as busy until their
// next status report. It returns false when nobody available has that number.
func (r *OperatorRegistry) Claim(number string) (OperatorState, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	for id, state := range r.data {
		if state.Number != number || !state.Online || !state.Available || r.isExpired(state, now) {
			continue
		}
		state.Available = false
		state.AvailableSince = time.Time{}
		r.data[id] = state
		return state, true
	}
	return OperatorState{}, false
}

func (r *OperatorRegistry) isExpired(state OperatorState, now time.Time) bool {
	if r.ttl <= 0 {
		return false
	}
	return now.Sub(state.LastUpdated) > r.ttl
}
