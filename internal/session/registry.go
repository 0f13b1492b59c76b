package session

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	gwerrors "github.com/LucidWonk/environment-mcp-gateway-sub002/internal/errors"
)

// State is the connection state of a session.
type State string

const (
	StateConnected    State = "connected"
	StateActive       State = "active"
	StateIdle         State = "idle"
	StateDisconnected State = "disconnected"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateConnected, StateActive, StateIdle, StateDisconnected:
		return true
	}
	return false
}

// Info describes one connected session.
type Info struct {
	ID            string    `json:"sessionId"`
	UserAgent     string    `json:"userAgent,omitempty"`
	RemoteAddress string    `json:"remoteAddress,omitempty"`
	State         State     `json:"state"`
	ConnectedAt   time.Time `json:"connectedAt"`
	LastSeen      time.Time `json:"lastSeen"`
}

// Metrics summarizes the registry.
type Metrics struct {
	TotalSessions  int `json:"totalSessions"`
	ActiveSessions int `json:"activeSessions"`
}

// Registry is an in-memory session table safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Info
	now      func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the time source for connection timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		sessions: make(map[string]*Info),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GenerateID returns a new session ID.
func (r *Registry) GenerateID() string {
	return "session-" + uuid.NewString()
}

// Add records a newly connected session.
func (r *Registry) Add(id, userAgent, remoteAddress string) (Info, error) {
	if strings.TrimSpace(id) == "" {
		return Info{}, gwerrors.NewValidationError("session id is required").WithField("sessionId")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; ok {
		return Info{}, gwerrors.NewAlreadyExistsError("session", id)
	}
	now := r.now()
	info := &Info{
		ID:            id,
		UserAgent:     userAgent,
		RemoteAddress: remoteAddress,
		State:         StateConnected,
		ConnectedAt:   now,
		LastSeen:      now,
	}
	r.sessions[id] = info
	return *info, nil
}

// Remove forgets a session.
func (r *Registry) Remove(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return gwerrors.NewNotFoundError("session", id)
	}
	delete(r.sessions, id)
	return nil
}

// UpdateState changes a session's state and refreshes LastSeen.
func (r *Registry) UpdateState(id string, state State) error {
	if !state.Valid() {
		return gwerrors.NewValidationError("unknown session state").WithField("state").WithValue(state)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.sessions[id]
	if !ok {
		return gwerrors.NewNotFoundError("session", id)
	}
	info.State = state
	info.LastSeen = r.now()
	return nil
}

// Touch refreshes LastSeen without changing the state.
func (r *Registry) Touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.sessions[id]
	if ok {
		info.LastSeen = r.now()
	}
	return ok
}

// Get returns a copy of one session.
func (r *Registry) Get(id string) (Info, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.sessions[id]
	if !ok {
		return Info{}, false
	}
	return *info, true
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.sessions[id]
	return ok
}

// List returns every session ordered by ID.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.sessions))
	for _, info := range r.sessions {
		out = append(out, *info)
	}
	slices.SortFunc(out, func(a, b Info) int { return strings.Compare(a.ID, b.ID) })
	return out
}

// IDs returns the registered session IDs in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Metrics counts registered sessions and those not disconnected.
func (r *Registry) Metrics() Metrics {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m := Metrics{TotalSessions: len(r.sessions)}
	for _, info := range r.sessions {
		if info.State != StateDisconnected {
			m.ActiveSessions++
		}
	}
	return m
}

// Clear removes every session.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = make(map[string]*Info)
}
