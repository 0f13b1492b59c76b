package contextsync

import (
	"slices"
	"sync"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/conflict"
)

// State is everything the synchronizer tracks for one conversation.
type State struct {
	Context   *ConversationContext
	Pending   []SyncOperation
	Conflicts []conflict.Conflict
	Versions  []ContextVersion
	History   []SyncOperation
	Metrics   SyncMetrics
}

// Repository stores conversation state. The synchronizer serializes all
// access, so implementations only need to be safe for concurrent readers.
type Repository interface {
	Load(conversationID string) (*State, bool)
	Save(state *State)
	Delete(conversationID string) bool
	List() []string
	Clear()
}

// MemoryRepository keeps state in process memory.
type MemoryRepository struct {
	mu     sync.RWMutex
	states map[string]*State
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{states: make(map[string]*State)}
}

// Load returns the stored state for conversationID.
func (r *MemoryRepository) Load(conversationID string) (*State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[conversationID]
	return s, ok
}

// Save stores state under its conversation ID, replacing any previous one.
func (r *MemoryRepository) Save(state *State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.Context.ConversationID] = state
}

// Delete removes a conversation. It reports whether one was stored.
func (r *MemoryRepository) Delete(conversationID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.states[conversationID]; !ok {
		return false
	}
	delete(r.states, conversationID)
	return true
}

// List returns the stored conversation IDs in sorted order.
func (r *MemoryRepository) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.states))
	for id := range r.states {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Clear removes every conversation.
func (r *MemoryRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = make(map[string]*State)
}
