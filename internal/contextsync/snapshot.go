package contextsync

import (
	"slices"

	gwerrors "github.com/LucidWonk/environment-mcp-gateway-sub002/internal/errors"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/event"
)

// CreateSnapshot appends a copy of the current entries to the version
// history.
func (s *Synchronizer) CreateSnapshot(conversationID, createdBy, description string) (ContextVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load(conversationID)
	if err != nil {
		s.logger.WithConversation(conversationID).Failure("snapshot rejected", err)
		return ContextVersion{}, err
	}
	v := ContextVersion{
		ID:             s.newID(),
		ConversationID: conversationID,
		Version:        state.Context.Version,
		Snapshot:       cloneEntries(state.Context.Entries),
		CreatedAt:      s.now(),
		CreatedBy:      createdBy,
		Description:    description,
	}
	state.Versions = append(state.Versions, v)
	s.repo.Save(state)

	s.logger.WithConversation(conversationID).Debug("snapshot created",
		"version_id", v.ID, "version", v.Version, "entries", len(v.Snapshot))
	return v.Clone(), nil
}

// Versions returns the retained snapshots, oldest first.
func (s *Synchronizer) Versions(conversationID string) ([]ContextVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load(conversationID)
	if err != nil {
		return nil, err
	}
	out := make([]ContextVersion, len(state.Versions))
	for i, v := range state.Versions {
		out[i] = v.Clone()
	}
	return out, nil
}

// Rollback restores the entries and version recorded by snapshot versionID.
// Pending operations and active conflicts are discarded.
func (s *Synchronizer) Rollback(conversationID, versionID, agentID string) error {
	log := s.logger.WithConversation(conversationID).With("version_id", versionID, "agent_id", agentID)

	s.mu.Lock()
	state, err := s.load(conversationID)
	if err != nil {
		s.mu.Unlock()
		log.Failure("rollback rejected", err)
		return err
	}
	idx := slices.IndexFunc(state.Versions, func(v ContextVersion) bool { return v.ID == versionID })
	if idx < 0 {
		s.mu.Unlock()
		nf := gwerrors.NewNotFoundError("version", versionID)
		log.Failure("rollback rejected", nf)
		return nf
	}

	now := s.now()
	target := state.Versions[idx]
	clearedOps, clearedConflicts := len(state.Pending), len(state.Conflicts)

	state.Context.Entries = cloneEntries(target.Snapshot)
	state.Context.Version = target.Version
	state.Context.UpdatedAt = now
	state.Pending = nil
	state.Conflicts = nil
	s.record(state, SyncOperation{
		ID:             s.newID(),
		ConversationID: conversationID,
		AgentID:        agentID,
		Type:           OperationRollback,
		Timestamp:      now,
		Applied:        true,
	})
	updateConsistency(state)
	s.repo.Save(state)
	s.refresh(state)
	s.mu.Unlock()

	log.Info("context rolled back", "version", target.Version,
		"cleared_operations", clearedOps, "cleared_conflicts", clearedConflicts)
	s.publish(event.NewContextRolledBackEvent(conversationID, versionID, target.Version, clearedOps, clearedConflicts))
	return nil
}
