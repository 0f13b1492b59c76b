package contextsync

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/conflict"
	gwerrors "github.com/LucidWonk/environment-mcp-gateway-sub002/internal/errors"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/event"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/payload"
)

type deliveryResult struct {
	SessionID string
	Err       error
}

// Sync settles every pending operation whose conflicts are all auto-merge
// and then pushes the resulting state to targets, or to every participant
// when targets is empty. A failing session never fails the call; it is
// reported in SyncReport.FailedSessions.
func (s *Synchronizer) Sync(ctx context.Context, conversationID string, targets []string) (SyncReport, error) {
	log := s.logger.WithConversation(conversationID)
	started := s.now()

	s.mu.Lock()
	state, err := s.load(conversationID)
	if err != nil {
		s.mu.Unlock()
		log.Failure("sync rejected", err)
		return SyncReport{}, err
	}
	applied, resolved, updates := s.settle(state, started)
	updateConsistency(state)
	s.repo.Save(state)
	s.refresh(state)
	snapshot := state.Context.Clone()
	syncID := snapshot.SyncID
	remaining := len(state.Conflicts)
	s.mu.Unlock()

	s.publish(updates...)

	if len(targets) == 0 {
		targets = snapshot.Participants
	}
	results := s.deliver(ctx, snapshot, targets)

	report := SyncReport{
		ConversationID:     conversationID,
		AppliedOperations:  applied,
		ResolvedConflicts:  resolved,
		RemainingConflicts: remaining,
		SyncedSessions:     []string{},
	}
	var failedIDs []string
	for _, r := range results {
		if r.Err == nil {
			report.SyncedSessions = append(report.SyncedSessions, r.SessionID)
			continue
		}
		if report.FailedSessions == nil {
			report.FailedSessions = make(map[string]string)
		}
		report.FailedSessions[r.SessionID] = r.Err.Error()
		failedIDs = append(failedIDs, r.SessionID)
		log.Failure("context delivery failed", r.Err, "session_id", r.SessionID)
	}
	report.Duration = s.now().Sub(started)

	s.mu.Lock()
	if state, ok := s.repo.Load(conversationID); ok && state.Context.SyncID == syncID {
		m := &state.Metrics
		m.SyncCount++
		m.SuccessfulDeliveries += len(report.SyncedSessions)
		m.FailedDeliveries += len(failedIDs)
		m.LastSyncAt = s.now()
		m.AverageSyncDuration += (report.Duration - m.AverageSyncDuration) / time.Duration(m.SyncCount)
		s.repo.Save(state)
	}
	s.mu.Unlock()

	log.Info("context synced",
		"applied", len(applied),
		"resolved_conflicts", resolved,
		"remaining_conflicts", remaining,
		"synced_sessions", len(report.SyncedSessions),
		"failed_sessions", len(failedIDs))
	s.publish(event.NewContextSyncedEvent(conversationID,
		len(report.SyncedSessions), len(failedIDs), resolved, remaining, failedIDs))
	return report, nil
}

// settle applies the pending operations that can be resolved without a
// caller and returns their IDs, the number of conflicts cleared and the
// events to publish. Callers hold s.mu.
func (s *Synchronizer) settle(state *State, now time.Time) ([]string, int, []event.Event) {
	applied := []string{}
	var events []event.Event
	resolved := 0
	kept := state.Pending[:0]

	for _, op := range state.Pending {
		if !conflict.AllAutoMerge(op.Conflicts) {
			kept = append(kept, op)
			continue
		}
		current := state.Context.Entries[op.Key]
		value, ok := s.resolver.Resolve(op.Conflicts[0], current.Value)
		if !ok {
			kept = append(kept, op)
			continue
		}
		entry := s.resolvedEntry(op, current, value, now, ResolutionAutoMerge)
		s.install(state, entry, now)
		resolved += s.dropConflicts(state, op.Conflicts)

		op.Applied = true
		op.After = entry.Value
		op.Proposed = entry
		s.record(state, op)
		state.Metrics.AppliedOperations++
		applied = append(applied, op.ID)
		events = append(events, event.NewContextUpdatedEvent(state.Context.ConversationID,
			op.ID, op.AgentID, op.Key, entry.Version, state.Context.Version))
	}
	clear(state.Pending[len(kept):])
	state.Pending = kept
	return applied, resolved, events
}

// resolvedEntry builds the entry installed when a queued operation is
// settled with value.
func (s *Synchronizer) resolvedEntry(op SyncOperation, current ContextEntry, value []byte, now time.Time, resolution string) ContextEntry {
	entry := op.Proposed.Clone()
	entry.Value = value
	entry.Checksum = payload.Checksum(value)
	entry.Version = current.Version + 1
	entry.Timestamp = now
	entry.Metadata.PreviousValue = current.Clone().Value
	entry.Metadata.Resolution = resolution
	return entry
}

// dropConflicts removes the given conflicts from the active list and
// returns how many were removed. Callers hold s.mu.
func (s *Synchronizer) dropConflicts(state *State, conflicts []conflict.Conflict) int {
	before := len(state.Conflicts)
	state.Conflicts = slices.DeleteFunc(state.Conflicts, func(active conflict.Conflict) bool {
		return slices.ContainsFunc(conflicts, func(c conflict.Conflict) bool { return c.ID == active.ID })
	})
	n := before - len(state.Conflicts)
	state.Metrics.ConflictsResolved += n
	return n
}

// deliver pushes snapshot to every target concurrently and returns the
// results sorted by session ID.
func (s *Synchronizer) deliver(ctx context.Context, snapshot *ConversationContext, targets []string) []deliveryResult {
	if len(targets) == 0 {
		return nil
	}
	p := pool.NewWithResults[deliveryResult]().WithMaxGoroutines(s.deliveryConcurrency)
	for _, target := range slices.Compact(slices.Sorted(slices.Values(targets))) {
		p.Go(func() deliveryResult {
			return deliveryResult{SessionID: target, Err: s.deliverOne(ctx, target, snapshot.Clone())}
		})
	}
	results := p.Wait()
	slices.SortFunc(results, func(a, b deliveryResult) int {
		switch {
		case a.SessionID < b.SessionID:
			return -1
		case a.SessionID > b.SessionID:
			return 1
		}
		return 0
	})
	return results
}

func (s *Synchronizer) deliverOne(ctx context.Context, sessionID string, snapshot *ConversationContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = gwerrors.NewDeliveryError(sessionID, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := ctx.Err(); err != nil {
		return gwerrors.NewDeliveryError(sessionID, gwerrors.Join(gwerrors.ErrCanceled, err))
	}
	if s.syncer == nil {
		return nil
	}
	if err := s.syncer.SyncToAgent(ctx, sessionID, snapshot); err != nil {
		return gwerrors.NewDeliveryError(sessionID, err)
	}
	return nil
}

// ResolveConflict settles the queued operation that owns conflictID using a
// caller-supplied value, clearing every conflict of that operation. A nil
// value keeps the operation's proposed value.
func (s *Synchronizer) ResolveConflict(conversationID, conflictID, agentID string, value any) error {
	log := s.logger.WithConversation(conversationID).With("conflict_id", conflictID, "agent_id", agentID)

	var raw []byte
	if value != nil {
		encoded, err := payload.Canonicalize(value)
		if err != nil {
			verr := gwerrors.NewValidationError("resolution value cannot be encoded").WithField("value").
				WithCause(gwerrors.Join(gwerrors.ErrUnencodableValue, err))
			log.Failure("conflict resolution rejected", verr)
			return verr
		}
		raw = encoded
	}

	s.mu.Lock()
	state, err := s.load(conversationID)
	if err != nil {
		s.mu.Unlock()
		log.Failure("conflict resolution rejected", err)
		return err
	}
	if !state.Context.IsParticipant(agentID) {
		s.mu.Unlock()
		verr := gwerrors.NewValidationError("agent is not a participant").
			WithField("agentId").WithValue(agentID).WithCause(gwerrors.ErrNotParticipant)
		log.Failure("conflict resolution rejected", verr)
		return verr
	}
	idx := slices.IndexFunc(state.Pending, func(op SyncOperation) bool {
		return slices.ContainsFunc(op.Conflicts, func(c conflict.Conflict) bool { return c.ID == conflictID })
	})
	if idx < 0 {
		s.mu.Unlock()
		nf := gwerrors.NewNotFoundError("conflict", conflictID)
		log.Failure("conflict resolution rejected", nf)
		return nf
	}

	now := s.now()
	op := state.Pending[idx]
	state.Pending = slices.Delete(state.Pending, idx, idx+1)
	if raw == nil {
		raw = op.Proposed.Value
	}
	current := state.Context.Entries[op.Key]
	entry := s.resolvedEntry(op, current, raw, now, ResolutionManual)
	entry.LastModifiedBy = agentID
	s.install(state, entry, now)
	s.dropConflicts(state, op.Conflicts)

	op.Applied = true
	op.After = entry.Value
	op.Proposed = entry
	s.record(state, op)
	state.Metrics.AppliedOperations++
	updateConsistency(state)
	s.repo.Save(state)
	s.refresh(state)

	events := make([]event.Event, 0, len(op.Conflicts)+1)
	for _, c := range op.Conflicts {
		events = append(events, event.NewConflictResolvedEvent(conversationID, c.ID, op.Key, agentID))
	}
	events = append(events, event.NewContextUpdatedEvent(conversationID, op.ID, agentID, op.Key,
		entry.Version, state.Context.Version))
	s.mu.Unlock()

	log.Info("conflict resolved manually", "operation_id", op.ID, "key", op.Key, "entry_version", entry.Version)
	s.publish(events...)
	return nil
}
