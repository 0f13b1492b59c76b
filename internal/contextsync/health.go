package contextsync

import (
	"context"
	"fmt"
	"time"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/event"
)

// Health score penalties.
const (
	pendingBacklogLimit   = 5
	pendingBacklogPenalty = 20
	conflictPenalty       = 15
	consistencyFloor      = 80
	consistencyPenalty    = 25

	degradedScore = 40
)

// updateConsistency recomputes the consistency score from the pending
// queue and active conflicts. Callers hold s.mu.
func updateConsistency(state *State) {
	score := 100 - 10*len(state.Conflicts) - 2*len(state.Pending)
	state.Metrics.DataConsistencyScore = max(0, score)
}

func computeHealth(state *State) SyncHealth {
	score := 100
	var issues []string
	if n := len(state.Pending); n > pendingBacklogLimit {
		score -= pendingBacklogPenalty
		issues = append(issues, fmt.Sprintf("%d pending operations", n))
	}
	if n := len(state.Conflicts); n > 0 {
		score -= conflictPenalty * n
		issues = append(issues, fmt.Sprintf("%d active conflicts", n))
	}
	if c := state.Metrics.DataConsistencyScore; c < consistencyFloor {
		score -= consistencyPenalty
		issues = append(issues, fmt.Sprintf("consistency score %d", c))
	}
	score = max(0, score)
	return SyncHealth{Score: score, Status: healthStatus(score), Issues: issues}
}

func healthStatus(score int) HealthStatus {
	switch {
	case score >= DefaultHealthAlertThreshold:
		return HealthHealthy
	case score >= degradedScore:
		return HealthDegraded
	default:
		return HealthCritical
	}
}

// Status returns a read-only summary of the conversation, or nil if it is
// unknown.
func (s *Synchronizer) Status(conversationID string) *ContextStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.repo.Load(conversationID)
	if !ok {
		return nil
	}
	return &ContextStatus{
		ConversationID:    conversationID,
		SyncID:            state.Context.SyncID,
		Version:           state.Context.Version,
		EntryCount:        len(state.Context.Entries),
		ParticipantCount:  len(state.Context.Participants),
		PendingOperations: len(state.Pending),
		ActiveConflicts:   len(state.Conflicts),
		AvailableVersions: len(state.Versions),
		Metrics:           state.Metrics,
		Health:            computeHealth(state),
		LastUpdated:       state.Context.UpdatedAt,
	}
}

// RunMaintenance performs one maintenance pass over every conversation:
// snapshot history is trimmed to the retention count, conflicts older than
// the retention window are dropped and unhealthy conversations raise a
// syncHealthAlert. Pending operations are left alone.
func (s *Synchronizer) RunMaintenance() {
	retention := int(s.snapshotRetention.Load())
	maxAge := time.Duration(s.conflictRetention.Load())
	threshold := int(s.alertThreshold.Load())

	var alerts []event.SyncHealthAlertEvent
	pruned, expired := 0, 0

	s.mu.Lock()
	now := s.now()
	for _, id := range s.repo.List() {
		state, ok := s.repo.Load(id)
		if !ok {
			continue
		}
		if over := len(state.Versions) - retention; over > 0 {
			clear(state.Versions[:over])
			state.Versions = state.Versions[over:]
			pruned += over
		}
		before := len(state.Conflicts)
		kept := state.Conflicts[:0]
		for _, c := range state.Conflicts {
			if now.Sub(c.DetectedAt) <= maxAge {
				kept = append(kept, c)
			}
		}
		state.Conflicts = kept
		expired += before - len(kept)

		updateConsistency(state)
		s.repo.Save(state)

		if h := computeHealth(state); h.Score < threshold {
			alerts = append(alerts, event.NewSyncHealthAlertEvent(id, h.Score, string(h.Status), h.Issues))
		}
	}
	s.mu.Unlock()

	for _, alert := range alerts {
		s.logger.WithConversation(alert.ConversationID).Warn("sync health below threshold",
			"score", alert.Score, "status", alert.Status, "issues", alert.Issues)
		s.publish(alert)
	}
	if pruned > 0 || expired > 0 {
		s.logger.Debug("maintenance pass", "pruned_snapshots", pruned, "expired_conflicts", expired)
	}
}

// Start runs maintenance on the configured interval until ctx is done or
// Stop is called. Calling Start on a running synchronizer is a no-op.
func (s *Synchronizer) Start(ctx context.Context) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.stopped = make(chan struct{})
	go s.maintenanceLoop(ctx, s.stopped)
	s.logger.Info("maintenance started", "interval", s.maintenanceInterval.String())
}

// Stop halts the maintenance loop and waits for it to exit.
// Safe to call multiple times.
func (s *Synchronizer) Stop() {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.stopped
	s.cancel = nil
	s.stopped = nil
}

func (s *Synchronizer) maintenanceLoop(ctx context.Context, stopped chan<- struct{}) {
	defer close(stopped)
	ticker := time.NewTicker(s.maintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunMaintenance()
		}
	}
}
