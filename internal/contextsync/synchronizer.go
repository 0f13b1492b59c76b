package contextsync

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/config"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/conflict"
	gwerrors "github.com/LucidWonk/environment-mcp-gateway-sub002/internal/errors"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/event"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/logging"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/payload"
)

// AgentSyncer pushes a conversation's state to one session. It is expected
// to be a network call that can fail for one session independently of
// the others.
type AgentSyncer interface {
	SyncToAgent(ctx context.Context, agentID string, snapshot *ConversationContext) error
}

// AgentSyncerFunc adapts a function to the AgentSyncer interface.
type AgentSyncerFunc func(ctx context.Context, agentID string, snapshot *ConversationContext) error

// SyncToAgent calls f.
func (f AgentSyncerFunc) SyncToAgent(ctx context.Context, agentID string, snapshot *ConversationContext) error {
	return f(ctx, agentID, snapshot)
}

// Synchronizer owns the versioned context of every conversation.
type Synchronizer struct {
	mu       sync.Mutex
	repo     Repository
	detector *conflict.Detector
	resolver conflict.Resolver
	syncer   AgentSyncer
	bus      *event.Bus
	logger   *logging.Logger
	now      func() time.Time
	newID    func() string
	cache    *lru.Cache[string, *ConversationContext]

	snapshotRetention   atomic.Int64
	conflictRetention   atomic.Int64
	alertThreshold      atomic.Int64
	deliveryConcurrency int
	maintenanceInterval time.Duration

	lifeMu  sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
}

// New creates a Synchronizer.
func New(opts ...Option) (*Synchronizer, error) {
	cfg := defaultSyncConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	cache, err := lru.New[string, *ConversationContext](cfg.cacheSize)
	if err != nil {
		return nil, gwerrors.NewSyncError("create context cache", err)
	}

	if cfg.repo == nil {
		cfg.repo = NewMemoryRepository()
	}
	if cfg.logger == nil {
		cfg.logger = logging.NopLogger()
	}
	if cfg.detector == nil {
		cfg.detector = conflict.NewDetector(conflict.WithClock(cfg.now), conflict.WithIDGenerator(cfg.newID))
	}

	s := &Synchronizer{
		repo:                cfg.repo,
		detector:            cfg.detector,
		resolver:            cfg.resolver,
		syncer:              cfg.syncer,
		bus:                 cfg.bus,
		logger:              cfg.logger.WithComponent("contextsync"),
		now:                 cfg.now,
		newID:               cfg.newID,
		cache:               cache,
		deliveryConcurrency: cfg.deliveryConcurrency,
		maintenanceInterval: cfg.maintenanceInterval,
	}
	s.snapshotRetention.Store(int64(cfg.snapshotRetention))
	s.conflictRetention.Store(int64(cfg.conflictRetention))
	s.alertThreshold.Store(int64(cfg.alertThreshold))
	return s, nil
}

// ApplyConfig re-tunes thresholds on a running synchronizer.
func (s *Synchronizer) ApplyConfig(cfg config.SyncConfig) {
	s.detector.SetWindow(cfg.ConcurrentWindow())
	if cfg.SnapshotRetention > 0 {
		s.snapshotRetention.Store(int64(cfg.SnapshotRetention))
	}
	if cfg.ConflictRetentionHours > 0 {
		s.conflictRetention.Store(int64(cfg.ConflictRetention()))
	}
	s.alertThreshold.Store(int64(cfg.HealthAlertThreshold))
	s.logger.Info("sync thresholds updated",
		"window_ms", cfg.ConcurrentWindowMs,
		"snapshot_retention", cfg.SnapshotRetention,
		"alert_threshold", cfg.HealthAlertThreshold)
}

func (s *Synchronizer) publish(events ...event.Event) {
	if s.bus == nil {
		return
	}
	for _, e := range events {
		s.bus.Publish(e)
	}
}

// refresh replaces the cached read copy. Callers hold s.mu.
func (s *Synchronizer) refresh(state *State) {
	s.cache.Add(state.Context.ConversationID, state.Context.Clone())
}

func (s *Synchronizer) load(conversationID string) (*State, error) {
	state, ok := s.repo.Load(conversationID)
	if !ok {
		return nil, gwerrors.NewNotFoundError("conversation", conversationID)
	}
	return state, nil
}

func normalizeParticipants(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		if p != "" {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Initialize starts a new sync for conversationID, replacing any previous
// one. Every key of initial becomes a version-1 entry written by "system".
// If the initial context cannot be stored the conversation still starts,
// empty, under a fresh sync ID.
func (s *Synchronizer) Initialize(conversationID string, participants []string, initial map[string]any) (string, error) {
	if conversationID == "" {
		err := gwerrors.NewValidationError("conversation id is required").WithField("conversationId")
		s.logger.Failure("initialize rejected", err)
		return "", err
	}

	log := s.logger.WithConversation(conversationID)
	now := s.now()
	state, err := s.buildState(conversationID, participants, initial, now)
	degraded := false
	if err != nil {
		log.Failure("initial context rejected, starting empty", err)
		state, _ = s.buildState(conversationID, participants, nil, now)
		degraded = true
	}

	s.mu.Lock()
	s.repo.Save(state)
	s.refresh(state)
	ctx := state.Context
	evt := event.NewContextSyncInitializedEvent(conversationID, ctx.SyncID,
		slices.Clone(ctx.Participants), len(ctx.Entries), degraded)
	s.mu.Unlock()

	log.Info("conversation sync initialized",
		"sync_id", ctx.SyncID, "entries", evt.EntryCount, "participants", len(evt.Participants), "degraded", degraded)
	s.publish(evt)
	return evt.SyncID, nil
}

func (s *Synchronizer) buildState(conversationID string, participants []string, initial map[string]any, now time.Time) (*State, error) {
	entries := make(map[string]ContextEntry, len(initial))
	for key, v := range initial {
		if key == "" {
			return nil, gwerrors.NewSyncError("empty context key", gwerrors.ErrInvalidInput).WithConversation(conversationID)
		}
		raw, err := payload.Canonicalize(v)
		if err != nil {
			return nil, gwerrors.NewSyncError("encode initial value", gwerrors.Join(gwerrors.ErrUnencodableValue, err)).
				WithConversation(conversationID).WithKey(key)
		}
		entries[key] = ContextEntry{
			Key:            key,
			Value:          raw,
			Version:        1,
			Timestamp:      now,
			LastModifiedBy: SystemAgent,
			Checksum:       payload.Checksum(raw),
		}
	}

	ctx := &ConversationContext{
		ConversationID: conversationID,
		SyncID:         s.newID(),
		Entries:        entries,
		Version:        1,
		Participants:   normalizeParticipants(participants),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return &State{
		Context: ctx,
		Versions: []ContextVersion{{
			ID:             s.newID(),
			ConversationID: conversationID,
			Version:        ctx.Version,
			Snapshot:       cloneEntries(entries),
			CreatedAt:      now,
			CreatedBy:      SystemAgent,
			Description:    InitialSnapshotDescription,
		}},
		Metrics: SyncMetrics{DataConsistencyScore: 100},
	}, nil
}

// Update writes value under key on behalf of agentID and returns the
// operation ID. The write is either applied immediately or, if it
// conflicts with the stored entry, queued; use Operation to tell which.
func (s *Synchronizer) Update(conversationID, agentID, key string, value any, opts UpdateOptions) (string, error) {
	log := s.logger.WithConversation(conversationID).With("agent_id", agentID, "key", key)

	if key == "" {
		err := gwerrors.NewValidationError("context key is required").WithField("key")
		log.Failure("update rejected", err)
		return "", err
	}
	raw, err := payload.Canonicalize(value)
	if err != nil {
		verr := gwerrors.NewValidationError("context value cannot be encoded").WithField("value").
			WithCause(gwerrors.Join(gwerrors.ErrUnencodableValue, err))
		log.Failure("update rejected", verr)
		return "", verr
	}

	s.mu.Lock()
	state, err := s.load(conversationID)
	if err != nil {
		s.mu.Unlock()
		log.Failure("update rejected", err)
		return "", err
	}
	if !state.Context.IsParticipant(agentID) {
		s.mu.Unlock()
		verr := gwerrors.NewValidationError("agent is not a participant").
			WithField("agentId").WithValue(agentID).WithCause(gwerrors.ErrNotParticipant)
		log.Failure("update rejected", verr)
		return "", verr
	}

	now := s.now()
	opID := s.newID()
	existing, has := state.Context.Entries[key]

	if has && opts.MergeStrategy != "" {
		merged, err := payload.Apply(opts.MergeStrategy, existing.Value, raw)
		if err != nil {
			s.mu.Unlock()
			serr := gwerrors.NewSyncError("merge values", err).WithConversation(conversationID).WithKey(key)
			log.Failure("update failed", serr)
			return "", serr
		}
		raw = merged
	}

	proposed := ContextEntry{
		Key:            key,
		Value:          raw,
		Version:        1,
		Timestamp:      now,
		LastModifiedBy: agentID,
		Checksum:       payload.Checksum(raw),
		Metadata: EntryMetadata{
			MergeStrategy:    opts.MergeStrategy,
			Priority:         opts.Priority,
			RequireConsensus: opts.RequireConsensus,
			OperationID:      opID,
		},
	}
	var existingVersion *conflict.Version
	if has {
		proposed.Version = existing.Version + 1
		proposed.Metadata.PreviousValue = payload.Clone(existing.Value)
		v := existing.conflictVersion()
		existingVersion = &v
	}

	op := SyncOperation{
		ID:             opID,
		ConversationID: conversationID,
		AgentID:        agentID,
		Type:           OperationUpdate,
		Key:            key,
		After:          payload.Clone(raw),
		Timestamp:      now,
		Proposed:       proposed,
	}
	if has {
		op.Before = payload.Clone(existing.Value)
	}

	conflicts := s.detector.Detect(conversationID, existingVersion, proposed.conflictVersion())
	state.Metrics.TotalOperations++

	var evt event.Event
	if len(conflicts) == 0 {
		s.install(state, proposed, now)
		op.Applied = true
		state.Metrics.AppliedOperations++
		s.record(state, op)
		evt = event.NewContextUpdatedEvent(conversationID, opID, agentID, key, proposed.Version, state.Context.Version)
	} else {
		op.Conflicts = conflicts
		state.Pending = append(state.Pending, op)
		state.Conflicts = append(state.Conflicts, conflicts...)
		state.Metrics.QueuedOperations++
		state.Metrics.ConflictsDetected += len(conflicts)
		ids := make([]string, len(conflicts))
		types := make([]string, len(conflicts))
		for i, c := range conflicts {
			ids[i] = c.ID
			types[i] = string(c.Type)
		}
		evt = event.NewConflictDetectedEvent(conversationID, opID, key, ids, types, string(conflict.HighestSeverity(conflicts)))
	}
	updateConsistency(state)
	s.repo.Save(state)
	s.refresh(state)
	version := state.Context.Version
	s.mu.Unlock()

	if op.Applied {
		log.Debug("context updated", "operation_id", opID, "entry_version", proposed.Version, "context_version", version)
	} else {
		log.Warn("update queued on conflict", "operation_id", opID, "conflicts", len(conflicts),
			"severity", string(conflict.HighestSeverity(conflicts)))
	}
	s.publish(evt)
	return opID, nil
}

// install stores entry and bumps the conversation version. Callers hold s.mu.
func (s *Synchronizer) install(state *State, entry ContextEntry, now time.Time) {
	state.Context.Entries[entry.Key] = entry
	state.Context.Version++
	state.Context.UpdatedAt = now
}

// record appends op to the bounded operation history. Callers hold s.mu.
func (s *Synchronizer) record(state *State, op SyncOperation) {
	state.History = append(state.History, op)
	if over := len(state.History) - historyLimit; over > 0 {
		state.History = slices.Delete(state.History, 0, over)
	}
}

// Operation returns a recent or pending operation by ID.
func (s *Synchronizer) Operation(conversationID, operationID string) (SyncOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load(conversationID)
	if err != nil {
		return SyncOperation{}, err
	}
	for _, op := range state.Pending {
		if op.ID == operationID {
			return op.Clone(), nil
		}
	}
	for i := len(state.History) - 1; i >= 0; i-- {
		if state.History[i].ID == operationID {
			return state.History[i].Clone(), nil
		}
	}
	return SyncOperation{}, gwerrors.NewNotFoundError("operation", operationID)
}

// Snapshot returns a copy of the conversation's current state, served from
// the read cache when possible.
func (s *Synchronizer) Snapshot(conversationID string) (*ConversationContext, bool) {
	if cached, ok := s.cache.Get(conversationID); ok {
		return cached.Clone(), true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.repo.Load(conversationID)
	if !ok {
		return nil, false
	}
	s.refresh(state)
	return state.Context.Clone(), true
}

// Entry returns a copy of one entry.
func (s *Synchronizer) Entry(conversationID, key string) (ContextEntry, bool) {
	snap, ok := s.Snapshot(conversationID)
	if !ok {
		return ContextEntry{}, false
	}
	e, ok := snap.Entries[key]
	return e, ok
}

// PendingOperations returns the queued operations in arrival order.
func (s *Synchronizer) PendingOperations(conversationID string) ([]SyncOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load(conversationID)
	if err != nil {
		return nil, err
	}
	out := make([]SyncOperation, len(state.Pending))
	for i, op := range state.Pending {
		out[i] = op.Clone()
	}
	return out, nil
}

// ActiveConflicts returns the unresolved conflicts in detection order.
func (s *Synchronizer) ActiveConflicts(conversationID string) ([]conflict.Conflict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load(conversationID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(state.Conflicts), nil
}

// AddParticipant lets agentID read and write the conversation.
func (s *Synchronizer) AddParticipant(conversationID, agentID string) error {
	if agentID == "" {
		return gwerrors.NewValidationError("agent id is required").WithField("agentId")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load(conversationID)
	if err != nil {
		return err
	}
	if state.Context.addParticipant(agentID) {
		s.repo.Save(state)
		s.refresh(state)
	}
	return nil
}

// RemoveParticipant revokes agentID's access to the conversation.
func (s *Synchronizer) RemoveParticipant(conversationID, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, err := s.load(conversationID)
	if err != nil {
		return err
	}
	if !state.Context.removeParticipant(agentID) {
		return gwerrors.NewNotFoundError("participant", agentID)
	}
	s.repo.Save(state)
	s.refresh(state)
	return nil
}

// Conversations returns the known conversation IDs in sorted order.
func (s *Synchronizer) Conversations() []string {
	return s.repo.List()
}

// Forget drops a conversation and everything recorded for it.
func (s *Synchronizer) Forget(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Remove(conversationID)
	return s.repo.Delete(conversationID)
}

// Shutdown stops maintenance and discards every conversation.
func (s *Synchronizer) Shutdown() {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repo.Clear()
	s.cache.Purge()
	s.logger.Info("synchronizer shut down")
}
