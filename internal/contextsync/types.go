package contextsync

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/conflict"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/payload"
)

// SystemAgent is the writer recorded for entries seeded at initialization.
const SystemAgent = "system"

// InitialSnapshotDescription labels the snapshot taken by Initialize.
const InitialSnapshotDescription = "Initial context state"

// Priority is advisory metadata carried on an update.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// UpdateOptions tunes a single write.
type UpdateOptions struct {
	MergeStrategy    payload.Strategy `json:"mergeStrategy,omitempty"`
	Priority         Priority         `json:"priority,omitempty"`
	RequireConsensus bool             `json:"requireConsensus,omitempty"`
}

// EntryMetadata records how an entry came to hold its value.
type EntryMetadata struct {
	MergeStrategy    payload.Strategy `json:"mergeStrategy,omitempty"`
	Priority         Priority         `json:"priority,omitempty"`
	RequireConsensus bool             `json:"requireConsensus,omitempty"`
	PreviousValue    json.RawMessage  `json:"previousValue,omitempty"`
	OperationID      string           `json:"operationId,omitempty"`
	Resolution       string           `json:"resolution,omitempty"`
}

// Resolution values recorded on entries installed by conflict handling.
const (
	ResolutionAutoMerge = "auto-merge"
	ResolutionManual    = "manual"
)

// ContextEntry is one keyed value. Entries are immutable once stored.
type ContextEntry struct {
	Key            string          `json:"key"`
	Value          json.RawMessage `json:"value,omitempty"`
	Version        int             `json:"version"`
	Timestamp      time.Time       `json:"timestamp"`
	LastModifiedBy string          `json:"lastModifiedBy"`
	Checksum       string          `json:"checksum"`
	Metadata       EntryMetadata   `json:"metadata"`
}

// Clone returns a deep copy of the entry.
func (e ContextEntry) Clone() ContextEntry {
	e.Value = payload.Clone(e.Value)
	e.Metadata.PreviousValue = payload.Clone(e.Metadata.PreviousValue)
	return e
}

// Decode unmarshals the entry value into plain Go values.
func (e ContextEntry) Decode() (any, error) {
	return payload.Decode(e.Value)
}

func (e ContextEntry) conflictVersion() conflict.Version {
	return conflict.Version{
		Key:        e.Key,
		Value:      e.Value,
		Version:    e.Version,
		Timestamp:  e.Timestamp,
		ModifiedBy: e.LastModifiedBy,
		Checksum:   e.Checksum,
	}
}

func cloneEntries(in map[string]ContextEntry) map[string]ContextEntry {
	out := make(map[string]ContextEntry, len(in))
	for k, e := range in {
		out[k] = e.Clone()
	}
	return out
}

// ConversationContext is the shared state of one conversation.
type ConversationContext struct {
	ConversationID string                  `json:"conversationId"`
	SyncID         string                  `json:"syncId"`
	Entries        map[string]ContextEntry `json:"entries"`
	Version        int                     `json:"version"`
	Participants   []string                `json:"participants"`
	CreatedAt      time.Time               `json:"createdAt"`
	UpdatedAt      time.Time               `json:"updatedAt"`
}

// Clone returns a deep copy of the context.
func (c *ConversationContext) Clone() *ConversationContext {
	out := *c
	out.Entries = cloneEntries(c.Entries)
	out.Participants = slices.Clone(c.Participants)
	return &out
}

// IsParticipant reports whether agentID may write to the conversation.
func (c *ConversationContext) IsParticipant(agentID string) bool {
	_, found := slices.BinarySearch(c.Participants, agentID)
	return found
}

func (c *ConversationContext) addParticipant(agentID string) bool {
	i, found := slices.BinarySearch(c.Participants, agentID)
	if found {
		return false
	}
	c.Participants = slices.Insert(c.Participants, i, agentID)
	return true
}

func (c *ConversationContext) removeParticipant(agentID string) bool {
	i, found := slices.BinarySearch(c.Participants, agentID)
	if !found {
		return false
	}
	c.Participants = slices.Delete(c.Participants, i, i+1)
	return true
}

// Keys returns the entry keys in sorted order.
func (c *ConversationContext) Keys() []string {
	keys := make([]string, 0, len(c.Entries))
	for k := range c.Entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// OperationType distinguishes writes from rollbacks in the operation log.
type OperationType string

const (
	OperationUpdate   OperationType = "update"
	OperationRollback OperationType = "rollback"
)

// SyncOperation records one write attempt. Applied is false while the
// operation waits in the pending queue.
type SyncOperation struct {
	ID             string              `json:"operationId"`
	ConversationID string              `json:"conversationId"`
	AgentID        string              `json:"agentId"`
	Type           OperationType       `json:"operationType"`
	Key            string              `json:"contextKey,omitempty"`
	Before         json.RawMessage     `json:"beforeValue,omitempty"`
	After          json.RawMessage     `json:"afterValue,omitempty"`
	Timestamp      time.Time           `json:"timestamp"`
	Applied        bool                `json:"applied"`
	Conflicts      []conflict.Conflict `json:"conflicts,omitempty"`
	Proposed       ContextEntry        `json:"-"`
}

// Clone returns a deep copy of the operation.
func (o SyncOperation) Clone() SyncOperation {
	o.Before = payload.Clone(o.Before)
	o.After = payload.Clone(o.After)
	o.Conflicts = slices.Clone(o.Conflicts)
	o.Proposed = o.Proposed.Clone()
	return o
}

// ContextVersion is a point-in-time copy of a conversation's entries.
type ContextVersion struct {
	ID             string                  `json:"versionId"`
	ConversationID string                  `json:"conversationId"`
	Version        int                     `json:"version"`
	Snapshot       map[string]ContextEntry `json:"snapshot"`
	CreatedAt      time.Time               `json:"createdAt"`
	CreatedBy      string                  `json:"createdBy"`
	Description    string                  `json:"description"`
}

// Clone returns a deep copy of the version.
func (v ContextVersion) Clone() ContextVersion {
	v.Snapshot = cloneEntries(v.Snapshot)
	return v
}

// SyncMetrics accumulates per-conversation counters.
type SyncMetrics struct {
	TotalOperations      int           `json:"totalOperations"`
	AppliedOperations    int           `json:"appliedOperations"`
	QueuedOperations     int           `json:"queuedOperations"`
	ConflictsDetected    int           `json:"conflictsDetected"`
	ConflictsResolved    int           `json:"conflictsResolved"`
	SyncCount            int           `json:"syncCount"`
	SuccessfulDeliveries int           `json:"successfulDeliveries"`
	FailedDeliveries     int           `json:"failedDeliveries"`
	LastSyncAt           time.Time     `json:"lastSyncAt,omitzero"`
	AverageSyncDuration  time.Duration `json:"averageSyncDuration"`
	DataConsistencyScore int           `json:"dataConsistencyScore"`
}

// HealthStatus labels a health score.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthCritical HealthStatus = "critical"
)

// SyncHealth is the advisory health of a conversation.
type SyncHealth struct {
	Score  int          `json:"score"`
	Status HealthStatus `json:"status"`
	Issues []string     `json:"issues,omitempty"`
}

// ContextStatus is the read-only aggregate returned by Status.
type ContextStatus struct {
	ConversationID    string      `json:"conversationId"`
	SyncID            string      `json:"syncId"`
	Version           int         `json:"version"`
	EntryCount        int         `json:"entryCount"`
	ParticipantCount  int         `json:"participantCount"`
	PendingOperations int         `json:"pendingOperations"`
	ActiveConflicts   int         `json:"activeConflicts"`
	AvailableVersions int         `json:"availableVersions"`
	Metrics           SyncMetrics `json:"metrics"`
	Health            SyncHealth  `json:"health"`
	LastUpdated       time.Time   `json:"lastUpdated"`
}

// SyncReport summarizes one Sync call.
type SyncReport struct {
	ConversationID     string            `json:"conversationId"`
	AppliedOperations  []string          `json:"appliedOperations"`
	ResolvedConflicts  int               `json:"resolvedConflicts"`
	RemainingConflicts int               `json:"remainingConflicts"`
	SyncedSessions     []string          `json:"syncedSessions"`
	FailedSessions     map[string]string `json:"failedSessions,omitempty"`
	Duration           time.Duration     `json:"duration"`
}
