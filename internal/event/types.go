package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns the wire name of the event, e.g. "contextUpdated".
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// Context lifecycle event types.
const (
	TypeContextSyncInitialized = "contextSyncInitialized"
	TypeContextUpdated         = "contextUpdated"
	TypeContextSynced          = "contextSynced"
	TypeContextRolledBack      = "contextRolledBack"
	TypeConflictDetected       = "conflictDetected"
	TypeConflictResolved       = "conflictResolved"
	TypeSyncHealthAlert        = "syncHealthAlert"
	TypeContextHandedOff       = "contextHandedOff"
)

// Coordination event types.
const (
	TypeSessionRegistered        = "session_registered"
	TypeSessionUnregistered      = "session_unregistered"
	TypeOperationInitiated       = "operation_initiated"
	TypeApprovalRequested        = "approval_requested"
	TypeApprovalProcessed        = "approval_processed"
	TypeOperationCompleted       = "operation_completed"
	TypeOperationFailed          = "operation_failed"
	TypeOperationTimeout         = "operation_timeout"
	TypeResourceAcquired         = "resource_acquired"
	TypeResourceReleased         = "resource_released"
	TypeSessionNotification      = "session_notification"
	TypeNotificationAcknowledged = "notification_acknowledged"
)

// -----------------------------------------------------------------------------
// Context Lifecycle Events
// -----------------------------------------------------------------------------

// ContextSyncInitializedEvent is emitted when a conversation gets a new sync.
// Degraded is set when initialization failed and an empty context was
// installed instead.
type ContextSyncInitializedEvent struct {
	baseEvent
	ConversationID string
	SyncID         string
	Participants   []string
	EntryCount     int
	Degraded       bool
}

// NewContextSyncInitializedEvent creates a ContextSyncInitializedEvent.
func NewContextSyncInitializedEvent(conversationID, syncID string, participants []string, entryCount int, degraded bool) ContextSyncInitializedEvent {
	return ContextSyncInitializedEvent{
		baseEvent:      newBaseEvent(TypeContextSyncInitialized),
		ConversationID: conversationID,
		SyncID:         syncID,
		Participants:   participants,
		EntryCount:     entryCount,
		Degraded:       degraded,
	}
}

// ContextUpdatedEvent is emitted when a write is applied to a context entry,
// either immediately or later by a sync.
type ContextUpdatedEvent struct {
	baseEvent
	ConversationID string
	OperationID    string
	AgentID        string
	Key            string
	EntryVersion   int
	ContextVersion int
}

// NewContextUpdatedEvent creates a ContextUpdatedEvent.
func NewContextUpdatedEvent(conversationID, operationID, agentID, key string, entryVersion, contextVersion int) ContextUpdatedEvent {
	return ContextUpdatedEvent{
		baseEvent:      newBaseEvent(TypeContextUpdated),
		ConversationID: conversationID,
		OperationID:    operationID,
		AgentID:        agentID,
		Key:            key,
		EntryVersion:   entryVersion,
		ContextVersion: contextVersion,
	}
}

// ConflictDetectedEvent is emitted at warning level when a write is queued
// because it conflicts with the current entry.
type ConflictDetectedEvent struct {
	baseEvent
	ConversationID string
	OperationID    string
	Key            string
	ConflictIDs    []string
	ConflictTypes  []string
	Severity       string
}

// NewConflictDetectedEvent creates a ConflictDetectedEvent. severity is the
// highest severity among the detected conflicts.
func NewConflictDetectedEvent(conversationID, operationID, key string, conflictIDs, conflictTypes []string, severity string) ConflictDetectedEvent {
	return ConflictDetectedEvent{
		baseEvent:      newBaseEvent(TypeConflictDetected),
		ConversationID: conversationID,
		OperationID:    operationID,
		Key:            key,
		ConflictIDs:    conflictIDs,
		ConflictTypes:  conflictTypes,
		Severity:       severity,
	}
}

// ConflictResolvedEvent is emitted when a conflict is resolved manually.
type ConflictResolvedEvent struct {
	baseEvent
	ConversationID string
	ConflictID     string
	Key            string
	ResolvedBy     string
}

// NewConflictResolvedEvent creates a ConflictResolvedEvent.
func NewConflictResolvedEvent(conversationID, conflictID, key, resolvedBy string) ConflictResolvedEvent {
	return ConflictResolvedEvent{
		baseEvent:      newBaseEvent(TypeConflictResolved),
		ConversationID: conversationID,
		ConflictID:     conflictID,
		Key:            key,
		ResolvedBy:     resolvedBy,
	}
}

// ContextSyncedEvent summarizes a sync pass.
type ContextSyncedEvent struct {
	baseEvent
	ConversationID     string
	SyncedSessions     int
	FailedSessions     int
	ResolvedConflicts  int
	RemainingConflicts int
	FailedSessionIDs   []string
}

// NewContextSyncedEvent creates a ContextSyncedEvent.
func NewContextSyncedEvent(conversationID string, synced, failed, resolved, remaining int, failedIDs []string) ContextSyncedEvent {
	return ContextSyncedEvent{
		baseEvent:          newBaseEvent(TypeContextSynced),
		ConversationID:     conversationID,
		SyncedSessions:     synced,
		FailedSessions:     failed,
		ResolvedConflicts:  resolved,
		RemainingConflicts: remaining,
		FailedSessionIDs:   failedIDs,
	}
}

// ContextRolledBackEvent is emitted after a rollback replaced the entries.
type ContextRolledBackEvent struct {
	baseEvent
	ConversationID    string
	VersionID         string
	Version           int
	ClearedOperations int
	ClearedConflicts  int
}

// NewContextRolledBackEvent creates a ContextRolledBackEvent.
func NewContextRolledBackEvent(conversationID, versionID string, version, clearedOps, clearedConflicts int) ContextRolledBackEvent {
	return ContextRolledBackEvent{
		baseEvent:         newBaseEvent(TypeContextRolledBack),
		ConversationID:    conversationID,
		VersionID:         versionID,
		Version:           version,
		ClearedOperations: clearedOps,
		ClearedConflicts:  clearedConflicts,
	}
}

// SyncHealthAlertEvent is emitted by maintenance when a conversation's
// health score falls below the alert threshold.
type SyncHealthAlertEvent struct {
	baseEvent
	ConversationID string
	Score          int
	Status         string
	Issues         []string
}

// NewSyncHealthAlertEvent creates a SyncHealthAlertEvent.
func NewSyncHealthAlertEvent(conversationID string, score int, status string, issues []string) SyncHealthAlertEvent {
	return SyncHealthAlertEvent{
		baseEvent:      newBaseEvent(TypeSyncHealthAlert),
		ConversationID: conversationID,
		Score:          score,
		Status:         status,
		Issues:         issues,
	}
}

// ContextHandedOffEvent is emitted when context is transferred between agents.
type ContextHandedOffEvent struct {
	baseEvent
	ConversationID string
	FromAgent      string
	ToAgent        string
	Scope          string
	EntryCount     int
	Delivered      bool
}

// NewContextHandedOffEvent creates a ContextHandedOffEvent.
func NewContextHandedOffEvent(conversationID, from, to, scope string, entryCount int, delivered bool) ContextHandedOffEvent {
	return ContextHandedOffEvent{
		baseEvent:      newBaseEvent(TypeContextHandedOff),
		ConversationID: conversationID,
		FromAgent:      from,
		ToAgent:        to,
		Scope:          scope,
		EntryCount:     entryCount,
		Delivered:      delivered,
	}
}

// -----------------------------------------------------------------------------
// Coordination Events
// -----------------------------------------------------------------------------

// SessionRegisteredEvent is emitted the first time a session registers.
type SessionRegisteredEvent struct {
	baseEvent
	SessionID string
}

// NewSessionRegisteredEvent creates a SessionRegisteredEvent.
func NewSessionRegisteredEvent(sessionID string) SessionRegisteredEvent {
	return SessionRegisteredEvent{
		baseEvent: newBaseEvent(TypeSessionRegistered),
		SessionID: sessionID,
	}
}

// SessionUnregisteredEvent is emitted when a session leaves, with the
// number of locks and notifications cleaned up on its behalf.
type SessionUnregisteredEvent struct {
	baseEvent
	SessionID            string
	ReleasedResources    int
	DroppedNotifications int
}

// NewSessionUnregisteredEvent creates a SessionUnregisteredEvent.
func NewSessionUnregisteredEvent(sessionID string, released, dropped int) SessionUnregisteredEvent {
	return SessionUnregisteredEvent{
		baseEvent:            newBaseEvent(TypeSessionUnregistered),
		SessionID:            sessionID,
		ReleasedResources:    released,
		DroppedNotifications: dropped,
	}
}

// OperationInitiatedEvent is emitted when a cross-session operation starts.
type OperationInitiatedEvent struct {
	baseEvent
	OperationID         string
	OperationType       string
	InitiatingSessionID string
	AffectedSessions    []string
	Timeout             time.Duration
}

// NewOperationInitiatedEvent creates an OperationInitiatedEvent.
func NewOperationInitiatedEvent(operationID, operationType, initiator string, affected []string, timeout time.Duration) OperationInitiatedEvent {
	return OperationInitiatedEvent{
		baseEvent:           newBaseEvent(TypeOperationInitiated),
		OperationID:         operationID,
		OperationType:       operationType,
		InitiatingSessionID: initiator,
		AffectedSessions:    affected,
		Timeout:             timeout,
	}
}

// ApprovalRequestedEvent is emitted when an approval gate is opened.
type ApprovalRequestedEvent struct {
	baseEvent
	ApprovalID          string
	OperationID         string
	RequestingSessionID string
	Message             string
	Metadata            map[string]any
}

// NewApprovalRequestedEvent creates an ApprovalRequestedEvent.
func NewApprovalRequestedEvent(approvalID, operationID, requester, message string, metadata map[string]any) ApprovalRequestedEvent {
	return ApprovalRequestedEvent{
		baseEvent:           newBaseEvent(TypeApprovalRequested),
		ApprovalID:          approvalID,
		OperationID:         operationID,
		RequestingSessionID: requester,
		Message:             message,
		Metadata:            metadata,
	}
}

// ApprovalProcessedEvent is emitted when an approval receives its response.
type ApprovalProcessedEvent struct {
	baseEvent
	ApprovalID          string
	OperationID         string
	RespondingSessionID string
	Approved            bool
	Reason              string
}

// NewApprovalProcessedEvent creates an ApprovalProcessedEvent.
func NewApprovalProcessedEvent(approvalID, operationID, responder string, approved bool, reason string) ApprovalProcessedEvent {
	return ApprovalProcessedEvent{
		baseEvent:           newBaseEvent(TypeApprovalProcessed),
		ApprovalID:          approvalID,
		OperationID:         operationID,
		RespondingSessionID: responder,
		Approved:            approved,
		Reason:              reason,
	}
}

// OperationCompletedEvent is emitted when an operation completes.
type OperationCompletedEvent struct {
	baseEvent
	OperationID string
	Result      map[string]any
}

// NewOperationCompletedEvent creates an OperationCompletedEvent.
func NewOperationCompletedEvent(operationID string, result map[string]any) OperationCompletedEvent {
	return OperationCompletedEvent{
		baseEvent:   newBaseEvent(TypeOperationCompleted),
		OperationID: operationID,
		Result:      result,
	}
}

// OperationFailedEvent is emitted when an operation fails, including
// rejection by an approver.
type OperationFailedEvent struct {
	baseEvent
	OperationID string
	Reason      string
}

// NewOperationFailedEvent creates an OperationFailedEvent.
func NewOperationFailedEvent(operationID, reason string) OperationFailedEvent {
	return OperationFailedEvent{
		baseEvent:   newBaseEvent(TypeOperationFailed),
		OperationID: operationID,
		Reason:      reason,
	}
}

// OperationTimeoutEvent is emitted when an operation's deadline passes
// before it reached a terminal state.
type OperationTimeoutEvent struct {
	baseEvent
	OperationID string
	Timeout     time.Duration
}

// NewOperationTimeoutEvent creates an OperationTimeoutEvent.
func NewOperationTimeoutEvent(operationID string, timeout time.Duration) OperationTimeoutEvent {
	return OperationTimeoutEvent{
		baseEvent:   newBaseEvent(TypeOperationTimeout),
		OperationID: operationID,
		Timeout:     timeout,
	}
}

// ResourceAcquiredEvent is emitted when a lock is granted.
type ResourceAcquiredEvent struct {
	baseEvent
	ResourceID string
	SessionID  string
	LockType   string
}

// NewResourceAcquiredEvent creates a ResourceAcquiredEvent.
func NewResourceAcquiredEvent(resourceID, sessionID, lockType string) ResourceAcquiredEvent {
	return ResourceAcquiredEvent{
		baseEvent:  newBaseEvent(TypeResourceAcquired),
		ResourceID: resourceID,
		SessionID:  sessionID,
		LockType:   lockType,
	}
}

// ResourceReleasedEvent is emitted when a session gives up a lock.
type ResourceReleasedEvent struct {
	baseEvent
	ResourceID string
	SessionID  string
}

// NewResourceReleasedEvent creates a ResourceReleasedEvent.
func NewResourceReleasedEvent(resourceID, sessionID string) ResourceReleasedEvent {
	return ResourceReleasedEvent{
		baseEvent:  newBaseEvent(TypeResourceReleased),
		ResourceID: resourceID,
		SessionID:  sessionID,
	}
}

// SessionNotificationEvent carries one fully formed notification addressed
// to one session. A broadcast to N sessions yields N of these.
type SessionNotificationEvent struct {
	baseEvent
	TargetSessionID        string
	NotificationID         string
	NotificationType       string
	Message                string
	Data                   map[string]any
	Severity               string
	RequiresAcknowledgment bool
	From                   string
	SentAt                 time.Time
}

// NewSessionNotificationEvent creates a SessionNotificationEvent.
func NewSessionNotificationEvent(target, id, notificationType, message string, data map[string]any, severity string, requiresAck bool, from string, sentAt time.Time) SessionNotificationEvent {
	return SessionNotificationEvent{
		baseEvent:              newBaseEvent(TypeSessionNotification),
		TargetSessionID:        target,
		NotificationID:         id,
		NotificationType:       notificationType,
		Message:                message,
		Data:                   data,
		Severity:               severity,
		RequiresAcknowledgment: requiresAck,
		From:                   from,
		SentAt:                 sentAt,
	}
}

// NotificationAcknowledgedEvent is emitted when a session acknowledges a
// notification that required it.
type NotificationAcknowledgedEvent struct {
	baseEvent
	NotificationID string
	SessionID      string
}

// NewNotificationAcknowledgedEvent creates a NotificationAcknowledgedEvent.
func NewNotificationAcknowledgedEvent(notificationID, sessionID string) NotificationAcknowledgedEvent {
	return NotificationAcknowledgedEvent{
		baseEvent:      newBaseEvent(TypeNotificationAcknowledged),
		NotificationID: notificationID,
		SessionID:      sessionID,
	}
}
