package coordination

import (
	"cmp"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	gwerrors "github.com/LucidWonk/environment-mcp-gateway-sub002/internal/errors"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/event"
)

// Status is the lifecycle state of a cross-session operation.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusTimeout    Status = "timeout"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTimeout
}

// TimeoutKey is the payload key that carries an operation timeout, either
// milliseconds as a number or a duration string such as "90s".
const TimeoutKey = "timeout"

// Operation is a long-running action that spans sessions.
type Operation struct {
	ID                  string         `json:"operationId"`
	Type                string         `json:"operationType"`
	InitiatingSessionID string         `json:"initiatingSessionId"`
	AffectedSessions    []string       `json:"affectedSessions"`
	Status              Status         `json:"status"`
	Payload             map[string]any `json:"payload,omitempty"`
	Result              map[string]any `json:"result,omitempty"`
	FailureReason       string         `json:"failureReason,omitempty"`
	Timeout             time.Duration  `json:"timeout,omitempty"`
	TimeoutDeadline     time.Time      `json:"timeoutDeadline,omitzero"`
	CreatedAt           time.Time      `json:"createdAt"`
	UpdatedAt           time.Time      `json:"updatedAt"`
}

func (o Operation) clone() Operation {
	o.AffectedSessions = slices.Clone(o.AffectedSessions)
	o.Payload = maps.Clone(o.Payload)
	o.Result = maps.Clone(o.Result)
	return o
}

// Involves reports whether a session initiated or is affected by o.
func (o Operation) Involves(sessionID string) bool {
	return slices.Contains(o.AffectedSessions, sessionID)
}

type operationRecord struct {
	op    Operation
	timer *time.Timer
}

func (r *operationRecord) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// parseTimeout reads TimeoutKey from a payload. It returns zero when the
// key is absent.
func parseTimeout(payload map[string]any) (time.Duration, error) {
	raw, ok := payload[TimeoutKey]
	if !ok || raw == nil {
		return 0, nil
	}
	var d time.Duration
	switch v := raw.(type) {
	case int:
		d = time.Duration(v) * time.Millisecond
	case int64:
		d = time.Duration(v) * time.Millisecond
	case float64:
		d = time.Duration(v * float64(time.Millisecond))
	case json.Number:
		ms, err := v.Float64()
		if err != nil {
			return 0, invalidTimeout(raw, err)
		}
		d = time.Duration(ms * float64(time.Millisecond))
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return 0, invalidTimeout(raw, err)
		}
		d = parsed
	default:
		return 0, invalidTimeout(raw, fmt.Errorf("unsupported type %T", raw))
	}
	if d < 0 {
		return 0, invalidTimeout(raw, fmt.Errorf("negative timeout"))
	}
	return d, nil
}

func invalidTimeout(value any, cause error) error {
	return gwerrors.NewValidationError("invalid operation timeout").
		WithField(TimeoutKey).
		WithValue(value).
		WithCause(cause)
}

// InitiateOperation creates a pending operation and returns its ID,
// op-{type}-{suffix}. The affected sessions are the initiator plus
// affected. A timeout in the payload, or the configured default, schedules
// a transition to timeout.
func (c *Coordinator) InitiateOperation(operationType, initiator string, payload map[string]any, affected []string) (string, error) {
	if operationType == "" {
		err := gwerrors.NewValidationError("operation type is required").WithField("operationType")
		c.logger.Failure("operation rejected", err)
		return "", err
	}
	if err := c.requireSession("initiatingSessionId", initiator); err != nil {
		c.logger.Failure("operation rejected", err, "operation_type", operationType)
		return "", err
	}
	timeout, err := parseTimeout(payload)
	if err != nil {
		c.logger.Failure("operation rejected", err, "operation_type", operationType)
		return "", err
	}
	if timeout == 0 {
		timeout = time.Duration(c.defaultTimeout.Load())
	}

	sessions := []string{initiator}
	for _, s := range affected {
		if s != "" {
			sessions = append(sessions, s)
		}
	}
	slices.Sort(sessions)
	sessions = slices.Compact(sessions)

	now := c.now()
	op := Operation{
		ID:                  fmt.Sprintf("op-%s-%s", operationType, c.newSuffix()),
		Type:                operationType,
		InitiatingSessionID: initiator,
		AffectedSessions:    sessions,
		Status:              StatusPending,
		Payload:             maps.Clone(payload),
		Timeout:             timeout,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if timeout > 0 {
		op.TimeoutDeadline = now.Add(timeout)
	}

	rec := &operationRecord{op: op}
	c.mu.Lock()
	c.operations[op.ID] = rec
	if timeout > 0 {
		id := op.ID
		rec.timer = time.AfterFunc(timeout, func() { c.expire(id) })
	}
	c.mu.Unlock()

	c.bus.Publish(event.NewOperationInitiatedEvent(op.ID, operationType, initiator, slices.Clone(sessions), timeout))
	c.logger.WithOperation(op.ID).Info("operation initiated",
		"operation_type", operationType, "session_id", initiator, "affected", len(sessions))
	return op.ID, nil
}

// expire moves an operation to timeout unless it already finished.
func (c *Coordinator) expire(operationID string) {
	c.mu.Lock()
	rec, ok := c.operations[operationID]
	if !ok || rec.op.Status.Terminal() {
		c.mu.Unlock()
		return
	}
	rec.op.Status = StatusTimeout
	rec.op.UpdatedAt = c.now()
	rec.timer = nil
	timeout := rec.op.Timeout
	c.mu.Unlock()

	c.bus.Publish(event.NewOperationTimeoutEvent(operationID, timeout))
	c.logger.WithOperation(operationID).Failure("operation timed out", gwerrors.NewTimeoutError(operationID, timeout))
}

// transition applies fn to a non-terminal operation under the lock.
func (c *Coordinator) transition(operationID string, fn func(*operationRecord)) (Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.operations[operationID]
	if !ok {
		return Operation{}, gwerrors.NewNotFoundError("operation", operationID)
	}
	if rec.op.Status.Terminal() {
		return rec.op.clone(), gwerrors.NewCoordinatorError("operation already finished", gwerrors.ErrOperationTerminal).
			WithOperation(operationID).
			WithStatus(string(rec.op.Status))
	}
	fn(rec)
	rec.op.UpdatedAt = c.now()
	if rec.op.Status.Terminal() {
		rec.stopTimer()
	}
	return rec.op.clone(), nil
}

// StartOperation moves a pending operation to in-progress. Starting an
// operation that is already in progress is a no-op.
func (c *Coordinator) StartOperation(operationID string) (Operation, error) {
	op, err := c.transition(operationID, func(r *operationRecord) {
		r.op.Status = StatusInProgress
	})
	if err != nil {
		c.logger.Failure("start operation rejected", err, "operation_id", operationID)
		return op, err
	}
	c.logger.WithOperation(operationID).Debug("operation started")
	return op, nil
}

// CompleteOperation finishes an operation with an optional result and
// cancels its timeout.
func (c *Coordinator) CompleteOperation(operationID string, result map[string]any) (Operation, error) {
	op, err := c.transition(operationID, func(r *operationRecord) {
		r.op.Status = StatusCompleted
		r.op.Result = maps.Clone(result)
	})
	if err != nil {
		c.logger.Failure("complete operation rejected", err, "operation_id", operationID)
		return op, err
	}
	c.bus.Publish(event.NewOperationCompletedEvent(operationID, maps.Clone(result)))
	c.logger.WithOperation(operationID).Info("operation completed")
	return op, nil
}

// FailOperation marks an operation failed and cancels its timeout.
func (c *Coordinator) FailOperation(operationID, reason string) (Operation, error) {
	op, err := c.transition(operationID, func(r *operationRecord) {
		r.op.Status = StatusFailed
		r.op.FailureReason = reason
	})
	if err != nil {
		c.logger.Failure("fail operation rejected", err, "operation_id", operationID)
		return op, err
	}
	c.bus.Publish(event.NewOperationFailedEvent(operationID, reason))
	c.logger.WithOperation(operationID).Warn("operation failed", "reason", reason)
	return op, nil
}

// GetOperation returns a copy of an operation.
func (c *Coordinator) GetOperation(operationID string) (Operation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.operations[operationID]
	if !ok {
		return Operation{}, false
	}
	return rec.op.clone(), true
}

// ListOperations returns the operations a session is involved in, oldest
// first. An empty sessionID lists every operation.
func (c *Coordinator) ListOperations(sessionID string) []Operation {
	c.mu.Lock()
	out := make([]Operation, 0, len(c.operations))
	for _, rec := range c.operations {
		if sessionID == "" || rec.op.Involves(sessionID) {
			out = append(out, rec.op.clone())
		}
	}
	c.mu.Unlock()

	slices.SortFunc(out, func(a, b Operation) int {
		if n := a.CreatedAt.Compare(b.CreatedAt); n != 0 {
			return n
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}
