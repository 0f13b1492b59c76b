package mailbox

import (
	"context"
	"maps"
	"time"
)

// Severity ranks how urgent a notification is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// Notification is a message addressed to one or more sessions.
type Notification struct {
	ID                     string         `json:"id"`
	Type                   string         `json:"type"`
	Message                string         `json:"message"`
	Data                   map[string]any `json:"data,omitempty"`
	Severity               Severity       `json:"severity"`
	RequiresAcknowledgment bool           `json:"requiresAcknowledgment"`
	Timestamp              time.Time      `json:"timestamp"`
	From                   string         `json:"from,omitempty"`
}

func (n Notification) clone() Notification {
	n.Data = maps.Clone(n.Data)
	return n
}

// Deliverer pushes a notification to one session. Implementations are
// expected to make a network call that may fail per session.
type Deliverer interface {
	Deliver(ctx context.Context, sessionID string, n Notification) error
}

// DelivererFunc adapts a function to the Deliverer interface.
type DelivererFunc func(ctx context.Context, sessionID string, n Notification) error

// Deliver calls f.
func (f DelivererFunc) Deliver(ctx context.Context, sessionID string, n Notification) error {
	return f(ctx, sessionID, n)
}

// DeliveryReport describes the outcome of one send. Every target is queued;
// Pushed and Failed only reflect the optional Deliverer.
type DeliveryReport struct {
	NotificationID string            `json:"notificationId"`
	Queued         []string          `json:"queued"`
	Pushed         []string          `json:"pushed,omitempty"`
	Failed         map[string]string `json:"failed,omitempty"`
}
