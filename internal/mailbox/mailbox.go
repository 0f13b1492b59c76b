package mailbox

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/sourcegraph/conc/pool"

	gwerrors "github.com/LucidWonk/environment-mcp-gateway-sub002/internal/errors"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/event"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/logging"
)

const defaultConcurrency = 8

// Mailbox keeps one inbox per session.
type Mailbox struct {
	mu          sync.Mutex
	inboxes     map[string][]Notification
	bus         *event.Bus
	deliverer   Deliverer
	logger      *logging.Logger
	maxPending  int
	concurrency int
	now         func() time.Time
	newID       func() string
}

// New creates an empty Mailbox.
func New(opts ...Option) *Mailbox {
	m := &Mailbox{
		inboxes:     make(map[string][]Notification),
		logger:      logging.NopLogger(),
		maxPending:  DefaultMaxPending,
		concurrency: defaultConcurrency,
		now:         time.Now,
		newID:       func() string { return "notif-" + shortuuid.New() },
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithComponent("mailbox")
	return m
}

// Send stamps n with a fresh ID and timestamp and queues it for every
// target. Targets are deduplicated. A failed push is recorded in the
// report; it never fails the send.
func (m *Mailbox) Send(ctx context.Context, targets []string, n Notification) (DeliveryReport, error) {
	if err := validate(targets, &n); err != nil {
		m.logger.Failure("notification rejected", err)
		return DeliveryReport{}, err
	}
	n.ID = m.newID()
	n.Timestamp = m.now()
	targets = slices.Compact(slices.Sorted(slices.Values(targets)))

	m.mu.Lock()
	dropped := 0
	for _, target := range targets {
		dropped += m.enqueueLocked(target, n.clone())
	}
	m.mu.Unlock()

	if dropped > 0 {
		m.logger.Warn("inbox full, oldest notifications dropped", "dropped", dropped, "max_pending", m.maxPending)
	}
	for _, target := range targets {
		m.publish(event.NewSessionNotificationEvent(target, n.ID, n.Type, n.Message, n.Data,
			string(n.Severity), n.RequiresAcknowledgment, n.From, n.Timestamp))
	}

	report := DeliveryReport{NotificationID: n.ID, Queued: targets}
	if m.deliverer != nil {
		m.push(ctx, targets, n, &report)
	}
	m.logger.Debug("notification sent", "notification_id", n.ID, "type", n.Type, "targets", len(targets))
	return report, nil
}

func validate(targets []string, n *Notification) error {
	if len(targets) == 0 {
		return gwerrors.NewValidationError("at least one target session is required").WithField("targets")
	}
	if slices.Contains(targets, "") {
		return gwerrors.NewValidationError("target session id is empty").WithField("targets")
	}
	if n.Message == "" {
		return gwerrors.NewValidationError("notification message is required").WithField("message")
	}
	if n.Type == "" {
		n.Type = "info"
	}
	if n.Severity == "" {
		n.Severity = SeverityInfo
	}
	if !n.Severity.Valid() {
		return gwerrors.NewValidationError("unknown severity").WithField("severity").WithValue(n.Severity)
	}
	return nil
}

// enqueueLocked appends n to the target inbox and returns how many old
// notifications were dropped to respect the cap.
func (m *Mailbox) enqueueLocked(target string, n Notification) int {
	inbox := append(m.inboxes[target], n)
	over := len(inbox) - m.maxPending
	if over > 0 {
		inbox = slices.Delete(inbox, 0, over)
	} else {
		over = 0
	}
	m.inboxes[target] = inbox
	return over
}

type pushResult struct {
	SessionID string
	Err       error
}

func (m *Mailbox) push(ctx context.Context, targets []string, n Notification, report *DeliveryReport) {
	p := pool.NewWithResults[pushResult]().WithMaxGoroutines(m.concurrency)
	for _, target := range targets {
		p.Go(func() pushResult {
			return pushResult{SessionID: target, Err: m.pushOne(ctx, target, n.clone())}
		})
	}
	for _, r := range p.Wait() {
		if r.Err == nil {
			report.Pushed = append(report.Pushed, r.SessionID)
			continue
		}
		if report.Failed == nil {
			report.Failed = make(map[string]string)
		}
		report.Failed[r.SessionID] = r.Err.Error()
		m.logger.Failure("notification push failed", r.Err, "session_id", r.SessionID, "notification_id", n.ID)
	}
	slices.Sort(report.Pushed)
}

func (m *Mailbox) pushOne(ctx context.Context, sessionID string, n Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = gwerrors.NewDeliveryError(sessionID, fmt.Errorf("panic: %v", r))
		}
	}()
	if err := ctx.Err(); err != nil {
		return gwerrors.NewDeliveryError(sessionID, gwerrors.Join(gwerrors.ErrCanceled, err))
	}
	if err := m.deliverer.Deliver(ctx, sessionID, n); err != nil {
		return gwerrors.NewDeliveryError(sessionID, err)
	}
	return nil
}

// Pending returns every notification in the session's inbox, oldest first.
// Notifications that do not require acknowledgment are removed by the read.
func (m *Mailbox) Pending(sessionID string) []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()

	inbox := m.inboxes[sessionID]
	out := make([]Notification, len(inbox))
	var keep []Notification
	for i, n := range inbox {
		out[i] = n.clone()
		if n.RequiresAcknowledgment {
			keep = append(keep, n)
		}
	}
	if len(keep) == 0 {
		delete(m.inboxes, sessionID)
	} else {
		m.inboxes[sessionID] = keep
	}
	return out
}

// Peek returns the notifications matching opts without removing any.
func (m *Mailbox) Peek(sessionID string, opts FilterOptions) []Notification {
	m.mu.Lock()
	inbox := make([]Notification, len(m.inboxes[sessionID]))
	for i, n := range m.inboxes[sessionID] {
		inbox[i] = n.clone()
	}
	m.mu.Unlock()
	return Filter(inbox, opts)
}

// Acknowledge removes an acknowledgment-required notification from the
// session's inbox. It reports false when no such notification is pending.
func (m *Mailbox) Acknowledge(notificationID, sessionID string) bool {
	m.mu.Lock()
	inbox := m.inboxes[sessionID]
	i := slices.IndexFunc(inbox, func(n Notification) bool {
		return n.ID == notificationID && n.RequiresAcknowledgment
	})
	if i < 0 {
		m.mu.Unlock()
		return false
	}
	inbox = slices.Delete(inbox, i, i+1)
	if len(inbox) == 0 {
		delete(m.inboxes, sessionID)
	} else {
		m.inboxes[sessionID] = inbox
	}
	m.mu.Unlock()

	m.publish(event.NewNotificationAcknowledgedEvent(notificationID, sessionID))
	return true
}

// PendingCount returns the size of one inbox.
func (m *Mailbox) PendingCount(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inboxes[sessionID])
}

// TotalPending returns the number of queued notifications across inboxes.
func (m *Mailbox) TotalPending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, inbox := range m.inboxes {
		total += len(inbox)
	}
	return total
}

// DropSession discards a session's inbox and returns how many
// notifications it held.
func (m *Mailbox) DropSession(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.inboxes[sessionID])
	delete(m.inboxes, sessionID)
	return n
}

// Clear discards every inbox.
func (m *Mailbox) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inboxes = make(map[string][]Notification)
}

func (m *Mailbox) publish(e event.Event) {
	if m.bus != nil {
		m.bus.Publish(e)
	}
}
