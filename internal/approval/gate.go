package approval

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"

	gwerrors "github.com/LucidWonk/environment-mcp-gateway-sub002/internal/errors"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/event"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/logging"
)

// Status is the state of an approval request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Request is a pending approval.
type Request struct {
	ID                  string         `json:"approvalId"`
	OperationID         string         `json:"operationId"`
	RequestingSessionID string         `json:"requestingSessionId"`
	Message             string         `json:"message"`
	Metadata            map[string]any `json:"metadata,omitempty"`
	Status              Status         `json:"status"`
	RequestedAt         time.Time      `json:"requestedAt"`
}

func (r Request) clone() Request {
	r.Metadata = maps.Clone(r.Metadata)
	return r
}

// Response is the outcome of answering a request.
type Response struct {
	ApprovalID          string    `json:"approvalId"`
	OperationID         string    `json:"operationId"`
	RespondingSessionID string    `json:"respondingSessionId"`
	Approved            bool      `json:"approved"`
	Reason              string    `json:"reason,omitempty"`
	Status              Status    `json:"status"`
	RespondedAt         time.Time `json:"respondedAt"`
}

// WorkflowManager is an external approval workflow that is told about every
// new request, for example to page a human or fan out to several reviewers.
type WorkflowManager interface {
	ProcessApprovalRequest(ctx context.Context, req Request) error
}

// WorkflowManagerFunc adapts a function to the WorkflowManager interface.
type WorkflowManagerFunc func(ctx context.Context, req Request) error

// ProcessApprovalRequest calls f.
func (f WorkflowManagerFunc) ProcessApprovalRequest(ctx context.Context, req Request) error {
	return f(ctx, req)
}

// Gate holds approval requests until they are answered.
type Gate struct {
	mu      sync.Mutex
	pending map[string]*Request
	bus     *event.Bus
	logger  *logging.Logger
	now     func() time.Time
	newID   func() string
}

// Option configures a Gate.
type Option func(*Gate)

// WithBus publishes approval_requested and approval_processed events.
func WithBus(bus *event.Bus) Option {
	return func(g *Gate) { g.bus = bus }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *Gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
	}
}

// WithIDGenerator replaces the approval ID generator.
func WithIDGenerator(gen func() string) Option {
	return func(g *Gate) {
		if gen != nil {
			g.newID = gen
		}
	}
}

// NewGate creates an empty Gate.
func NewGate(opts ...Option) *Gate {
	g := &Gate{
		pending: make(map[string]*Request),
		logger:  logging.NopLogger(),
		now:     time.Now,
		newID:   func() string { return "approval-" + shortuuid.New() },
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.WithComponent("approval")
	return g
}

// Request records a pending approval for an operation. The caller is
// responsible for checking that the operation exists.
func (g *Gate) Request(operationID, requester, message string, metadata map[string]any) (Request, error) {
	switch {
	case operationID == "":
		return Request{}, gwerrors.NewValidationError("operation id is required").WithField("operationId")
	case requester == "":
		return Request{}, gwerrors.NewValidationError("requesting session id is required").WithField("requestingSessionId")
	case message == "":
		return Request{}, gwerrors.NewValidationError("approval message is required").WithField("message")
	}

	req := &Request{
		ID:                  g.newID(),
		OperationID:         operationID,
		RequestingSessionID: requester,
		Message:             message,
		Metadata:            maps.Clone(metadata),
		Status:              StatusPending,
		RequestedAt:         g.now(),
	}

	g.mu.Lock()
	g.pending[req.ID] = req
	out := req.clone()
	g.mu.Unlock()

	g.publish(event.NewApprovalRequestedEvent(out.ID, operationID, requester, message, out.Metadata))
	g.logger.WithOperation(operationID).Info("approval requested", "approval_id", out.ID, "session_id", requester)
	return out, nil
}

// Respond answers a pending request and removes it. Unknown or already
// answered IDs return a NotFoundError.
func (g *Gate) Respond(approvalID, responder string, approved bool, reason string) (Response, error) {
	g.mu.Lock()
	req, ok := g.pending[approvalID]
	if !ok {
		g.mu.Unlock()
		return Response{}, gwerrors.NewNotFoundError("approval", approvalID)
	}
	delete(g.pending, approvalID)
	g.mu.Unlock()

	resp := Response{
		ApprovalID:          approvalID,
		OperationID:         req.OperationID,
		RespondingSessionID: responder,
		Approved:            approved,
		Reason:              reason,
		Status:              StatusRejected,
		RespondedAt:         g.now(),
	}
	if approved {
		resp.Status = StatusApproved
	}

	g.publish(event.NewApprovalProcessedEvent(approvalID, req.OperationID, responder, approved, reason))
	g.logger.WithOperation(req.OperationID).Info("approval processed",
		"approval_id", approvalID, "session_id", responder, "approved", approved)
	return resp, nil
}

// Get returns a pending request.
func (g *Gate) Get(approvalID string) (Request, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	req, ok := g.pending[approvalID]
	if !ok {
		return Request{}, false
	}
	return req.clone(), true
}

// Pending returns every pending request, oldest first.
func (g *Gate) Pending() []Request {
	return g.filter(func(*Request) bool { return true })
}

// PendingFor returns the pending requests of one operation, oldest first.
func (g *Gate) PendingFor(operationID string) []Request {
	return g.filter(func(r *Request) bool { return r.OperationID == operationID })
}

func (g *Gate) filter(keep func(*Request) bool) []Request {
	g.mu.Lock()
	out := make([]Request, 0, len(g.pending))
	for _, r := range g.pending {
		if keep(r) {
			out = append(out, r.clone())
		}
	}
	g.mu.Unlock()

	slices.SortFunc(out, func(a, b Request) int {
		if c := a.RequestedAt.Compare(b.RequestedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Count returns the number of pending requests.
func (g *Gate) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// Clear discards every pending request without publishing events.
func (g *Gate) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	clear(g.pending)
}

func (g *Gate) publish(e event.Event) {
	if g.bus != nil {
		g.bus.Publish(e)
	}
}
