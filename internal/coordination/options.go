package coordination

import (
	"time"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/approval"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/logging"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/mailbox"
)

// coordinatorConfig holds optional configuration for a Coordinator.
type coordinatorConfig struct {
	logger          *logging.Logger
	now             func() time.Time
	newSuffix       func() string
	defaultTimeout  time.Duration
	maxPending      int
	deliverer       mailbox.Deliverer
	orchestrator    UpdateOrchestrator
	workflowManager approval.WorkflowManager
}

// Option configures a Coordinator.
type Option func(*coordinatorConfig)

// WithLogger sets the logger shared by every component the Coordinator builds.
func WithLogger(l *logging.Logger) Option {
	return func(c *coordinatorConfig) { c.logger = l }
}

// WithClock sets the time source for operation and session timestamps.
// Timeout timers always run on wall time.
func WithClock(now func() time.Time) Option {
	return func(c *coordinatorConfig) { c.now = now }
}

// WithIDGenerator replaces the generator of the unique suffix in
// operation IDs.
func WithIDGenerator(gen func() string) Option {
	return func(c *coordinatorConfig) { c.newSuffix = gen }
}

// WithDefaultOperationTimeout applies to operations whose payload has no
// timeout. Zero disables it.
func WithDefaultOperationTimeout(d time.Duration) Option {
	return func(c *coordinatorConfig) { c.defaultTimeout = d }
}

// WithMaxPendingNotifications caps every session inbox.
func WithMaxPendingNotifications(n int) Option {
	return func(c *coordinatorConfig) { c.maxPending = n }
}

// WithNotificationDeliverer pushes notifications in addition to queueing them.
func WithNotificationDeliverer(d mailbox.Deliverer) Option {
	return func(c *coordinatorConfig) { c.deliverer = d }
}

// WithUpdateOrchestrator hands CoordinateUpdate to an external orchestrator.
func WithUpdateOrchestrator(o UpdateOrchestrator) Option {
	return func(c *coordinatorConfig) { c.orchestrator = o }
}

// WithApprovalWorkflowManager tells an external workflow about every
// approval request.
func WithApprovalWorkflowManager(m approval.WorkflowManager) Option {
	return func(c *coordinatorConfig) { c.workflowManager = m }
}
