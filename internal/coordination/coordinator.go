package coordination

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lithammer/shortuuid/v4"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/approval"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/config"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/contextsync"
	gwerrors "github.com/LucidWonk/environment-mcp-gateway-sub002/internal/errors"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/event"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/logging"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/mailbox"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/resourcelock"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/session"
)

// Config holds required dependencies for creating a Coordinator.
type Config struct {
	Bus *event.Bus

	// Synchronizer is optional. When nil the Coordinator builds one on Bus.
	Synchronizer *contextsync.Synchronizer
}

// Coordinator composes sessions, operations, approvals, locks,
// notifications and shared context for one gateway process.
type Coordinator struct {
	mu         sync.Mutex
	operations map[string]*operationRecord

	lifeMu  sync.Mutex
	started bool

	defaultTimeout atomic.Int64

	bus          *event.Bus
	logger       *logging.Logger
	now          func() time.Time
	newSuffix    func() string
	orchestrator UpdateOrchestrator
	workflow     approval.WorkflowManager

	// Components
	sessions *session.Registry
	locks    *resourcelock.Registry
	mb       *mailbox.Mailbox
	gate     *approval.Gate
	sync     *contextsync.Synchronizer
}

// New creates a Coordinator and the components it owns.
func New(cfg Config, opts ...Option) (*Coordinator, error) {
	if cfg.Bus == nil {
		return nil, errors.New("coordination: Bus is required")
	}

	cc := &coordinatorConfig{}
	for _, opt := range opts {
		opt(cc)
	}
	if cc.logger == nil {
		cc.logger = logging.NopLogger()
	}
	if cc.now == nil {
		cc.now = time.Now
	}
	if cc.newSuffix == nil {
		cc.newSuffix = shortuuid.New
	}

	synchronizer := cfg.Synchronizer
	if synchronizer == nil {
		var err error
		synchronizer, err = contextsync.New(
			contextsync.WithBus(cfg.Bus),
			contextsync.WithLogger(cc.logger),
			contextsync.WithClock(cc.now),
		)
		if err != nil {
			return nil, gwerrors.Wrap(err, "coordination: create synchronizer")
		}
	}

	mbOpts := []mailbox.Option{
		mailbox.WithBus(cfg.Bus),
		mailbox.WithLogger(cc.logger),
		mailbox.WithClock(cc.now),
		mailbox.WithMaxPending(cc.maxPending),
	}
	if cc.deliverer != nil {
		mbOpts = append(mbOpts, mailbox.WithDeliverer(cc.deliverer))
	}

	c := &Coordinator{
		operations:   make(map[string]*operationRecord),
		bus:          cfg.Bus,
		logger:       cc.logger.WithComponent("coordination"),
		now:          cc.now,
		newSuffix:    cc.newSuffix,
		orchestrator: cc.orchestrator,
		workflow:     cc.workflowManager,
		sessions:     session.NewRegistry(session.WithClock(cc.now)),
		locks:        resourcelock.NewRegistry(resourcelock.WithBus(cfg.Bus), resourcelock.WithClock(cc.now)),
		mb:           mailbox.New(mbOpts...),
		gate: approval.NewGate(
			approval.WithBus(cfg.Bus),
			approval.WithLogger(cc.logger),
			approval.WithClock(cc.now),
		),
		sync: synchronizer,
	}
	c.defaultTimeout.Store(int64(cc.defaultTimeout))
	return c, nil
}

// Synchronizer returns the shared context synchronizer.
func (c *Coordinator) Synchronizer() *contextsync.Synchronizer { return c.sync }

// Sessions returns the session registry.
func (c *Coordinator) Sessions() *session.Registry { return c.sessions }

// Locks returns the resource lock registry.
func (c *Coordinator) Locks() *resourcelock.Registry { return c.locks }

// Mailbox returns the notification mailbox.
func (c *Coordinator) Mailbox() *mailbox.Mailbox { return c.mb }

// Gate returns the approval gate.
func (c *Coordinator) Gate() *approval.Gate { return c.gate }

// ApplyConfig re-tunes the running components from a reloaded configuration.
func (c *Coordinator) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	c.sync.ApplyConfig(cfg.Sync)
	c.defaultTimeout.Store(int64(cfg.Coordination.DefaultOperationTimeout()))
	c.logger.Info("configuration applied",
		"default_operation_timeout", cfg.Coordination.DefaultOperationTimeout().String())
}

// Start begins the synchronizer's maintenance loop.
// Returns an error if the coordinator is already started.
func (c *Coordinator) Start(ctx context.Context) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if c.started {
		return errors.New("coordination: coordinator already started")
	}
	c.sync.Start(ctx)
	c.started = true
	return nil
}

// Stop stops the maintenance loop. It is idempotent. State is kept.
func (c *Coordinator) Stop() {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if !c.started {
		return
	}
	c.sync.Stop()
	c.started = false
}

// Running returns whether the coordinator is currently started.
func (c *Coordinator) Running() bool {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()
	return c.started
}

// Shutdown stops the coordinator and clears every session, operation,
// lock, approval, notification and conversation. It is a hard reset, not
// a drain, and publishes no events.
func (c *Coordinator) Shutdown() {
	c.Stop()

	c.mu.Lock()
	for _, rec := range c.operations {
		rec.stopTimer()
	}
	clear(c.operations)
	c.mu.Unlock()

	c.sessions.Clear()
	c.locks.Clear()
	c.gate.Clear()
	c.mb.Clear()
	c.sync.Shutdown()
	c.logger.Info("coordinator shut down")
}

// RegisterSession adds a session. Registering a known session succeeds
// without side effects.
func (c *Coordinator) RegisterSession(sessionID string) (bool, error) {
	_, err := c.registerSession(sessionID, "", "")
	if err != nil {
		return false, err
	}
	return true, nil
}

// Connect registers a new session with a generated ID and its transport
// details.
func (c *Coordinator) Connect(userAgent, remoteAddress string) (session.Info, error) {
	return c.registerSession(c.sessions.GenerateID(), userAgent, remoteAddress)
}

func (c *Coordinator) registerSession(sessionID, userAgent, remoteAddress string) (session.Info, error) {
	if sessionID == "" {
		err := gwerrors.NewValidationError("session id is required").WithField("sessionId")
		c.logger.Failure("session registration rejected", err)
		return session.Info{}, err
	}

	// Serialize registration so the event is published exactly once.
	c.mu.Lock()
	if info, ok := c.sessions.Get(sessionID); ok {
		c.mu.Unlock()
		c.sessions.Touch(sessionID)
		return info, nil
	}
	info, err := c.sessions.Add(sessionID, userAgent, remoteAddress)
	c.mu.Unlock()
	if err != nil {
		return session.Info{}, err
	}

	c.bus.Publish(event.NewSessionRegisteredEvent(sessionID))
	c.logger.WithSession(sessionID).Info("session registered")
	return info, nil
}

// UnregisterSession removes a session, releases every lock it holds and
// drops its notification inbox. Unknown sessions return a NotFoundError.
func (c *Coordinator) UnregisterSession(sessionID string) (bool, error) {
	if err := c.sessions.Remove(sessionID); err != nil {
		c.logger.Failure("session unregistration rejected", err, "session_id", sessionID)
		return false, err
	}

	released := c.locks.ReleaseAll(sessionID)
	dropped := c.mb.DropSession(sessionID)

	c.bus.Publish(event.NewSessionUnregisteredEvent(sessionID, len(released), dropped))
	c.logger.WithSession(sessionID).Info("session unregistered",
		"released_resources", len(released), "dropped_notifications", dropped)
	return true, nil
}

// GetRegisteredSessions returns the registered session IDs, sorted.
func (c *Coordinator) GetRegisteredSessions() []string {
	return c.sessions.IDs()
}

// IsRegistered reports whether a session is registered.
func (c *Coordinator) IsRegistered(sessionID string) bool {
	return c.sessions.Has(sessionID)
}

// requireSession returns a ValidationError when sessionID is not registered.
func (c *Coordinator) requireSession(field, sessionID string) error {
	if sessionID != "" && c.sessions.Has(sessionID) {
		return nil
	}
	return gwerrors.NewValidationError("session is not registered").
		WithField(field).
		WithValue(sessionID).
		WithCause(gwerrors.ErrSessionNotRegistered)
}

// Metrics summarizes the coordinator for health reporting.
type Metrics struct {
	RegisteredSessions   int            `json:"registeredSessions"`
	ActiveSessions       int            `json:"activeSessions"`
	Operations           map[Status]int `json:"operations"`
	HeldResources        int            `json:"heldResources"`
	PendingApprovals     int            `json:"pendingApprovals"`
	PendingNotifications int            `json:"pendingNotifications"`
	Conversations        int            `json:"conversations"`
}

// Metrics returns a point-in-time summary.
func (c *Coordinator) Metrics() Metrics {
	sm := c.sessions.Metrics()
	m := Metrics{
		RegisteredSessions:   sm.TotalSessions,
		ActiveSessions:       sm.ActiveSessions,
		Operations:           make(map[Status]int),
		HeldResources:        c.locks.Count(),
		PendingApprovals:     c.gate.Count(),
		PendingNotifications: c.mb.TotalPending(),
		Conversations:        len(c.sync.Conversations()),
	}

	c.mu.Lock()
	for _, rec := range c.operations {
		m.Operations[rec.op.Status]++
	}
	c.mu.Unlock()
	return m
}
