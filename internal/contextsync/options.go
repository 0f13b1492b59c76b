package contextsync

import (
	"time"

	"github.com/google/uuid"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/conflict"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/event"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/logging"
)

// Defaults used when no option overrides them.
const (
	DefaultSnapshotRetention    = 10
	DefaultConflictRetention    = 24 * time.Hour
	DefaultHealthAlertThreshold = 70
	DefaultMaintenanceInterval  = 30 * time.Second
	DefaultCacheSize            = 256
	DefaultDeliveryConcurrency  = 8
	historyLimit                = 256
)

type syncConfig struct {
	repo                Repository
	detector            *conflict.Detector
	resolver            conflict.Resolver
	syncer              AgentSyncer
	bus                 *event.Bus
	logger              *logging.Logger
	now                 func() time.Time
	newID               func() string
	snapshotRetention   int
	conflictRetention   time.Duration
	alertThreshold      int
	maintenanceInterval time.Duration
	cacheSize           int
	deliveryConcurrency int
}

func defaultSyncConfig() syncConfig {
	return syncConfig{
		resolver:            conflict.MergeResolver{},
		now:                 time.Now,
		newID:               uuid.NewString,
		snapshotRetention:   DefaultSnapshotRetention,
		conflictRetention:   DefaultConflictRetention,
		alertThreshold:      DefaultHealthAlertThreshold,
		maintenanceInterval: DefaultMaintenanceInterval,
		cacheSize:           DefaultCacheSize,
		deliveryConcurrency: DefaultDeliveryConcurrency,
	}
}

// Option configures a Synchronizer.
type Option func(*syncConfig)

// WithRepository replaces the in-memory repository.
func WithRepository(r Repository) Option {
	return func(c *syncConfig) { c.repo = r }
}

// WithDetector replaces the conflict detector.
func WithDetector(d *conflict.Detector) Option {
	return func(c *syncConfig) { c.detector = d }
}

// WithResolver replaces the resolver used by Sync for auto-merge conflicts.
func WithResolver(r conflict.Resolver) Option {
	return func(c *syncConfig) {
		if r != nil {
			c.resolver = r
		}
	}
}

// WithAgentSyncer sets the per-session delivery primitive used by Sync and
// Handoff. Without one, delivery always succeeds.
func WithAgentSyncer(s AgentSyncer) Option {
	return func(c *syncConfig) { c.syncer = s }
}

// WithBus sets the event bus lifecycle events are published to.
func WithBus(b *event.Bus) Option {
	return func(c *syncConfig) { c.bus = b }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *syncConfig) { c.logger = l }
}

// WithClock sets the time source for timestamps and conflict windows.
func WithClock(now func() time.Time) Option {
	return func(c *syncConfig) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator replaces the generator for sync, operation and version IDs.
func WithIDGenerator(gen func() string) Option {
	return func(c *syncConfig) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// WithSnapshotRetention sets how many snapshots maintenance keeps.
func WithSnapshotRetention(n int) Option {
	return func(c *syncConfig) {
		if n > 0 {
			c.snapshotRetention = n
		}
	}
}

// WithConflictRetention sets the age after which maintenance drops conflicts.
func WithConflictRetention(d time.Duration) Option {
	return func(c *syncConfig) {
		if d > 0 {
			c.conflictRetention = d
		}
	}
}

// WithHealthAlertThreshold sets the score below which syncHealthAlert fires.
func WithHealthAlertThreshold(score int) Option {
	return func(c *syncConfig) { c.alertThreshold = score }
}

// WithMaintenanceInterval sets the maintenance ticker period.
func WithMaintenanceInterval(d time.Duration) Option {
	return func(c *syncConfig) {
		if d > 0 {
			c.maintenanceInterval = d
		}
	}
}

// WithCacheSize sets the number of conversation snapshots kept for reads.
func WithCacheSize(n int) Option {
	return func(c *syncConfig) {
		if n > 0 {
			c.cacheSize = n
		}
	}
}

// WithDeliveryConcurrency bounds parallel deliveries in Sync.
func WithDeliveryConcurrency(n int) Option {
	return func(c *syncConfig) {
		if n > 0 {
			c.deliveryConcurrency = n
		}
	}
}
