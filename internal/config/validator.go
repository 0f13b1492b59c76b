package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "sync.snapshot_retention")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, c.validateSync()...)
	errs = append(errs, c.validateCoordination()...)
	errs = append(errs, c.validateNotifications()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateServer()...)
	return errs
}

func positive(field string, value int) []ValidationError {
	if value > 0 {
		return nil
	}
	return []ValidationError{{Field: field, Value: value, Message: "must be positive"}}
}

func (c *Config) validateSync() []ValidationError {
	var errs []ValidationError
	errs = append(errs, positive("sync.concurrent_window_ms", c.Sync.ConcurrentWindowMs)...)
	errs = append(errs, positive("sync.maintenance_interval_seconds", c.Sync.MaintenanceIntervalSeconds)...)
	errs = append(errs, positive("sync.snapshot_retention", c.Sync.SnapshotRetention)...)
	errs = append(errs, positive("sync.conflict_retention_hours", c.Sync.ConflictRetentionHours)...)
	errs = append(errs, positive("sync.cache_size", c.Sync.CacheSize)...)
	errs = append(errs, positive("sync.delivery_concurrency", c.Sync.DeliveryConcurrency)...)

	if c.Sync.HealthAlertThreshold < 0 || c.Sync.HealthAlertThreshold > 100 {
		errs = append(errs, ValidationError{
			Field:   "sync.health_alert_threshold",
			Value:   c.Sync.HealthAlertThreshold,
			Message: "must be between 0 and 100",
		})
	}
	return errs
}

func (c *Config) validateCoordination() []ValidationError {
	if c.Coordination.DefaultOperationTimeoutSeconds < 0 {
		return []ValidationError{{
			Field:   "coordination.default_operation_timeout_seconds",
			Value:   c.Coordination.DefaultOperationTimeoutSeconds,
			Message: "must be non-negative",
		}}
	}
	return nil
}

func (c *Config) validateNotifications() []ValidationError {
	return positive("notifications.max_pending_per_session", c.Notifications.MaxPendingPerSession)
}

func (c *Config) validateLogging() []ValidationError {
	level := strings.ToLower(c.Logging.Level)
	if level != "" && !slices.Contains(ValidLogLevels(), level) {
		return []ValidationError{{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		}}
	}
	return nil
}

func (c *Config) validateServer() []ValidationError {
	if strings.TrimSpace(c.Server.Name) == "" {
		return []ValidationError{{
			Field:   "server.name",
			Value:   c.Server.Name,
			Message: "must not be empty",
		}}
	}
	return nil
}
