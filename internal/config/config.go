package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// AppName names the config directory and the environment variable prefix.
const AppName = "mcp-gateway"

// EnvPrefix is prepended to every environment override, e.g.
// MCP_GATEWAY_SYNC_SNAPSHOT_RETENTION.
const EnvPrefix = "MCP_GATEWAY"

// Config represents the complete gateway configuration
type Config struct {
	Sync          SyncConfig          `mapstructure:"sync" yaml:"sync"`
	Coordination  CoordinationConfig  `mapstructure:"coordination" yaml:"coordination"`
	Notifications NotificationsConfig `mapstructure:"notifications" yaml:"notifications"`
	Logging       LoggingConfig       `mapstructure:"logging" yaml:"logging"`
	Server        ServerConfig        `mapstructure:"server" yaml:"server"`
}

// SyncConfig tunes the context synchronizer and its maintenance loop
type SyncConfig struct {
	// ConcurrentWindowMs is how close two writes by different agents must be
	// to count as a concurrent modification (default: 1000)
	ConcurrentWindowMs int `mapstructure:"concurrent_window_ms" yaml:"concurrent_window_ms"`
	// MaintenanceIntervalSeconds is the health check and cleanup period (default: 30)
	MaintenanceIntervalSeconds int `mapstructure:"maintenance_interval_seconds" yaml:"maintenance_interval_seconds"`
	// SnapshotRetention is how many version snapshots are kept per conversation (default: 10)
	SnapshotRetention int `mapstructure:"snapshot_retention" yaml:"snapshot_retention"`
	// ConflictRetentionHours drops active conflicts older than this (default: 24)
	ConflictRetentionHours int `mapstructure:"conflict_retention_hours" yaml:"conflict_retention_hours"`
	// HealthAlertThreshold triggers syncHealthAlert when health falls below it (default: 70)
	HealthAlertThreshold int `mapstructure:"health_alert_threshold" yaml:"health_alert_threshold"`
	// CacheSize is the number of conversation snapshots held in the read cache (default: 256)
	CacheSize int `mapstructure:"cache_size" yaml:"cache_size"`
	// DeliveryConcurrency bounds parallel per-session deliveries during sync (default: 8)
	DeliveryConcurrency int `mapstructure:"delivery_concurrency" yaml:"delivery_concurrency"`
}

// CoordinationConfig tunes the cross-session coordinator
type CoordinationConfig struct {
	// DefaultOperationTimeoutSeconds applies when an operation payload has no
	// timeout. 0 disables the default.
	DefaultOperationTimeoutSeconds int `mapstructure:"default_operation_timeout_seconds" yaml:"default_operation_timeout_seconds"`
}

// NotificationsConfig bounds per-session notification inboxes
type NotificationsConfig struct {
	// MaxPendingPerSession drops the oldest notifications past this count (default: 500)
	MaxPendingPerSession int `mapstructure:"max_pending_per_session" yaml:"max_pending_per_session"`
}

// LoggingConfig controls structured logging
type LoggingConfig struct {
	// Level is one of "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir holds gateway.log. Empty logs to stderr.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// ServerConfig controls the MCP server identity
type ServerConfig struct {
	Name         string `mapstructure:"name" yaml:"name"`
	Instructions string `mapstructure:"instructions" yaml:"instructions"`
}

// DefaultInstructions is sent to MCP clients on initialize.
const DefaultInstructions = "Shared context and coordination for concurrent assistant sessions. " +
	"Register with session_register, read and write shared context with context_* tools, " +
	"coordinate risky work with operation_*, approval_* and resource_* tools, " +
	"and poll notification_pending for messages from other sessions."

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Sync: SyncConfig{
			ConcurrentWindowMs:         1000,
			MaintenanceIntervalSeconds: 30,
			SnapshotRetention:          10,
			ConflictRetentionHours:     24,
			HealthAlertThreshold:       70,
			CacheSize:                  256,
			DeliveryConcurrency:        8,
		},
		Coordination: CoordinationConfig{
			DefaultOperationTimeoutSeconds: 0,
		},
		Notifications: NotificationsConfig{
			MaxPendingPerSession: 500,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "",
		},
		Server: ServerConfig{
			Name:         "environment-mcp-gateway",
			Instructions: DefaultInstructions,
		},
	}
}

// ConcurrentWindow returns the concurrent-modification window as a duration
func (c *SyncConfig) ConcurrentWindow() time.Duration {
	return time.Duration(c.ConcurrentWindowMs) * time.Millisecond
}

// MaintenanceInterval returns the maintenance period as a duration
func (c *SyncConfig) MaintenanceInterval() time.Duration {
	return time.Duration(c.MaintenanceIntervalSeconds) * time.Second
}

// ConflictRetention returns the active-conflict age limit as a duration
func (c *SyncConfig) ConflictRetention() time.Duration {
	return time.Duration(c.ConflictRetentionHours) * time.Hour
}

// DefaultOperationTimeout returns the fallback operation timeout (0 means none)
func (c *CoordinationConfig) DefaultOperationTimeout() time.Duration {
	return time.Duration(c.DefaultOperationTimeoutSeconds) * time.Second
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("sync.concurrent_window_ms", defaults.Sync.ConcurrentWindowMs)
	viper.SetDefault("sync.maintenance_interval_seconds", defaults.Sync.MaintenanceIntervalSeconds)
	viper.SetDefault("sync.snapshot_retention", defaults.Sync.SnapshotRetention)
	viper.SetDefault("sync.conflict_retention_hours", defaults.Sync.ConflictRetentionHours)
	viper.SetDefault("sync.health_alert_threshold", defaults.Sync.HealthAlertThreshold)
	viper.SetDefault("sync.cache_size", defaults.Sync.CacheSize)
	viper.SetDefault("sync.delivery_concurrency", defaults.Sync.DeliveryConcurrency)

	viper.SetDefault("coordination.default_operation_timeout_seconds", defaults.Coordination.DefaultOperationTimeoutSeconds)

	viper.SetDefault("notifications.max_pending_per_session", defaults.Notifications.MaxPendingPerSession)

	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)

	viper.SetDefault("server.name", defaults.Server.Name)
	viper.SetDefault("server.instructions", defaults.Server.Instructions)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// YAML renders the configuration the way it would be written to config.yaml
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
