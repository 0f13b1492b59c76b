package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NotNil(t, cfg)

	assert.Equal(t, 1000, cfg.Sync.ConcurrentWindowMs)
	assert.Equal(t, 10, cfg.Sync.SnapshotRetention)
	assert.Equal(t, 24, cfg.Sync.ConflictRetentionHours)
	assert.Equal(t, 70, cfg.Sync.HealthAlertThreshold)
	assert.Zero(t, cfg.Coordination.DefaultOperationTimeoutSeconds)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Empty(t, cfg.Validate(), "Default() should validate")
}

func TestDurations(t *testing.T) {
	cfg := Default()

	assert.Equal(t, time.Second, cfg.Sync.ConcurrentWindow())
	assert.Equal(t, 30*time.Second, cfg.Sync.MaintenanceInterval())
	assert.Equal(t, 24*time.Hour, cfg.Sync.ConflictRetention())
	assert.Zero(t, cfg.Coordination.DefaultOperationTimeout())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"zero window", func(c *Config) { c.Sync.ConcurrentWindowMs = 0 }, "sync.concurrent_window_ms"},
		{"negative interval", func(c *Config) { c.Sync.MaintenanceIntervalSeconds = -1 }, "sync.maintenance_interval_seconds"},
		{"zero retention", func(c *Config) { c.Sync.SnapshotRetention = 0 }, "sync.snapshot_retention"},
		{"zero conflict retention", func(c *Config) { c.Sync.ConflictRetentionHours = 0 }, "sync.conflict_retention_hours"},
		{"threshold above 100", func(c *Config) { c.Sync.HealthAlertThreshold = 101 }, "sync.health_alert_threshold"},
		{"zero cache", func(c *Config) { c.Sync.CacheSize = 0 }, "sync.cache_size"},
		{"zero delivery concurrency", func(c *Config) { c.Sync.DeliveryConcurrency = 0 }, "sync.delivery_concurrency"},
		{"negative timeout", func(c *Config) { c.Coordination.DefaultOperationTimeoutSeconds = -5 }, "coordination.default_operation_timeout_seconds"},
		{"zero inbox", func(c *Config) { c.Notifications.MaxPendingPerSession = 0 }, "notifications.max_pending_per_session"},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"blank server name", func(c *Config) { c.Server.Name = "  " }, "server.name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			errs := cfg.Validate()
			require.Len(t, errs, 1, "%v", ValidationErrors(errs))
			assert.Equal(t, tt.field, errs[0].Field)
		})
	}

	t.Run("uppercase level accepted", func(t *testing.T) {
		cfg := Default()
		cfg.Logging.Level = "DEBUG"
		assert.Empty(t, cfg.Validate())
	})
}

func TestValidationErrors_Error(t *testing.T) {
	single := ValidationErrors{{Field: "sync.cache_size", Value: 0, Message: "must be positive"}}
	assert.EqualError(t, single, "sync.cache_size: must be positive (got: 0)")

	multi := ValidationErrors{
		{Field: "a", Value: 1, Message: "bad"},
		{Field: "b", Value: 2, Message: "worse"},
	}
	assert.Regexp(t, `^2 validation errors:`, multi.Error())
	assert.Empty(t, (ValidationErrors{}).Error())
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		assert.Equal(t, filepath.Join("/custom/config", AppName), ConfigDir())
		assert.Equal(t, "/custom/config/mcp-gateway/config.yaml", ConfigFile())
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		t.Setenv("HOME", "/home/tester")
		assert.Equal(t, filepath.Join("/home/tester", ".config", AppName), ConfigDir())
	})
}

func TestGet(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	assert.Equal(t, 10, Get().Sync.SnapshotRetention)

	viper.Set("sync.snapshot_retention", 0)
	assert.Equal(t, 10, Get().Sync.SnapshotRetention, "invalid config should fall back to defaults")
}

func TestLoad_Invalid(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()
	viper.Set("logging.level", "loud")

	_, err := Load()
	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "logging.level", verrs[0].Field)
}

func TestYAML(t *testing.T) {
	out, err := Default().YAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "concurrent_window_ms: 1000")

	var back Config
	require.NoError(t, yaml.Unmarshal(out, &back))
	assert.Equal(t, 70, back.Sync.HealthAlertThreshold)
}

func TestHandleChange(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	var changed *Config
	var failed error
	onChange := func(c *Config) { changed = c }
	onError := func(_ fsnotify.Event, err error) { failed = err }

	viper.Set("sync.health_alert_threshold", 50)
	handleChange(fsnotify.Event{Name: "config.yaml", Op: fsnotify.Write}, onChange, onError)
	require.NotNil(t, changed, "onChange not called with reloaded config")
	assert.Equal(t, 50, changed.Sync.HealthAlertThreshold)

	changed = nil
	handleChange(fsnotify.Event{Name: "config.yaml", Op: fsnotify.Chmod}, onChange, onError)
	assert.Nil(t, changed, "chmod events should be ignored")

	viper.Set("sync.cache_size", -1)
	handleChange(fsnotify.Event{Name: "config.yaml", Op: fsnotify.Write}, onChange, onError)
	assert.Nil(t, changed, "invalid reload must not reach onChange")
	assert.Error(t, failed, "invalid reload should be reported to onError")
}
