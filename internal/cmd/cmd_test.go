package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/config"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/server"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

// setupTestConfig points the config directory at a temp dir and resets viper.
func setupTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	viper.Reset()
	t.Cleanup(viper.Reset)
	return filepath.Join(dir, config.AppName)
}

func TestRootCommand(t *testing.T) {
	assert.Equal(t, "mcp-gateway", rootCmd.Use)

	var names []string
	for _, cmd := range rootCmd.Commands() {
		names = append(names, cmd.Name())
	}
	assert.Subset(t, names, []string{"serve", "config", "logs", "version"})
}

func TestVersionCommand(t *testing.T) {
	setupTestConfig(t)

	output, err := executeCommand(rootCmd, "version")
	require.NoError(t, err)
	assert.Contains(t, output, server.Version)
}

func TestConfigShow(t *testing.T) {
	setupTestConfig(t)

	output, err := executeCommand(rootCmd, "config", "show")
	require.NoError(t, err)
	for _, want := range []string{"using defaults", "snapshot_retention: 10", "max_pending_per_session: 500"} {
		assert.Contains(t, output, want)
	}
}

func TestConfigShow_EnvOverride(t *testing.T) {
	setupTestConfig(t)
	t.Setenv("MCP_GATEWAY_SYNC_SNAPSHOT_RETENTION", "42")

	output, err := executeCommand(rootCmd, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, output, "snapshot_retention: 42", "env override not applied")
}

func TestConfigInitAndSet(t *testing.T) {
	dir := setupTestConfig(t)
	configFile := filepath.Join(dir, "config.yaml")

	_, err := executeCommand(rootCmd, "config", "init")
	require.NoError(t, err)
	data, err := os.ReadFile(configFile)
	require.NoError(t, err, "config file not written")
	assert.Contains(t, string(data), "delivery_concurrency: 8")

	_, err = executeCommand(rootCmd, "config", "init")
	assert.Error(t, err, "second config init without --force should fail")

	output, err := executeCommand(rootCmd, "config", "set", "sync.snapshot_retention", "25")
	require.NoError(t, err)
	assert.Contains(t, output, "sync.snapshot_retention = 25")
	data, err = os.ReadFile(configFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "snapshot_retention: 25")
}

func TestConfigSet_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		want  string
	}{
		{"unknown key", "sync.nope", "1", "unknown configuration key"},
		{"not an integer", "sync.cache_size", "big", "expected integer"},
		{"fails validation", "sync.health_alert_threshold", "150", "between 0 and 100"},
		{"bad log level", "logging.level", "loud", "must be one of"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setupTestConfig(t)
			_, err := executeCommand(rootCmd, "config", "set", tt.key, tt.value)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestConfigPath(t *testing.T) {
	dir := setupTestConfig(t)

	output, err := executeCommand(rootCmd, "config", "path")
	require.NoError(t, err)
	assert.Contains(t, output, dir)
	assert.Contains(t, output, "MCP_GATEWAY_", "env prefix")
}

func TestPassesFilters(t *testing.T) {
	now := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	entry := &logEntry{
		Time:           now,
		Level:          "WARN",
		Msg:            "context delivery failed",
		Component:      "contextsync",
		ConversationID: "conv-1",
		SessionID:      "s1",
		Extra:          map[string]any{"error": "session not registered"},
	}

	tests := []struct {
		name   string
		filter logFilter
		want   bool
	}{
		{"no filters", logFilter{minLevel: -1}, true},
		{"level below", logFilter{minLevel: levelPriority("ERROR")}, false},
		{"level at", logFilter{minLevel: levelPriority("WARN")}, true},
		{"since after", logFilter{minLevel: -1, since: now.Add(time.Minute)}, false},
		{"since before", logFilter{minLevel: -1, since: now.Add(-time.Minute)}, true},
		{"conversation match", logFilter{minLevel: -1, conversation: "conv-1"}, true},
		{"conversation mismatch", logFilter{minLevel: -1, conversation: "conv-2"}, false},
		{"session mismatch", logFilter{minLevel: -1, session: "s2"}, false},
		{"component match", logFilter{minLevel: -1, component: "contextsync"}, true},
		{"grep message", logFilter{minLevel: -1, grep: regexp.MustCompile("delivery")}, true},
		{"grep extra", logFilter{minLevel: -1, grep: regexp.MustCompile("not registered")}, true},
		{"grep miss", logFilter{minLevel: -1, grep: regexp.MustCompile("timeout")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, passesFilters(entry, tt.filter))
		})
	}
}

func TestDisplayLogs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.log")
	lines := strings.Join([]string{
		`{"time":"2026-01-15T09:00:00Z","level":"INFO","msg":"gateway started","component":"gateway"}`,
		`{"time":"2026-01-15T09:00:01Z","level":"WARN","msg":"conflict detected","component":"contextsync","conversation_id":"conv-1","key":"plan"}`,
		`not json`,
		`{"time":"2026-01-15T09:00:02Z","level":"ERROR","msg":"operation timed out","operation_id":"op-deploy-1"}`,
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	var out bytes.Buffer
	require.NoError(t, displayLogs(&out, path, 0, logFilter{minLevel: levelPriority("WARN")}))
	got := out.String()
	for _, want := range []string{"conflict detected", "conversation_id=conv-1", "key=", "not json", "operation_id=op-deploy-1"} {
		assert.Contains(t, got, want)
	}
	assert.NotContains(t, got, "gateway started", "INFO entry should be filtered")

	out.Reset()
	require.NoError(t, displayLogs(&out, path, 1, logFilter{minLevel: -1}))
	assert.NotContains(t, strings.TrimSpace(out.String()), "\n", "tail 1 printed more than one line")
}
