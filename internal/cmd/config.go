package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify gateway configuration",
	Long: `View or modify gateway configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  mcp-gateway config set sync.snapshot_retention 20
  mcp-gateway config set logging.level debug

Valid keys:
  sync.concurrent_window_ms                 - Window for concurrent-write detection
  sync.maintenance_interval_seconds         - Health check and cleanup period
  sync.snapshot_retention                   - Snapshots kept per conversation
  sync.conflict_retention_hours             - Age after which open conflicts are dropped
  sync.health_alert_threshold               - Health score (0-100) that raises an alert
  sync.cache_size                           - Conversation snapshots kept for reads
  sync.delivery_concurrency                 - Parallel deliveries per sync
  coordination.default_operation_timeout_seconds - Timeout for operations without one (0 = none)
  notifications.max_pending_per_session     - Inbox size before the oldest are dropped
  logging.level                             - debug, info, warn or error
  logging.dir                               - Directory for gateway.log (empty = stderr)
  server.name                               - Name reported to MCP clients`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/mcp-gateway/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

var configInitForce bool

// configKeys maps every settable key to its value kind.
var configKeys = map[string]string{
	"sync.concurrent_window_ms":                      "int",
	"sync.maintenance_interval_seconds":              "int",
	"sync.snapshot_retention":                        "int",
	"sync.conflict_retention_hours":                  "int",
	"sync.health_alert_threshold":                    "int",
	"sync.cache_size":                                "int",
	"sync.delivery_concurrency":                      "int",
	"coordination.default_operation_timeout_seconds": "int",
	"notifications.max_pending_per_session":          "int",
	"logging.level":                                  "string",
	"logging.dir":                                    "string",
	"server.name":                                    "string",
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)

	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "Overwrite an existing config file")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Show where config is being read from
	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# Config file: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	data, err := cfg.YAML()
	if err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	_, err = out.Write(data)
	return err
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	value := args[1]

	kind, ok := configKeys[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s\nRun 'mcp-gateway config set --help' to see valid keys", key)
	}

	var typed any = value
	if kind == "int" {
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for %s: expected integer", key)
		}
		typed = n
	}

	viper.Set(key, typed)
	if _, err := config.Load(); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	// Ensure config directory exists
	if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := viper.ConfigFileUsed()
	if configFile == "" {
		configFile = config.ConfigFile()
	}
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v in %s\n", key, typed, configFile)
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configFile := config.ConfigFile()
	if _, err := os.Stat(configFile); err == nil && !configInitForce {
		return fmt.Errorf("config file already exists at %s (use --force to overwrite)", configFile)
	}

	if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := config.Default().YAML()
	if err != nil {
		return fmt.Errorf("failed to render default configuration: %w", err)
	}
	header := []byte("# mcp-gateway configuration\n# Environment overrides: " + config.EnvPrefix + "_<SECTION>_<KEY>\n\n")
	if err := os.WriteFile(configFile, append(header, data...), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", configFile)
	fmt.Fprintln(out, "  2. ./config.yaml (current directory)")
	fmt.Fprintf(out, "\nEnvironment variables: %s_* (e.g., %s_SYNC_SNAPSHOT_RETENTION)\n", config.EnvPrefix, config.EnvPrefix)
	return nil
}
