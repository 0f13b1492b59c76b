// Package cmd implements the mcp-gateway command line.
package cmd

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "mcp-gateway",
	Short: "Shared context and coordination for concurrent assistant sessions",
	Long: `mcp-gateway is an MCP server that lets several assistant sessions work
on the same project at once. Sessions share conversation context with
conflict detection, coordinate risky operations through approvals and
resource locks, and exchange notifications.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/mcp-gateway/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix(config.EnvPrefix)
	// Replace dots with underscores for nested keys in env vars
	// e.g., MCP_GATEWAY_SYNC_SNAPSHOT_RETENTION for sync.snapshot_retention
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
