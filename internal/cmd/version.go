package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/server"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the gateway version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "mcp-gateway %s\n", server.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
