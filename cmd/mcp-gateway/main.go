// mcp-gateway: shared context and coordination MCP server
//
// Usage:
//
//	mcp-gateway serve         # Start MCP server (stdio transport)
//	mcp-gateway config show   # Print the effective configuration
//	mcp-gateway logs -f       # Follow the gateway log file
package main

import (
	"os"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
