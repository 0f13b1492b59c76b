package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/config"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/logging"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	Long: `Start the gateway as an MCP server speaking JSON-RPC over stdin/stdout.
MCP clients launch this command themselves; it is not meant to be run in
a terminal. Logs go to stderr unless logging.dir is set.

The config file is watched while serving. Threshold and timeout changes
take effect without a restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveNoWatch bool

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveNoWatch, "no-watch", false, "Do not reload the config file on change")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintln(os.Stderr, "mcp-gateway serve expects an MCP client on stdin; add it to your client's MCP config instead of running it directly.")
	}

	logger, err := logging.NewLogger(cfg.Logging.Dir, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Close() }()

	gw, err := server.NewGateway(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}
	defer gw.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := gw.Start(ctx); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	if !serveNoWatch && viper.ConfigFileUsed() != "" {
		config.Watch(gw.Coordinator.ApplyConfig, func(e fsnotify.Event, err error) {
			logger.Failure("config reload rejected", err, "file", e.Name)
		})
		logger.Info("watching config", "file", viper.ConfigFileUsed())
	}

	logger.Info("serving MCP on stdio", "name", cfg.Server.Name, "version", server.Version)
	return mcpserver.ServeStdio(gw.MCP)
}
