// Package server exposes the gateway over the Model Context Protocol.
//
// It is the composition root: [NewGateway] builds the event bus, the
// context synchronizer and the coordinator from configuration, and [New]
// registers one MCP tool per core operation. Tool handlers translate
// arguments and render results; no coordination logic lives here.
package server

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/config"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/contextsync"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/coordination"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/event"
	gwerrors "github.com/LucidWonk/environment-mcp-gateway-sub002/internal/errors"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/logging"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/mailbox"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Tool is an MCP tool backed by the gateway core.
type Tool interface {
	Definition() mcp.Tool
	Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// Tools returns every gateway tool bound to coord.
func Tools(coord *coordination.Coordinator) []Tool {
	sync := coord.Synchronizer()
	return []Tool{
		NewSessionRegisterTool(coord),
		NewSessionUnregisterTool(coord),

		NewContextInitTool(sync),
		NewContextUpdateTool(sync),
		NewContextGetTool(sync),
		NewContextSyncTool(sync),
		NewContextStatusTool(sync),
		NewContextSnapshotTool(sync),
		NewContextRollbackTool(sync),
		NewContextResolveConflictTool(sync),
		NewContextHandoffTool(sync),
		NewCoordinateUpdateTool(coord),

		NewOperationInitiateTool(coord),
		NewOperationCompleteTool(coord),
		NewOperationStatusTool(coord),
		NewApprovalRequestTool(coord),
		NewApprovalRespondTool(coord),

		NewResourceAcquireTool(coord),
		NewResourceReleaseTool(coord),

		NewNotificationSendTool(coord),
		NewNotificationBroadcastTool(coord),
		NewNotificationPendingTool(coord),
		NewNotificationAckTool(coord),

		NewHealthTool(coord),
	}
}

// New creates the MCP server with every gateway tool registered.
func New(coord *coordination.Coordinator, cfg config.ServerConfig) *server.MCPServer {
	name := cfg.Name
	if name == "" {
		name = config.Default().Server.Name
	}
	instructions := cfg.Instructions
	if instructions == "" {
		instructions = config.DefaultInstructions
	}

	s := server.NewMCPServer(
		name,
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	for _, tool := range Tools(coord) {
		s.AddTool(tool.Definition(), tool.Handle)
	}
	return s
}

// Gateway owns the core components of one running gateway.
type Gateway struct {
	Bus         *event.Bus
	Coordinator *coordination.Coordinator
	MCP         *server.MCPServer

	logger *logging.Logger
	subID  string
}

// NewGateway wires the event bus, synchronizer and coordinator from cfg.
// Participants are session ids, so sync deliveries become context_sync
// notifications in each participant's inbox.
func NewGateway(cfg *config.Config, logger *logging.Logger) (*Gateway, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	bus := event.NewBus(event.WithLogger(logger))
	subID := bus.SubscribeAll(func(e event.Event) {
		logger.Debug("event published", "event_type", e.EventType())
	})

	// The syncer runs only after New returns, so coord is set by then.
	var coord *coordination.Coordinator
	syncer := contextsync.AgentSyncerFunc(func(ctx context.Context, agentID string, conv *contextsync.ConversationContext) error {
		_, err := coord.SendNotification(ctx, []string{agentID}, mailbox.Notification{
			Type:    "context_sync",
			Message: "shared context synchronized for conversation " + conv.ConversationID,
			Data: map[string]any{
				"conversationId": conv.ConversationID,
				"syncId":         conv.SyncID,
				"version":        conv.Version,
			},
		})
		return err
	})

	sync, err := contextsync.New(
		contextsync.WithBus(bus),
		contextsync.WithLogger(logger),
		contextsync.WithAgentSyncer(syncer),
		contextsync.WithSnapshotRetention(cfg.Sync.SnapshotRetention),
		contextsync.WithConflictRetention(cfg.Sync.ConflictRetention()),
		contextsync.WithHealthAlertThreshold(cfg.Sync.HealthAlertThreshold),
		contextsync.WithMaintenanceInterval(cfg.Sync.MaintenanceInterval()),
		contextsync.WithCacheSize(cfg.Sync.CacheSize),
		contextsync.WithDeliveryConcurrency(cfg.Sync.DeliveryConcurrency),
	)
	if err != nil {
		bus.Unsubscribe(subID)
		return nil, gwerrors.Wrap(err, "create synchronizer")
	}
	sync.ApplyConfig(cfg.Sync)

	coord, err = coordination.New(
		coordination.Config{Bus: bus, Synchronizer: sync},
		coordination.WithLogger(logger),
		coordination.WithDefaultOperationTimeout(cfg.Coordination.DefaultOperationTimeout()),
		coordination.WithMaxPendingNotifications(cfg.Notifications.MaxPendingPerSession),
	)
	if err != nil {
		bus.Unsubscribe(subID)
		return nil, gwerrors.Wrap(err, "create coordinator")
	}

	return &Gateway{
		Bus:         bus,
		Coordinator: coord,
		MCP:         New(coord, cfg.Server),
		logger:      logger.WithComponent("gateway"),
		subID:       subID,
	}, nil
}

// Start begins background maintenance.
func (g *Gateway) Start(ctx context.Context) error {
	if err := g.Coordinator.Start(ctx); err != nil {
		return err
	}
	g.logger.Info("gateway started", "version", Version)
	return nil
}

// Close stops maintenance and releases all in-memory state.
func (g *Gateway) Close() {
	g.Coordinator.Shutdown()
	g.Bus.Unsubscribe(g.subID)
	g.logger.Info("gateway stopped")
}
