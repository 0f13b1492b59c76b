package server

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/contextsync"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/coordination"
)

// HealthReport is the gateway_health result.
type HealthReport struct {
	Version       string                       `json:"version"`
	Running       bool                         `json:"running"`
	Coordination  coordination.Metrics         `json:"coordination"`
	Conversations []*contextsync.ContextStatus `json:"conversations"`
	Degraded      []string                     `json:"degraded,omitempty"`
}

// HealthTool handles the gateway_health MCP tool.
type HealthTool struct {
	coord *coordination.Coordinator
}

// NewHealthTool creates a HealthTool.
func NewHealthTool(coord *coordination.Coordinator) *HealthTool {
	return &HealthTool{coord: coord}
}

// Definition returns the MCP tool definition for gateway_health.
func (t *HealthTool) Definition() mcp.Tool {
	return mcp.NewTool("gateway_health",
		mcp.WithDescription(
			"Report gateway health: sessions, operations, locks, approvals, queued "+
				"notifications and the sync health of each conversation.",
		),
		mcp.WithString("conversation_id",
			mcp.Description("Only report this conversation"),
		),
	)
}

// Handle processes the gateway_health tool call.
func (t *HealthTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sync := t.coord.Synchronizer()
	ids := sync.Conversations()
	id := req.GetString("conversation_id", "")
	filtered := id != ""
	if filtered {
		ids = []string{id}
	}

	report := HealthReport{
		Version:      Version,
		Running:      t.coord.Running(),
		Coordination: t.coord.Metrics(),
	}
	if err := report.addConversations(ids, filtered, sync.Status); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(report)
}

// addConversations appends the status of each conversation. A conversation
// that disappears after being listed is skipped; one requested by id must
// exist.
func (r *HealthReport) addConversations(ids []string, filtered bool, status func(string) *contextsync.ContextStatus) error {
	r.Conversations = make([]*contextsync.ContextStatus, 0, len(ids))
	for _, id := range ids {
		st := status(id)
		if st == nil {
			if filtered {
				return fmt.Errorf("conversation %q not found", id)
			}
			continue
		}
		r.Conversations = append(r.Conversations, st)
		if st.Health.Status != contextsync.HealthHealthy {
			r.Degraded = append(r.Degraded, id)
		}
	}
	return nil
}
