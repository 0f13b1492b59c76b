package server

import (
	"context"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/contextsync"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/coordination"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/payload"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/resourcelock"
)

// ResourceAcquireTool handles the resource_acquire MCP tool.
type ResourceAcquireTool struct {
	coord *coordination.Coordinator
}

// NewResourceAcquireTool creates a ResourceAcquireTool.
func NewResourceAcquireTool(coord *coordination.Coordinator) *ResourceAcquireTool {
	return &ResourceAcquireTool{coord: coord}
}

// Definition returns the MCP tool definition for resource_acquire.
func (t *ResourceAcquireTool) Definition() mcp.Tool {
	return mcp.NewTool("resource_acquire",
		mcp.WithDescription(
			"Lock a named resource (a file, branch, environment...). Exclusive locks "+
				"admit one holder, shared locks any number while nobody holds it "+
				"exclusively. Returns acquired=false when the resource is busy.",
		),
		mcp.WithString("resource_id",
			mcp.Required(),
			mcp.Description("Resource name"),
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Requesting session; must be registered"),
		),
		mcp.WithString("lock_type",
			mcp.Description("Lock mode"),
			mcp.Enum(string(resourcelock.Exclusive), string(resourcelock.Shared)),
			mcp.DefaultString(string(resourcelock.Exclusive)),
		),
		mcp.WithNumber("lease_ms",
			mcp.Description("Advisory lease in milliseconds (0 = unbounded)"),
		),
	)
}

// Handle processes the resource_acquire tool call.
func (t *ResourceAcquireTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "resource_id", "session_id"); res != nil {
		return res, nil
	}
	resourceID := req.GetString("resource_id", "")
	lockType := resourcelock.LockType(req.GetString("lock_type", string(resourcelock.Exclusive)))
	lease := time.Duration(intArg(req, "lease_ms", 0)) * time.Millisecond

	acquired, err := t.coord.AcquireSharedResource(resourceID, req.GetString("session_id", ""), lockType, lease)
	if err != nil {
		return failure("failed to acquire resource", err), nil
	}
	out := map[string]any{"resourceId": resourceID, "acquired": acquired}
	if res, ok := t.coord.Resource(resourceID); ok {
		out["resource"] = res
	}
	return jsonResult(out)
}

// ResourceReleaseTool handles the resource_release MCP tool.
type ResourceReleaseTool struct {
	coord *coordination.Coordinator
}

// NewResourceReleaseTool creates a ResourceReleaseTool.
func NewResourceReleaseTool(coord *coordination.Coordinator) *ResourceReleaseTool {
	return &ResourceReleaseTool{coord: coord}
}

// Definition returns the MCP tool definition for resource_release.
func (t *ResourceReleaseTool) Definition() mcp.Tool {
	return mcp.NewTool("resource_release",
		mcp.WithDescription("Release a lock held by a session."),
		mcp.WithString("resource_id",
			mcp.Required(),
			mcp.Description("Resource name"),
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Holding session"),
		),
	)
}

// Handle processes the resource_release tool call.
func (t *ResourceReleaseTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "resource_id", "session_id"); res != nil {
		return res, nil
	}
	resourceID := req.GetString("resource_id", "")
	sessionID := req.GetString("session_id", "")
	if !t.coord.ReleaseSharedResource(resourceID, sessionID) {
		return mcp.NewToolResultError(fmt.Sprintf("session %q does not hold %q", sessionID, resourceID)), nil
	}
	return jsonResult(map[string]any{"resourceId": resourceID, "released": true})
}

// CoordinateUpdateTool handles the context_coordinate_update MCP tool.
type CoordinateUpdateTool struct {
	coord *coordination.Coordinator
}

// NewCoordinateUpdateTool creates a CoordinateUpdateTool.
func NewCoordinateUpdateTool(coord *coordination.Coordinator) *CoordinateUpdateTool {
	return &CoordinateUpdateTool{coord: coord}
}

// Definition returns the MCP tool definition for context_coordinate_update.
func (t *CoordinateUpdateTool) Definition() mcp.Tool {
	return mcp.NewTool("context_coordinate_update",
		mcp.WithDescription(
			"Write several context changes on behalf of an operation and notify the "+
				"listed sessions. Keys are prefixed with context_path.",
		),
		mcp.WithString("conversation_id",
			mcp.Required(),
			mcp.Description("Conversation identifier"),
		),
		mcp.WithString("agent_id",
			mcp.Required(),
			mcp.Description("Participant making the changes"),
		),
		mcp.WithObject("changes",
			mcp.Required(),
			mcp.Description("Key/value changes"),
		),
		mcp.WithString("operation_id",
			mcp.Description("Operation the changes belong to"),
		),
		mcp.WithString("context_path",
			mcp.Description("Dotted prefix for every key"),
		),
		mcp.WithArray("sessions",
			mcp.Description("Sessions to notify"),
			mcp.WithStringItems(),
		),
		mcp.WithString("merge_strategy",
			mcp.Description("How values combine with existing entries"),
			mcp.Enum(string(payload.Replace), string(payload.Merge), string(payload.Append)),
		),
	)
}

// Handle processes the context_coordinate_update tool call.
func (t *CoordinateUpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "conversation_id", "agent_id"); res != nil {
		return res, nil
	}
	res, err := t.coord.CoordinateUpdate(ctx, coordination.UpdateRequest{
		OperationID:    req.GetString("operation_id", ""),
		ConversationID: req.GetString("conversation_id", ""),
		AgentID:        req.GetString("agent_id", ""),
		ContextPath:    req.GetString("context_path", ""),
		Changes:        objectArg(req, "changes"),
		Sessions:       req.GetStringSlice("sessions", nil),
		Options: contextsync.UpdateOptions{
			MergeStrategy: payload.Strategy(req.GetString("merge_strategy", "")),
		},
	})
	if err != nil {
		return failure("failed to coordinate update", err), nil
	}
	return jsonResult(res)
}
