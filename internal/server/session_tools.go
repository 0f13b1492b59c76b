package server

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/coordination"
)

// SessionRegisterTool handles the session_register MCP tool.
type SessionRegisterTool struct {
	coord *coordination.Coordinator
}

// NewSessionRegisterTool creates a SessionRegisterTool.
func NewSessionRegisterTool(coord *coordination.Coordinator) *SessionRegisterTool {
	return &SessionRegisterTool{coord: coord}
}

// Definition returns the MCP tool definition for session_register.
func (t *SessionRegisterTool) Definition() mcp.Tool {
	return mcp.NewTool("session_register",
		mcp.WithDescription(
			"Register this assistant session with the gateway. Call once at the start "+
				"of a session. Registering again with the same id is harmless. "+
				"Omit session_id to have one generated.",
		),
		mcp.WithString("session_id",
			mcp.Description("Session identifier to register (generated when omitted)"),
		),
		mcp.WithString("user_agent",
			mcp.Description("Client name and version, used only when generating an id"),
		),
		mcp.WithString("remote_address",
			mcp.Description("Client address, used only when generating an id"),
		),
	)
}

// Handle processes the session_register tool call.
func (t *SessionRegisterTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("session_id", "")
	if id == "" {
		info, err := t.coord.Connect(req.GetString("user_agent", ""), req.GetString("remote_address", ""))
		if err != nil {
			return failure("failed to register session", err), nil
		}
		return jsonResult(map[string]any{"sessionId": info.ID, "registered": true})
	}

	ok, err := t.coord.RegisterSession(id)
	if err != nil {
		return failure("failed to register session", err), nil
	}
	return jsonResult(map[string]any{"sessionId": id, "registered": ok})
}

// SessionUnregisterTool handles the session_unregister MCP tool.
type SessionUnregisterTool struct {
	coord *coordination.Coordinator
}

// NewSessionUnregisterTool creates a SessionUnregisterTool.
func NewSessionUnregisterTool(coord *coordination.Coordinator) *SessionUnregisterTool {
	return &SessionUnregisterTool{coord: coord}
}

// Definition returns the MCP tool definition for session_unregister.
func (t *SessionUnregisterTool) Definition() mcp.Tool {
	return mcp.NewTool("session_unregister",
		mcp.WithDescription(
			"Unregister a session. Every resource lock it holds is released and its "+
				"pending notifications are discarded.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session identifier to unregister"),
		),
	)
}

// Handle processes the session_unregister tool call.
func (t *SessionUnregisterTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "session_id"); res != nil {
		return res, nil
	}
	id := req.GetString("session_id", "")
	ok, err := t.coord.UnregisterSession(id)
	if err != nil {
		return failure("failed to unregister session", err), nil
	}
	return jsonResult(map[string]any{"sessionId": id, "unregistered": ok})
}
