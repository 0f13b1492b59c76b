package server

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/contextsync"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/payload"
)

// ContextInitTool handles the context_init MCP tool.
type ContextInitTool struct {
	sync *contextsync.Synchronizer
}

// NewContextInitTool creates a ContextInitTool.
func NewContextInitTool(sync *contextsync.Synchronizer) *ContextInitTool {
	return &ContextInitTool{sync: sync}
}

// Definition returns the MCP tool definition for context_init.
func (t *ContextInitTool) Definition() mcp.Tool {
	return mcp.NewTool("context_init",
		mcp.WithDescription(
			"Start shared context for a conversation. Calling it again for the same "+
				"conversation replaces the previous context and returns a new sync id.",
		),
		mcp.WithString("conversation_id",
			mcp.Required(),
			mcp.Description("Conversation identifier"),
		),
		mcp.WithArray("participants",
			mcp.Required(),
			mcp.Description("Session ids allowed to read and write this context"),
			mcp.WithStringItems(),
		),
		mcp.WithObject("initial_context",
			mcp.Description("Initial key/value entries"),
		),
	)
}

// Handle processes the context_init tool call.
func (t *ContextInitTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "conversation_id"); res != nil {
		return res, nil
	}
	conversationID := req.GetString("conversation_id", "")
	participants := req.GetStringSlice("participants", nil)
	if len(participants) == 0 {
		return mcp.NewToolResultError("'participants' must name at least one session"), nil
	}

	syncID, err := t.sync.Initialize(conversationID, participants, objectArg(req, "initial_context"))
	if err != nil {
		return failure("failed to initialize context", err), nil
	}
	return jsonResult(map[string]any{"conversationId": conversationID, "syncId": syncID})
}

// ContextUpdateTool handles the context_update MCP tool.
type ContextUpdateTool struct {
	sync *contextsync.Synchronizer
}

// NewContextUpdateTool creates a ContextUpdateTool.
func NewContextUpdateTool(sync *contextsync.Synchronizer) *ContextUpdateTool {
	return &ContextUpdateTool{sync: sync}
}

// Definition returns the MCP tool definition for context_update.
func (t *ContextUpdateTool) Definition() mcp.Tool {
	return mcp.NewTool("context_update",
		mcp.WithDescription(
			"Write one shared context entry. A write that collides with another "+
				"session's recent write is queued as a conflict instead of applied; "+
				"check 'applied' in the result and call context_sync to settle it.",
		),
		mcp.WithString("conversation_id",
			mcp.Required(),
			mcp.Description("Conversation identifier"),
		),
		mcp.WithString("agent_id",
			mcp.Required(),
			mcp.Description("Writing session id; must be a participant"),
		),
		mcp.WithString("key",
			mcp.Required(),
			mcp.Description("Context key"),
		),
		mcp.WithString("value",
			mcp.Required(),
			mcp.Description("JSON-encoded value, e.g. '42', '\"text\"' or '{\"a\":1}'"),
		),
		mcp.WithString("merge_strategy",
			mcp.Description("How to combine with an existing value"),
			mcp.Enum(string(payload.Replace), string(payload.Merge), string(payload.Append)),
		),
		mcp.WithString("priority",
			mcp.Description("Advisory priority"),
			mcp.Enum(
				string(contextsync.PriorityLow),
				string(contextsync.PriorityNormal),
				string(contextsync.PriorityHigh),
				string(contextsync.PriorityCritical),
			),
		),
		mcp.WithBoolean("require_consensus",
			mcp.Description("Mark the entry as needing agreement from other participants"),
		),
	)
}

// Handle processes the context_update tool call.
func (t *ContextUpdateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "conversation_id", "agent_id", "key", "value"); res != nil {
		return res, nil
	}
	value, _, err := jsonArg(req, "value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	conversationID := req.GetString("conversation_id", "")
	opID, err := t.sync.Update(conversationID,
		req.GetString("agent_id", ""),
		req.GetString("key", ""),
		value,
		contextsync.UpdateOptions{
			MergeStrategy:    payload.Strategy(req.GetString("merge_strategy", "")),
			Priority:         contextsync.Priority(req.GetString("priority", "")),
			RequireConsensus: req.GetBool("require_consensus", false),
		},
	)
	if err != nil {
		return failure("failed to update context", err), nil
	}

	op, err := t.sync.Operation(conversationID, opID)
	if err != nil {
		return failure("failed to read operation", err), nil
	}
	return jsonResult(op)
}

// ContextSyncTool handles the context_sync MCP tool.
type ContextSyncTool struct {
	sync *contextsync.Synchronizer
}

// NewContextSyncTool creates a ContextSyncTool.
func NewContextSyncTool(sync *contextsync.Synchronizer) *ContextSyncTool {
	return &ContextSyncTool{sync: sync}
}

// Definition returns the MCP tool definition for context_sync.
func (t *ContextSyncTool) Definition() mcp.Tool {
	return mcp.NewTool("context_sync",
		mcp.WithDescription(
			"Settle queued writes whose conflicts can be merged automatically and push "+
				"the resulting context to the target sessions. Conflicts that need a "+
				"human stay queued; use context_resolve_conflict for those.",
		),
		mcp.WithString("conversation_id",
			mcp.Required(),
			mcp.Description("Conversation identifier"),
		),
		mcp.WithArray("target_agents",
			mcp.Description("Sessions to push to (default: all participants)"),
			mcp.WithStringItems(),
		),
	)
}

// Handle processes the context_sync tool call.
func (t *ContextSyncTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "conversation_id"); res != nil {
		return res, nil
	}
	report, err := t.sync.Sync(ctx, req.GetString("conversation_id", ""), req.GetStringSlice("target_agents", nil))
	if err != nil {
		return failure("failed to sync context", err), nil
	}
	return jsonResult(report)
}

// ContextStatusTool handles the context_status MCP tool.
type ContextStatusTool struct {
	sync *contextsync.Synchronizer
}

// NewContextStatusTool creates a ContextStatusTool.
func NewContextStatusTool(sync *contextsync.Synchronizer) *ContextStatusTool {
	return &ContextStatusTool{sync: sync}
}

// Definition returns the MCP tool definition for context_status.
func (t *ContextStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("context_status",
		mcp.WithDescription(
			"Show counts, metrics and health for a conversation's shared context. "+
				"Reports exists=false for unknown conversations.",
		),
		mcp.WithString("conversation_id",
			mcp.Required(),
			mcp.Description("Conversation identifier"),
		),
	)
}

// Handle processes the context_status tool call.
func (t *ContextStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "conversation_id"); res != nil {
		return res, nil
	}
	conversationID := req.GetString("conversation_id", "")
	status := t.sync.Status(conversationID)
	if status == nil {
		return jsonResult(map[string]any{"conversationId": conversationID, "exists": false})
	}
	return jsonResult(map[string]any{"conversationId": conversationID, "exists": true, "status": status})
}

// ContextGetTool handles the context_get MCP tool.
type ContextGetTool struct {
	sync *contextsync.Synchronizer
}

// NewContextGetTool creates a ContextGetTool.
func NewContextGetTool(sync *contextsync.Synchronizer) *ContextGetTool {
	return &ContextGetTool{sync: sync}
}

// Definition returns the MCP tool definition for context_get.
func (t *ContextGetTool) Definition() mcp.Tool {
	return mcp.NewTool("context_get",
		mcp.WithDescription(
			"Read shared context: one entry when key is given, otherwise the whole context.",
		),
		mcp.WithString("conversation_id",
			mcp.Required(),
			mcp.Description("Conversation identifier"),
		),
		mcp.WithString("key",
			mcp.Description("Context key to read"),
		),
	)
}

// Handle processes the context_get tool call.
func (t *ContextGetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "conversation_id"); res != nil {
		return res, nil
	}
	conversationID := req.GetString("conversation_id", "")
	key := req.GetString("key", "")

	if key == "" {
		snap, ok := t.sync.Snapshot(conversationID)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("conversation %q not found", conversationID)), nil
		}
		return jsonResult(snap)
	}

	entry, ok := t.sync.Entry(conversationID, key)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("key %q not found in conversation %q", key, conversationID)), nil
	}
	return jsonResult(entry)
}

// ContextSnapshotTool handles the context_snapshot MCP tool.
type ContextSnapshotTool struct {
	sync *contextsync.Synchronizer
}

// NewContextSnapshotTool creates a ContextSnapshotTool.
func NewContextSnapshotTool(sync *contextsync.Synchronizer) *ContextSnapshotTool {
	return &ContextSnapshotTool{sync: sync}
}

// Definition returns the MCP tool definition for context_snapshot.
func (t *ContextSnapshotTool) Definition() mcp.Tool {
	return mcp.NewTool("context_snapshot",
		mcp.WithDescription(
			"Take a named snapshot of the shared context, or list snapshots when "+
				"list=true. Snapshots are the targets of context_rollback.",
		),
		mcp.WithString("conversation_id",
			mcp.Required(),
			mcp.Description("Conversation identifier"),
		),
		mcp.WithString("created_by",
			mcp.Description("Session taking the snapshot"),
		),
		mcp.WithString("description",
			mcp.Description("Why the snapshot was taken"),
		),
		mcp.WithBoolean("list",
			mcp.Description("List existing snapshots instead of taking one"),
		),
	)
}

// Handle processes the context_snapshot tool call.
func (t *ContextSnapshotTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "conversation_id"); res != nil {
		return res, nil
	}
	conversationID := req.GetString("conversation_id", "")

	if req.GetBool("list", false) {
		versions, err := t.sync.Versions(conversationID)
		if err != nil {
			return failure("failed to list snapshots", err), nil
		}
		type summary struct {
			VersionID   string `json:"versionId"`
			Version     int    `json:"version"`
			CreatedBy   string `json:"createdBy"`
			Description string `json:"description"`
			Entries     int    `json:"entries"`
		}
		out := make([]summary, len(versions))
		for i, v := range versions {
			out[i] = summary{v.ID, v.Version, v.CreatedBy, v.Description, len(v.Snapshot)}
		}
		return jsonResult(out)
	}

	v, err := t.sync.CreateSnapshot(conversationID, req.GetString("created_by", ""), req.GetString("description", ""))
	if err != nil {
		return failure("failed to create snapshot", err), nil
	}
	return jsonResult(v)
}

// ContextRollbackTool handles the context_rollback MCP tool.
type ContextRollbackTool struct {
	sync *contextsync.Synchronizer
}

// NewContextRollbackTool creates a ContextRollbackTool.
func NewContextRollbackTool(sync *contextsync.Synchronizer) *ContextRollbackTool {
	return &ContextRollbackTool{sync: sync}
}

// Definition returns the MCP tool definition for context_rollback.
func (t *ContextRollbackTool) Definition() mcp.Tool {
	return mcp.NewTool("context_rollback",
		mcp.WithDescription(
			"Restore the shared context to a snapshot. Queued writes and open "+
				"conflicts are discarded.",
		),
		mcp.WithString("conversation_id",
			mcp.Required(),
			mcp.Description("Conversation identifier"),
		),
		mcp.WithString("version_id",
			mcp.Required(),
			mcp.Description("Snapshot id from context_snapshot"),
		),
		mcp.WithString("agent_id",
			mcp.Description("Session requesting the rollback"),
		),
	)
}

// Handle processes the context_rollback tool call.
func (t *ContextRollbackTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "conversation_id", "version_id"); res != nil {
		return res, nil
	}
	conversationID := req.GetString("conversation_id", "")
	if err := t.sync.Rollback(conversationID, req.GetString("version_id", ""), req.GetString("agent_id", "")); err != nil {
		return failure("failed to roll back", err), nil
	}
	snap, _ := t.sync.Snapshot(conversationID)
	return jsonResult(snap)
}

// ContextResolveConflictTool handles the context_resolve_conflict MCP tool.
type ContextResolveConflictTool struct {
	sync *contextsync.Synchronizer
}

// NewContextResolveConflictTool creates a ContextResolveConflictTool.
func NewContextResolveConflictTool(sync *contextsync.Synchronizer) *ContextResolveConflictTool {
	return &ContextResolveConflictTool{sync: sync}
}

// Definition returns the MCP tool definition for context_resolve_conflict.
func (t *ContextResolveConflictTool) Definition() mcp.Tool {
	return mcp.NewTool("context_resolve_conflict",
		mcp.WithDescription(
			"Settle a conflict by hand. Installs the given value, or the queued "+
				"write's value when none is given.",
		),
		mcp.WithString("conversation_id",
			mcp.Required(),
			mcp.Description("Conversation identifier"),
		),
		mcp.WithString("conflict_id",
			mcp.Required(),
			mcp.Description("Conflict id from context_status or context_update"),
		),
		mcp.WithString("agent_id",
			mcp.Required(),
			mcp.Description("Resolving session; must be a participant"),
		),
		mcp.WithString("value",
			mcp.Description("JSON-encoded value to install"),
		),
	)
}

// Handle processes the context_resolve_conflict tool call.
func (t *ContextResolveConflictTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "conversation_id", "conflict_id", "agent_id"); res != nil {
		return res, nil
	}
	value, _, err := jsonArg(req, "value")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	conversationID := req.GetString("conversation_id", "")
	conflictID := req.GetString("conflict_id", "")
	if err := t.sync.ResolveConflict(conversationID, conflictID, req.GetString("agent_id", ""), value); err != nil {
		return failure("failed to resolve conflict", err), nil
	}
	remaining, _ := t.sync.ActiveConflicts(conversationID)
	return jsonResult(map[string]any{
		"conversationId":     conversationID,
		"resolved":           conflictID,
		"remainingConflicts": len(remaining),
	})
}

// ContextHandoffTool handles the context_handoff MCP tool.
type ContextHandoffTool struct {
	sync *contextsync.Synchronizer
}

// NewContextHandoffTool creates a ContextHandoffTool.
func NewContextHandoffTool(sync *contextsync.Synchronizer) *ContextHandoffTool {
	return &ContextHandoffTool{sync: sync}
}

// Definition returns the MCP tool definition for context_handoff.
func (t *ContextHandoffTool) Definition() mcp.Tool {
	return mcp.NewTool("context_handoff",
		mcp.WithDescription(
			"Hand a conversation over to another session. The receiver becomes a "+
				"participant and gets the context at the chosen scope.",
		),
		mcp.WithString("conversation_id",
			mcp.Required(),
			mcp.Description("Conversation identifier"),
		),
		mcp.WithString("from",
			mcp.Required(),
			mcp.Description("Handing-off session; must be a participant"),
		),
		mcp.WithString("to",
			mcp.Required(),
			mcp.Description("Receiving session"),
		),
		mcp.WithString("scope",
			mcp.Description("full: every entry; focused: only keys; minimal: keys and versions without values"),
			mcp.Enum(string(contextsync.ScopeFull), string(contextsync.ScopeFocused), string(contextsync.ScopeMinimal)),
			mcp.DefaultString(string(contextsync.ScopeFull)),
		),
		mcp.WithArray("keys",
			mcp.Description("Keys to carry with the focused scope"),
			mcp.WithStringItems(),
		),
	)
}

// Handle processes the context_handoff tool call.
func (t *ContextHandoffTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "conversation_id", "from", "to"); res != nil {
		return res, nil
	}
	pkg, err := t.sync.Handoff(ctx, contextsync.HandoffRequest{
		ConversationID: req.GetString("conversation_id", ""),
		From:           req.GetString("from", ""),
		To:             req.GetString("to", ""),
		Scope:          contextsync.HandoffScope(req.GetString("scope", string(contextsync.ScopeFull))),
		Keys:           req.GetStringSlice("keys", nil),
	})
	if err != nil {
		return failure("failed to hand off context", err), nil
	}
	return jsonResult(pkg)
}
