package server

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/coordination"
)

// OperationInitiateTool handles the operation_initiate MCP tool.
type OperationInitiateTool struct {
	coord *coordination.Coordinator
}

// NewOperationInitiateTool creates an OperationInitiateTool.
func NewOperationInitiateTool(coord *coordination.Coordinator) *OperationInitiateTool {
	return &OperationInitiateTool{coord: coord}
}

// Definition returns the MCP tool definition for operation_initiate.
func (t *OperationInitiateTool) Definition() mcp.Tool {
	return mcp.NewTool("operation_initiate",
		mcp.WithDescription(
			"Start a cross-session operation. It stays pending until approved, "+
				"completed, failed or timed out. Put a 'timeout' (milliseconds or a "+
				"duration like \"5m\") in the payload to bound it.",
		),
		mcp.WithString("operation_type",
			mcp.Required(),
			mcp.Description("Short operation kind, e.g. deploy or schema_migration"),
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Initiating session; must be registered"),
		),
		mcp.WithObject("payload",
			mcp.Description("Free-form operation details"),
		),
		mcp.WithArray("affected_sessions",
			mcp.Description("Other sessions this operation concerns"),
			mcp.WithStringItems(),
		),
	)
}

// Handle processes the operation_initiate tool call.
func (t *OperationInitiateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "operation_type", "session_id"); res != nil {
		return res, nil
	}
	opID, err := t.coord.InitiateOperation(
		req.GetString("operation_type", ""),
		req.GetString("session_id", ""),
		objectArg(req, "payload"),
		req.GetStringSlice("affected_sessions", nil),
	)
	if err != nil {
		return failure("failed to initiate operation", err), nil
	}
	op, _ := t.coord.GetOperation(opID)
	return jsonResult(op)
}

// OperationCompleteTool handles the operation_complete MCP tool.
type OperationCompleteTool struct {
	coord *coordination.Coordinator
}

// NewOperationCompleteTool creates an OperationCompleteTool.
func NewOperationCompleteTool(coord *coordination.Coordinator) *OperationCompleteTool {
	return &OperationCompleteTool{coord: coord}
}

// Definition returns the MCP tool definition for operation_complete.
func (t *OperationCompleteTool) Definition() mcp.Tool {
	return mcp.NewTool("operation_complete",
		mcp.WithDescription(
			"Finish an operation. Give failure_reason to mark it failed instead of "+
				"completed. Finished operations cannot change again.",
		),
		mcp.WithString("operation_id",
			mcp.Required(),
			mcp.Description("Operation id from operation_initiate"),
		),
		mcp.WithObject("result",
			mcp.Description("Outcome details for a completed operation"),
		),
		mcp.WithString("failure_reason",
			mcp.Description("Why the operation failed"),
		),
	)
}

// Handle processes the operation_complete tool call.
func (t *OperationCompleteTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "operation_id"); res != nil {
		return res, nil
	}
	id := req.GetString("operation_id", "")

	var (
		op  coordination.Operation
		err error
	)
	if reason := req.GetString("failure_reason", ""); reason != "" {
		op, err = t.coord.FailOperation(id, reason)
	} else {
		op, err = t.coord.CompleteOperation(id, objectArg(req, "result"))
	}
	if err != nil {
		return failure("failed to finish operation", err), nil
	}
	return jsonResult(op)
}

// OperationStatusTool handles the operation_status MCP tool.
type OperationStatusTool struct {
	coord *coordination.Coordinator
}

// NewOperationStatusTool creates an OperationStatusTool.
func NewOperationStatusTool(coord *coordination.Coordinator) *OperationStatusTool {
	return &OperationStatusTool{coord: coord}
}

// Definition returns the MCP tool definition for operation_status.
func (t *OperationStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("operation_status",
		mcp.WithDescription(
			"Show one operation with its pending approvals, or list the operations "+
				"a session is involved in.",
		),
		mcp.WithString("operation_id",
			mcp.Description("Operation to show"),
		),
		mcp.WithString("session_id",
			mcp.Description("List operations involving this session (all when empty)"),
		),
	)
}

// Handle processes the operation_status tool call.
func (t *OperationStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if id := req.GetString("operation_id", ""); id != "" {
		op, ok := t.coord.GetOperation(id)
		if !ok {
			return mcp.NewToolResultError(fmt.Sprintf("operation %q not found", id)), nil
		}
		return jsonResult(map[string]any{
			"operation":        op,
			"pendingApprovals": t.coord.PendingApprovals(id),
		})
	}
	return jsonResult(t.coord.ListOperations(req.GetString("session_id", "")))
}

// ApprovalRequestTool handles the approval_request MCP tool.
type ApprovalRequestTool struct {
	coord *coordination.Coordinator
}

// NewApprovalRequestTool creates an ApprovalRequestTool.
func NewApprovalRequestTool(coord *coordination.Coordinator) *ApprovalRequestTool {
	return &ApprovalRequestTool{coord: coord}
}

// Definition returns the MCP tool definition for approval_request.
func (t *ApprovalRequestTool) Definition() mcp.Tool {
	return mcp.NewTool("approval_request",
		mcp.WithDescription(
			"Ask for sign-off on an operation. Each request is answered once by "+
				"approval_respond. Request once per approver when several are needed.",
		),
		mcp.WithString("operation_id",
			mcp.Required(),
			mcp.Description("Operation needing approval"),
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Requesting session; must be registered"),
		),
		mcp.WithString("message",
			mcp.Required(),
			mcp.Description("What is being approved"),
		),
		mcp.WithObject("metadata",
			mcp.Description("Extra details for the approver"),
		),
	)
}

// Handle processes the approval_request tool call.
func (t *ApprovalRequestTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "operation_id", "session_id", "message"); res != nil {
		return res, nil
	}
	id, err := t.coord.RequestApproval(ctx,
		req.GetString("operation_id", ""),
		req.GetString("session_id", ""),
		req.GetString("message", ""),
		objectArg(req, "metadata"),
	)
	if err != nil {
		return failure("failed to request approval", err), nil
	}
	pending, _ := t.coord.GetPendingApproval(id)
	return jsonResult(pending)
}

// ApprovalRespondTool handles the approval_respond MCP tool.
type ApprovalRespondTool struct {
	coord *coordination.Coordinator
}

// NewApprovalRespondTool creates an ApprovalRespondTool.
func NewApprovalRespondTool(coord *coordination.Coordinator) *ApprovalRespondTool {
	return &ApprovalRespondTool{coord: coord}
}

// Definition returns the MCP tool definition for approval_respond.
func (t *ApprovalRespondTool) Definition() mcp.Tool {
	return mcp.NewTool("approval_respond",
		mcp.WithDescription(
			"Approve or reject a pending approval. Rejection fails the operation; "+
				"approval lets it proceed but does not complete it.",
		),
		mcp.WithString("approval_id",
			mcp.Required(),
			mcp.Description("Approval id from approval_request"),
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Responding session; must be registered"),
		),
		mcp.WithBoolean("approved",
			mcp.Required(),
			mcp.Description("true to approve, false to reject"),
		),
		mcp.WithString("reason",
			mcp.Description("Why"),
		),
	)
}

// Handle processes the approval_respond tool call.
func (t *ApprovalRespondTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "approval_id", "session_id"); res != nil {
		return res, nil
	}
	if _, ok := req.GetArguments()["approved"].(bool); !ok {
		return mcp.NewToolResultError("'approved' is required"), nil
	}
	resp, err := t.coord.ProcessApprovalResponse(
		req.GetString("approval_id", ""),
		req.GetString("session_id", ""),
		req.GetBool("approved", false),
		req.GetString("reason", ""),
	)
	if err != nil {
		return failure("failed to process approval", err), nil
	}
	op, _ := t.coord.GetOperation(resp.OperationID)
	return jsonResult(map[string]any{"response": resp, "operation": op})
}
