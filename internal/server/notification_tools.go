package server

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/coordination"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/mailbox"
)

var notificationParams = []mcp.ToolOption{
	mcp.WithString("type",
		mcp.Required(),
		mcp.Description("Notification kind, e.g. deploy_started"),
	),
	mcp.WithString("message",
		mcp.Required(),
		mcp.Description("Human readable message"),
	),
	mcp.WithObject("data",
		mcp.Description("Structured details"),
	),
	mcp.WithString("severity",
		mcp.Description("Urgency"),
		mcp.Enum(
			string(mailbox.SeverityInfo),
			string(mailbox.SeverityWarning),
			string(mailbox.SeverityError),
			string(mailbox.SeverityCritical),
		),
		mcp.DefaultString(string(mailbox.SeverityInfo)),
	),
	mcp.WithBoolean("requires_ack",
		mcp.Description("Keep the notification pending until acknowledged"),
	),
	mcp.WithString("from",
		mcp.Description("Sending session"),
	),
}

func notificationFrom(req mcp.CallToolRequest) mailbox.Notification {
	return mailbox.Notification{
		Type:                   req.GetString("type", ""),
		Message:                req.GetString("message", ""),
		Data:                   objectArg(req, "data"),
		Severity:               mailbox.Severity(req.GetString("severity", "")),
		RequiresAcknowledgment: req.GetBool("requires_ack", false),
		From:                   req.GetString("from", ""),
	}
}

// NotificationSendTool handles the notification_send MCP tool.
type NotificationSendTool struct {
	coord *coordination.Coordinator
}

// NewNotificationSendTool creates a NotificationSendTool.
func NewNotificationSendTool(coord *coordination.Coordinator) *NotificationSendTool {
	return &NotificationSendTool{coord: coord}
}

// Definition returns the MCP tool definition for notification_send.
func (t *NotificationSendTool) Definition() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Queue a notification for specific registered sessions."),
		mcp.WithArray("targets",
			mcp.Required(),
			mcp.Description("Receiving sessions"),
			mcp.WithStringItems(),
		),
	}
	return mcp.NewTool("notification_send", append(opts, notificationParams...)...)
}

// Handle processes the notification_send tool call.
func (t *NotificationSendTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "type", "message"); res != nil {
		return res, nil
	}
	report, err := t.coord.SendNotification(ctx, req.GetStringSlice("targets", nil), notificationFrom(req))
	if err != nil {
		return failure("failed to send notification", err), nil
	}
	return jsonResult(report)
}

// NotificationBroadcastTool handles the notification_broadcast MCP tool.
type NotificationBroadcastTool struct {
	coord *coordination.Coordinator
}

// NewNotificationBroadcastTool creates a NotificationBroadcastTool.
func NewNotificationBroadcastTool(coord *coordination.Coordinator) *NotificationBroadcastTool {
	return &NotificationBroadcastTool{coord: coord}
}

// Definition returns the MCP tool definition for notification_broadcast.
func (t *NotificationBroadcastTool) Definition() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription("Queue a notification for every registered session."),
	}
	return mcp.NewTool("notification_broadcast", append(opts, notificationParams...)...)
}

// Handle processes the notification_broadcast tool call.
func (t *NotificationBroadcastTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "type", "message"); res != nil {
		return res, nil
	}
	report, err := t.coord.BroadcastNotification(ctx, notificationFrom(req))
	if err != nil {
		return failure("failed to broadcast notification", err), nil
	}
	return jsonResult(report)
}

// NotificationPendingTool handles the notification_pending MCP tool.
type NotificationPendingTool struct {
	coord *coordination.Coordinator
}

// NewNotificationPendingTool creates a NotificationPendingTool.
func NewNotificationPendingTool(coord *coordination.Coordinator) *NotificationPendingTool {
	return &NotificationPendingTool{coord: coord}
}

// Definition returns the MCP tool definition for notification_pending.
func (t *NotificationPendingTool) Definition() mcp.Tool {
	return mcp.NewTool("notification_pending",
		mcp.WithDescription(
			"Fetch a session's pending notifications. Without filters, notifications "+
				"that do not require acknowledgment are removed once fetched; "+
				"filtered reads leave the inbox untouched.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Receiving session"),
		),
		mcp.WithArray("types",
			mcp.Description("Only return these notification types (glob patterns such as context_*)"),
			mcp.WithStringItems(),
		),
		mcp.WithNumber("max_items",
			mcp.Description("Return at most the N most recent notifications"),
		),
		mcp.WithString("format",
			mcp.Description("Output format"),
			mcp.Enum("json", "text"),
			mcp.DefaultString("json"),
		),
	)
}

// Handle processes the notification_pending tool call.
func (t *NotificationPendingTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "session_id"); res != nil {
		return res, nil
	}
	sessionID := req.GetString("session_id", "")
	if !t.coord.IsRegistered(sessionID) {
		return mcp.NewToolResultError(fmt.Sprintf("session %q is not registered", sessionID)), nil
	}

	// Filtered reads peek so notifications outside the filter are not lost.
	opts := mailbox.FilterOptions{
		Types:    req.GetStringSlice("types", nil),
		MaxItems: intArg(req, "max_items", 0),
	}
	var pending []mailbox.Notification
	if len(opts.Types) > 0 || opts.MaxItems > 0 {
		pending = t.coord.Mailbox().Peek(sessionID, opts)
	} else {
		pending = t.coord.PendingNotifications(sessionID)
	}
	if req.GetString("format", "json") == "text" {
		if len(pending) == 0 {
			return mcp.NewToolResultText("No pending notifications."), nil
		}
		return mcp.NewToolResultText(mailbox.Format(pending)), nil
	}
	if pending == nil {
		pending = []mailbox.Notification{}
	}
	return jsonResult(pending)
}

// NotificationAckTool handles the notification_ack MCP tool.
type NotificationAckTool struct {
	coord *coordination.Coordinator
}

// NewNotificationAckTool creates a NotificationAckTool.
func NewNotificationAckTool(coord *coordination.Coordinator) *NotificationAckTool {
	return &NotificationAckTool{coord: coord}
}

// Definition returns the MCP tool definition for notification_ack.
func (t *NotificationAckTool) Definition() mcp.Tool {
	return mcp.NewTool("notification_ack",
		mcp.WithDescription("Acknowledge a notification so it is no longer pending."),
		mcp.WithString("notification_id",
			mcp.Required(),
			mcp.Description("Notification id"),
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Acknowledging session"),
		),
	)
}

// Handle processes the notification_ack tool call.
func (t *NotificationAckTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if res := required(req, "notification_id", "session_id"); res != nil {
		return res, nil
	}
	id := req.GetString("notification_id", "")
	sessionID := req.GetString("session_id", "")
	if !t.coord.AcknowledgeNotification(id, sessionID) {
		return mcp.NewToolResultError(fmt.Sprintf("notification %q is not awaiting acknowledgment from %q", id, sessionID)), nil
	}
	return jsonResult(map[string]any{"notificationId": id, "acknowledged": true})
}
