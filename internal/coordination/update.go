package coordination

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/contextsync"
	gwerrors "github.com/LucidWonk/environment-mcp-gateway-sub002/internal/errors"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/mailbox"
)

// UpdateRequest is a batch of context changes made on behalf of an
// operation.
type UpdateRequest struct {
	OperationID    string                    `json:"operationId,omitempty"`
	ConversationID string                    `json:"conversationId"`
	AgentID        string                    `json:"agentId"`
	ContextPath    string                    `json:"contextPath,omitempty"`
	Changes        map[string]any            `json:"changes"`
	Sessions       []string                  `json:"sessions,omitempty"`
	Options        contextsync.UpdateOptions `json:"options,omitzero"`
}

// UpdateResult reports what CoordinateUpdate did.
type UpdateResult struct {
	OperationID string   `json:"operationId,omitempty"`
	Applied     []string `json:"applied"`
	Queued      []string `json:"queued"`
	Notified    []string `json:"notified"`
	Delegated   bool     `json:"delegated"`
}

// UpdateOrchestrator performs holistic updates outside the coordinator,
// for example across several repositories at once.
type UpdateOrchestrator interface {
	CoordinateUpdate(ctx context.Context, req UpdateRequest) (UpdateResult, error)
}

// UpdateOrchestratorFunc adapts a function to the UpdateOrchestrator interface.
type UpdateOrchestratorFunc func(ctx context.Context, req UpdateRequest) (UpdateResult, error)

// CoordinateUpdate calls f.
func (f UpdateOrchestratorFunc) CoordinateUpdate(ctx context.Context, req UpdateRequest) (UpdateResult, error) {
	return f(ctx, req)
}

// CoordinateUpdate applies a batch of changes. With an orchestrator
// registered the whole request is handed to it. Otherwise every change is
// written through the synchronizer under ContextPath and the listed
// sessions are notified.
func (c *Coordinator) CoordinateUpdate(ctx context.Context, req UpdateRequest) (UpdateResult, error) {
	if err := c.validateUpdate(req); err != nil {
		c.logger.Failure("coordinated update rejected", err, "conversation_id", req.ConversationID)
		return UpdateResult{}, err
	}

	if c.orchestrator != nil {
		res, err := c.orchestrator.CoordinateUpdate(ctx, req)
		if err != nil {
			c.logger.Failure("update orchestrator failed", err, "operation_id", req.OperationID)
			return UpdateResult{}, err
		}
		res.Delegated = true
		if res.OperationID == "" {
			res.OperationID = req.OperationID
		}
		return res, nil
	}

	res := UpdateResult{
		OperationID: req.OperationID,
		Applied:     []string{},
		Queued:      []string{},
		Notified:    []string{},
	}
	keys := slices.Sorted(maps.Keys(req.Changes))
	for _, k := range keys {
		key := contextKey(req.ContextPath, k)
		opID, err := c.sync.Update(req.ConversationID, req.AgentID, key, req.Changes[k], req.Options)
		if err != nil {
			c.logger.Failure("coordinated update failed", err, "conversation_id", req.ConversationID, "key", key)
			return res, err
		}
		if op, err := c.sync.Operation(req.ConversationID, opID); err == nil && op.Applied {
			res.Applied = append(res.Applied, key)
		} else {
			res.Queued = append(res.Queued, key)
		}
	}

	if len(req.Sessions) > 0 {
		report, err := c.mb.Send(ctx, req.Sessions, mailbox.Notification{
			Type:    "context_update",
			Message: "shared context updated in conversation " + req.ConversationID,
			From:    req.AgentID,
			Data: map[string]any{
				"conversationId": req.ConversationID,
				"operationId":    req.OperationID,
				"applied":        res.Applied,
				"queued":         res.Queued,
			},
		})
		if err != nil {
			return res, err
		}
		res.Notified = report.Queued
	}

	c.logger.WithConversation(req.ConversationID).Info("coordinated update applied",
		"operation_id", req.OperationID, "applied", len(res.Applied), "queued", len(res.Queued))
	return res, nil
}

func (c *Coordinator) validateUpdate(req UpdateRequest) error {
	switch {
	case req.ConversationID == "":
		return gwerrors.NewValidationError("conversation id is required").WithField("conversationId")
	case req.AgentID == "":
		return gwerrors.NewValidationError("agent id is required").WithField("agentId")
	case len(req.Changes) == 0:
		return gwerrors.NewValidationError("at least one change is required").WithField("changes")
	}
	if req.OperationID != "" {
		op, ok := c.GetOperation(req.OperationID)
		if !ok {
			return gwerrors.NewNotFoundError("operation", req.OperationID)
		}
		if op.Status.Terminal() {
			return gwerrors.NewCoordinatorError("cannot update for a finished operation", gwerrors.ErrOperationTerminal).
				WithOperation(req.OperationID).
				WithStatus(string(op.Status))
		}
	}
	for _, s := range req.Sessions {
		if err := c.requireSession("sessions", s); err != nil {
			return err
		}
	}
	return nil
}

// contextKey joins a dotted path prefix and a change key.
func contextKey(path, key string) string {
	path = strings.Trim(path, ".")
	if path == "" {
		return key
	}
	return path + "." + key
}
