package coordination

import (
	"context"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/approval"
	gwerrors "github.com/LucidWonk/environment-mcp-gateway-sub002/internal/errors"
)

// RequestApproval opens an approval gate on a live operation and returns
// the approval ID. A registered workflow manager is told about the request;
// its failure is logged and does not withdraw the request.
func (c *Coordinator) RequestApproval(ctx context.Context, operationID, requester, message string, metadata map[string]any) (string, error) {
	if err := c.requireSession("requestingSessionId", requester); err != nil {
		c.logger.Failure("approval request rejected", err, "operation_id", operationID)
		return "", err
	}
	op, ok := c.GetOperation(operationID)
	if !ok {
		err := gwerrors.NewNotFoundError("operation", operationID)
		c.logger.Failure("approval request rejected", err)
		return "", err
	}
	if op.Status.Terminal() {
		err := gwerrors.NewCoordinatorError("cannot request approval", gwerrors.ErrOperationTerminal).
			WithOperation(operationID).
			WithSession(requester).
			WithStatus(string(op.Status))
		c.logger.Failure("approval request rejected", err)
		return "", err
	}

	req, err := c.gate.Request(operationID, requester, message, metadata)
	if err != nil {
		c.logger.Failure("approval request rejected", err, "operation_id", operationID)
		return "", err
	}

	if c.workflow != nil {
		if err := c.workflow.ProcessApprovalRequest(ctx, req); err != nil {
			c.logger.WithOperation(operationID).Warn("approval workflow manager failed",
				"approval_id", req.ID, "error", err.Error())
		}
	}
	return req.ID, nil
}

// ProcessApprovalResponse answers a pending approval. A rejection fails the
// linked operation. An approval moves a pending operation to in-progress;
// completing it stays a separate step.
func (c *Coordinator) ProcessApprovalResponse(approvalID, responder string, approved bool, reason string) (approval.Response, error) {
	if err := c.requireSession("respondingSessionId", responder); err != nil {
		c.logger.Failure("approval response rejected", err, "approval_id", approvalID)
		return approval.Response{}, err
	}
	resp, err := c.gate.Respond(approvalID, responder, approved, reason)
	if err != nil {
		c.logger.Failure("approval response rejected", err)
		return approval.Response{}, err
	}

	log := c.logger.WithOperation(resp.OperationID)
	if !approved {
		if reason == "" {
			reason = "approval rejected"
		}
		if _, err := c.FailOperation(resp.OperationID, reason); err != nil {
			log.Debug("rejection left operation unchanged", "error", err.Error())
		}
		return resp, nil
	}

	op, ok := c.GetOperation(resp.OperationID)
	if ok && op.Status == StatusPending {
		if _, err := c.StartOperation(resp.OperationID); err != nil {
			log.Debug("approval left operation unchanged", "error", err.Error())
		}
	}
	return resp, nil
}

// GetPendingApproval returns a pending approval. Answered approvals are gone.
func (c *Coordinator) GetPendingApproval(approvalID string) (approval.Request, bool) {
	return c.gate.Get(approvalID)
}

// PendingApprovals returns the pending approvals of an operation, or every
// pending approval when operationID is empty.
func (c *Coordinator) PendingApprovals(operationID string) []approval.Request {
	if operationID == "" {
		return c.gate.Pending()
	}
	return c.gate.PendingFor(operationID)
}
