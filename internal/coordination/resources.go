package coordination

import (
	"context"
	"errors"
	"time"

	gwerrors "github.com/LucidWonk/environment-mcp-gateway-sub002/internal/errors"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/mailbox"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/resourcelock"
)

// AcquireSharedResource takes an exclusive or shared lock for a registered
// session. It never waits: a conflicting holder yields false.
func (c *Coordinator) AcquireSharedResource(resourceID, sessionID string, lockType resourcelock.LockType, lease time.Duration) (bool, error) {
	if err := c.requireSession("sessionId", sessionID); err != nil {
		c.logger.Failure("resource acquisition rejected", err, "resource_id", resourceID)
		return false, err
	}
	log := c.logger.WithSession(sessionID)
	err := c.locks.Acquire(resourceID, sessionID, lockType, lease)
	switch {
	case errors.Is(err, gwerrors.ErrResourceBusy):
		log.Debug("resource busy", "resource_id", resourceID, "lock_type", string(lockType), "error", err)
		return false, nil
	case err != nil:
		c.logger.Failure("resource acquisition rejected", err, "resource_id", resourceID)
		return false, err
	}
	log.Debug("resource acquired", "resource_id", resourceID, "lock_type", string(lockType))
	return true, nil
}

// ReleaseSharedResource drops a session's hold on a resource. It reports
// false when the session held nothing.
func (c *Coordinator) ReleaseSharedResource(resourceID, sessionID string) bool {
	if err := c.locks.Release(resourceID, sessionID); err != nil {
		c.logger.WithSession(sessionID).Debug("resource release refused", "resource_id", resourceID, "error", err)
		return false
	}
	return true
}

// Resource returns the lock state of a resource.
func (c *Coordinator) Resource(resourceID string) (resourcelock.Resource, bool) {
	return c.locks.Get(resourceID)
}

// BroadcastNotification queues n for every registered session.
func (c *Coordinator) BroadcastNotification(ctx context.Context, n mailbox.Notification) (mailbox.DeliveryReport, error) {
	targets := c.sessions.IDs()
	if len(targets) == 0 {
		c.logger.Debug("broadcast skipped, no registered sessions")
		return mailbox.DeliveryReport{Queued: []string{}}, nil
	}
	return c.mb.Send(ctx, targets, n)
}

// SendNotification queues n for the given registered sessions.
func (c *Coordinator) SendNotification(ctx context.Context, targets []string, n mailbox.Notification) (mailbox.DeliveryReport, error) {
	if len(targets) == 0 {
		return mailbox.DeliveryReport{}, gwerrors.NewValidationError("at least one target session is required").WithField("targets")
	}
	for _, target := range targets {
		if err := c.requireSession("targets", target); err != nil {
			c.logger.Failure("notification rejected", err)
			return mailbox.DeliveryReport{}, err
		}
	}
	return c.mb.Send(ctx, targets, n)
}

// PendingNotifications drains a session's inbox. Notifications that need
// acknowledgment stay until AcknowledgeNotification.
func (c *Coordinator) PendingNotifications(sessionID string) []mailbox.Notification {
	c.sessions.Touch(sessionID)
	return c.mb.Pending(sessionID)
}

// AcknowledgeNotification removes an acknowledgment-required notification.
func (c *Coordinator) AcknowledgeNotification(notificationID, sessionID string) bool {
	return c.mb.Acknowledge(notificationID, sessionID)
}
