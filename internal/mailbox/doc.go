// Package mailbox holds notifications addressed to gateway sessions.
//
// Assistants connected over MCP cannot be called back, so every session has
// an in-memory inbox they poll. A notification that does not require
// acknowledgment leaves the inbox the first time it is read; one that does
// stays until the session acknowledges it.
//
// # Main Types
//
//   - [Notification]: one message with type, severity, payload and sender
//   - [Mailbox]: the per-session inboxes plus optional push delivery
//   - [Deliverer]: a push primitive invoked once per target session
//   - [DeliveryReport]: per-session outcome of one send
//
// # Basic Usage
//
//	mb := mailbox.New(mailbox.WithBus(bus))
//
//	report, err := mb.Send(ctx, []string{"s1", "s2"}, mailbox.Notification{
//	    Type:    "deploy",
//	    Message: "prod deploy starting",
//	    From:    "s0",
//	})
//
//	// Poll
//	pending := mb.Pending("s1")
//
//	// Acknowledge the ones that asked for it
//	mb.Acknowledge(pending[0].ID, "s1")
//
// # Thread Safety
//
// [Mailbox] is safe for concurrent use. Events are published and pushes are
// made after the internal lock is released.
package mailbox
