// Package coordination provides a Coordinator that wires the cross-session
// components of the gateway together.
//
// The Coordinator owns:
//
//   - Session registry (who is connected)
//   - Cross-session operations and their timeout timers
//   - Approval gate (single-shot sign-off per request)
//   - Resource lock registry (exclusive or shared locks)
//   - Mailbox (per-session notification inboxes)
//   - Context synchronizer (shared versioned context)
//
// Every operation that names a session requires that session to be
// registered. Unregistering a session releases all of its locks and drops
// its notification inbox. Approvals it requested stay pending.
//
// Usage:
//
//	coord, err := coordination.New(coordination.Config{Bus: bus})
//	if err != nil {
//	    return err
//	}
//	if err := coord.Start(ctx); err != nil {
//	    return err
//	}
//	defer coord.Shutdown()
//
//	_, _ = coord.RegisterSession("s1")
//	opID, err := coord.InitiateOperation("deploy", "s1", payload, nil)
package coordination
