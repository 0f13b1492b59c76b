// Package approval provides single-shot approval gates for cross-session
// operations.
//
// A session that wants sign-off before an operation proceeds calls
// [Gate.Request], which records a pending [Request] and publishes an
// approval_requested event. Another session (or the requester itself)
// answers with [Gate.Respond]. The record is removed on the first
// response, approved or not, so a request can never be answered twice.
//
// The gate has no notion of quorum. Callers that need several approvers
// request once per approver and aggregate the responses themselves.
//
// # Usage
//
//	gate := approval.NewGate(approval.WithBus(bus))
//
//	req, err := gate.Request(opID, "s1", "deploy to prod?", nil)
//	// ...
//	resp, err := gate.Respond(req.ID, "s2", false, "change freeze")
//
// # Thread Safety
//
// All methods on [Gate] are safe for concurrent use via an internal mutex.
// Events are published after the mutex is released.
package approval
