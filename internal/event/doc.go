// Package event provides the synchronous pub-sub bus through which the
// context synchronizer and the cross-session coordinator report state
// changes to collaborators (an update orchestrator, an approval workflow
// manager, the MCP tool layer, tests).
//
// # Main Types
//
//   - [Event]: interface with EventType() and Timestamp()
//   - [Bus]: synchronous dispatcher, safe for concurrent use
//   - [Handler]: func(Event)
//
// # Event Categories
//
// Context lifecycle: contextSyncInitialized, contextUpdated, contextSynced,
// contextRolledBack, conflictDetected, conflictResolved, syncHealthAlert,
// contextHandedOff.
//
// Coordination: session_registered, session_unregistered,
// operation_initiated, approval_requested, approval_processed,
// operation_completed, operation_failed, operation_timeout,
// resource_acquired, resource_released, session_notification,
// notification_acknowledged.
//
// # Delivery Contract
//
// One state change yields exactly one Publish, and Publish calls every
// matching handler exactly once before returning. Publishers release their
// own locks before publishing so handlers may call back into them.
//
//	bus := event.NewBus(event.WithLogger(logger))
//	bus.Subscribe(event.TypeConflictDetected, func(e event.Event) {
//	    c := e.(event.ConflictDetectedEvent)
//	    log.Warn("conflict", "key", c.Key)
//	})
package event
