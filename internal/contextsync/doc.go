// Package contextsync keeps one versioned, shared context per conversation
// and lets several assistant sessions write to it concurrently.
//
// # Model
//
// A conversation holds keyed [ContextEntry] values. Every applied write
// replaces the entry wholesale, bumps the entry's own version and the
// conversation version, and stores a SHA-256 checksum of the canonical
// JSON value. Writes that collide with the stored entry (see package
// conflict) are not applied; they are queued as pending [SyncOperation]
// records until [Synchronizer.Sync], [Synchronizer.ResolveConflict] or
// [Synchronizer.Rollback] settles them.
//
// # Consistency
//
// All state changes for all conversations run under one mutex, so
// detection and apply for a key form a single step. Per-session delivery
// in Sync and Handoff runs outside the lock, concurrently, and each
// session's failure is recorded without aborting the others.
//
// # Storage
//
// State lives behind the [Repository] interface. [MemoryRepository] is
// the only implementation: process restart loses every conversation.
// Snapshots are an in-memory rollback log, not crash recovery.
//
// # Maintenance
//
// [Synchronizer.Start] runs a ticker that recomputes health, emits
// syncHealthAlert below the threshold, prunes snapshot history and drops
// expired active conflicts. Pending operations are never touched by
// maintenance.
package contextsync
