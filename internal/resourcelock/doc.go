// Package resourcelock arbitrates named resources shared by several
// sessions.
//
// A resource is held either exclusively by one session or in shared mode
// by any number of sessions, never both. Requests that cannot be granted
// fail immediately: there is no queuing, fairness or deadlock detection,
// so callers decide whether and when to retry.
//
// # Basic Usage
//
//	reg := resourcelock.NewRegistry(resourcelock.WithBus(bus))
//
//	err := reg.Acquire("deploy/prod", "s1", resourcelock.Exclusive, time.Minute)
//	if errors.Is(err, gwerrors.ErrResourceBusy) {
//		// someone else holds it; try again later
//	}
//
//	// Release when done
//	err = reg.Release("deploy/prod", "s1")
//
//	// Drop everything a session holds when it disconnects
//	reg.ReleaseAll("s1")
//
// # Leases
//
// The lease duration is recorded with the lock and reported through
// [Resource.ExpiresAt], but nothing expires a lock automatically.
//
// # Thread Safety
//
// All [Registry] methods are safe for concurrent use. Events are published
// after the internal lock is released.
package resourcelock
