package resourcelock

import (
	"slices"
	"time"
)

// LockType is the mode a resource is held in.
type LockType string

const (
	// Exclusive admits a single holder and no shared holders.
	Exclusive LockType = "exclusive"
	// Shared admits any number of holders while no exclusive holder exists.
	Shared LockType = "shared"
)

// Valid reports whether t is a known lock type.
func (t LockType) Valid() bool {
	return t == Exclusive || t == Shared
}

// Resource is the lock state of one named resource.
type Resource struct {
	ID             string        `json:"resourceId"`
	LockType       LockType      `json:"lockType"`
	LockedBy       string        `json:"lockedBy,omitempty"`
	SharedSessions []string      `json:"sharedSessions,omitempty"`
	AcquiredAt     time.Time     `json:"acquiredAt"`
	LeaseDuration  time.Duration `json:"leaseDuration"`
}

// ExpiresAt returns when the lease ends, or the zero time for an
// unbounded lease. Expiry is advisory.
func (r Resource) ExpiresAt() time.Time {
	if r.LeaseDuration <= 0 {
		return time.Time{}
	}
	return r.AcquiredAt.Add(r.LeaseDuration)
}

// Holders returns every session holding the resource.
func (r Resource) Holders() []string {
	if r.LockType == Exclusive {
		return []string{r.LockedBy}
	}
	return slices.Clone(r.SharedSessions)
}

// HeldBy reports whether sessionID holds the resource in either mode.
func (r Resource) HeldBy(sessionID string) bool {
	if r.LockType == Exclusive {
		return r.LockedBy == sessionID
	}
	_, found := slices.BinarySearch(r.SharedSessions, sessionID)
	return found
}

func (r Resource) clone() Resource {
	r.SharedSessions = slices.Clone(r.SharedSessions)
	return r
}
