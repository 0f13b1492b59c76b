package resourcelock

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	gwerrors "github.com/LucidWonk/environment-mcp-gateway-sub002/internal/errors"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/event"
)

// Registry tracks which sessions hold which resources.
type Registry struct {
	mu        sync.RWMutex
	resources map[string]*Resource
	bus       *event.Bus
	now       func() time.Time
}

// Option configures a Registry.
type Option func(*Registry)

// WithBus publishes resource_acquired and resource_released events to bus.
func WithBus(bus *event.Bus) Option {
	return func(r *Registry) { r.bus = bus }
}

// WithClock sets the time source for AcquiredAt.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		resources: make(map[string]*Resource),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Acquire tries to take resourceID for sessionID in the given mode without
// waiting. Re-acquiring a lock already held in the same mode succeeds. A
// request that conflicts with current holders fails with an error wrapping
// ErrResourceBusy; malformed requests fail with a ValidationError.
func (r *Registry) Acquire(resourceID, sessionID string, lockType LockType, lease time.Duration) error {
	switch {
	case resourceID == "":
		return gwerrors.NewValidationError("resource id is required").WithField("resourceId")
	case sessionID == "":
		return gwerrors.NewValidationError("session id is required").WithField("sessionId")
	case !lockType.Valid():
		return gwerrors.NewValidationError("unknown lock type").WithField("lockType").WithValue(lockType)
	}

	r.mu.Lock()
	changed, err := r.acquireLocked(resourceID, sessionID, lockType, lease)
	r.mu.Unlock()
	if err != nil {
		return err
	}

	if changed {
		r.publish(event.NewResourceAcquiredEvent(resourceID, sessionID, string(lockType)))
	}
	return nil
}

// acquireLocked applies one acquisition while the write lock is held. It
// reports whether state changed, or why the request was refused.
func (r *Registry) acquireLocked(resourceID, sessionID string, lockType LockType, lease time.Duration) (bool, error) {
	res, held := r.resources[resourceID]
	if !held {
		res = &Resource{
			ID:            resourceID,
			LockType:      lockType,
			AcquiredAt:    r.now(),
			LeaseDuration: lease,
		}
		if lockType == Exclusive {
			res.LockedBy = sessionID
		} else {
			res.SharedSessions = []string{sessionID}
		}
		r.resources[resourceID] = res
		return true, nil
	}

	if res.LockType != lockType || lockType == Exclusive {
		if res.LockType == lockType && res.LockedBy == sessionID {
			return false, nil
		}
		return false, busyError(res, sessionID)
	}

	i, found := slices.BinarySearch(res.SharedSessions, sessionID)
	if found {
		return false, nil
	}
	res.SharedSessions = slices.Insert(res.SharedSessions, i, sessionID)
	return true, nil
}

func busyError(res *Resource, sessionID string) error {
	holders := res.SharedSessions
	if res.LockType == Exclusive {
		holders = []string{res.LockedBy}
	}
	msg := fmt.Sprintf("%s is held %s by %s", res.ID, res.LockType, strings.Join(holders, ", "))
	return gwerrors.NewCoordinatorError(msg, gwerrors.ErrResourceBusy).WithSession(sessionID)
}

// Release drops sessionID's hold on resourceID. It fails with an error
// wrapping ErrResourceNotHeld when the session held nothing there.
func (r *Registry) Release(resourceID, sessionID string) error {
	r.mu.Lock()
	released := r.releaseLocked(resourceID, sessionID)
	r.mu.Unlock()

	if !released {
		return gwerrors.NewCoordinatorError(resourceID, gwerrors.ErrResourceNotHeld).WithSession(sessionID)
	}
	r.publish(event.NewResourceReleasedEvent(resourceID, sessionID))
	return nil
}

func (r *Registry) releaseLocked(resourceID, sessionID string) bool {
	res, ok := r.resources[resourceID]
	if !ok || !res.HeldBy(sessionID) {
		return false
	}
	if res.LockType == Shared {
		i, _ := slices.BinarySearch(res.SharedSessions, sessionID)
		res.SharedSessions = slices.Delete(res.SharedSessions, i, i+1)
		if len(res.SharedSessions) > 0 {
			return true
		}
	}
	delete(r.resources, resourceID)
	return true
}

// ReleaseAll drops every hold sessionID has and returns the released
// resource IDs in sorted order.
func (r *Registry) ReleaseAll(sessionID string) []string {
	r.mu.Lock()
	var released []string
	for id, res := range r.resources {
		if res.HeldBy(sessionID) {
			released = append(released, id)
		}
	}
	slices.Sort(released)
	for _, id := range released {
		r.releaseLocked(id, sessionID)
	}
	r.mu.Unlock()

	for _, id := range released {
		r.publish(event.NewResourceReleasedEvent(id, sessionID))
	}
	return released
}

// Get returns a copy of the lock state of resourceID.
func (r *Registry) Get(resourceID string) (Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[resourceID]
	if !ok {
		return Resource{}, false
	}
	return res.clone(), true
}

// IsAvailable reports whether resourceID could be acquired in mode lockType
// by a session that does not hold it yet.
func (r *Registry) IsAvailable(resourceID string, lockType LockType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[resourceID]
	if !ok {
		return true
	}
	return lockType == Shared && res.LockType == Shared
}

// HeldBy returns the resources sessionID holds, sorted.
func (r *Registry) HeldBy(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, res := range r.resources {
		if res.HeldBy(sessionID) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// List returns every held resource ordered by ID.
func (r *Registry) List() []Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Resource, 0, len(r.resources))
	for _, res := range r.resources {
		out = append(out, res.clone())
	}
	slices.SortFunc(out, func(a, b Resource) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

// Count returns the number of held resources.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.resources)
}

// Clear drops every lock without publishing events.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resources = make(map[string]*Resource)
}

func (r *Registry) publish(e event.Event) {
	if r.bus != nil {
		r.bus.Publish(e)
	}
}
