package resourcelock

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/LucidWonk/environment-mcp-gateway-sub002/internal/errors"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/event"
)

var epoch = time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)

func newTestRegistry(t *testing.T) (*Registry, *event.Bus) {
	t.Helper()
	bus := event.NewBus()
	return NewRegistry(WithBus(bus), WithClock(func() time.Time { return epoch })), bus
}

// tryAcquire reports whether the lock was granted, failing the test on
// anything but a busy refusal.
func tryAcquire(t *testing.T, r *Registry, resourceID, sessionID string, lt LockType) bool {
	t.Helper()
	err := r.Acquire(resourceID, sessionID, lt, time.Minute)
	if err != nil {
		require.ErrorIs(t, err, gwerrors.ErrResourceBusy, "Acquire(%s, %s, %s)", resourceID, sessionID, lt)
		return false
	}
	return true
}

func TestAcquire(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(r *Registry)
		session  string
		lockType LockType
		want     bool
	}{
		{
			name:     "exclusive on free resource",
			session:  "s1",
			lockType: Exclusive,
			want:     true,
		},
		{
			name:     "shared on free resource",
			session:  "s1",
			lockType: Shared,
			want:     true,
		},
		{
			name: "second exclusive is denied",
			setup: func(r *Registry) {
				r.Acquire("res1", "s1", Exclusive, 0) //nolint:errcheck
			},
			session:  "s2",
			lockType: Exclusive,
			want:     false,
		},
		{
			name: "exclusive holder re-acquires",
			setup: func(r *Registry) {
				r.Acquire("res1", "s1", Exclusive, 0) //nolint:errcheck
			},
			session:  "s1",
			lockType: Exclusive,
			want:     true,
		},
		{
			name: "shared joins shared",
			setup: func(r *Registry) {
				r.Acquire("res1", "s1", Shared, 0) //nolint:errcheck
			},
			session:  "s2",
			lockType: Shared,
			want:     true,
		},
		{
			name: "shared denied under exclusive",
			setup: func(r *Registry) {
				r.Acquire("res1", "s1", Exclusive, 0) //nolint:errcheck
			},
			session:  "s2",
			lockType: Shared,
			want:     false,
		},
		{
			name: "exclusive denied under shared",
			setup: func(r *Registry) {
				r.Acquire("res1", "s1", Shared, 0) //nolint:errcheck
			},
			session:  "s2",
			lockType: Exclusive,
			want:     false,
		},
		{
			name: "sole shared holder cannot upgrade",
			setup: func(r *Registry) {
				r.Acquire("res1", "s1", Shared, 0) //nolint:errcheck
			},
			session:  "s1",
			lockType: Exclusive,
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, _ := newTestRegistry(t)
			if tt.setup != nil {
				tt.setup(reg)
			}
			assert.Equal(t, tt.want, tryAcquire(t, reg, "res1", tt.session, tt.lockType))
		})
	}
}

func TestAcquire_BusyErrorNamesHolders(t *testing.T) {
	reg, _ := newTestRegistry(t)
	require.NoError(t, reg.Acquire("res1", "s1", Shared, 0))
	require.NoError(t, reg.Acquire("res1", "s2", Shared, 0))

	err := reg.Acquire("res1", "s3", Exclusive, 0)
	require.ErrorIs(t, err, gwerrors.ErrResourceBusy)
	assert.ErrorContains(t, err, "res1 is held shared by s1, s2")

	var coordErr *gwerrors.CoordinatorError
	require.ErrorAs(t, err, &coordErr)
	assert.Equal(t, "s3", coordErr.SessionID)
}

func TestAcquire_Validation(t *testing.T) {
	reg, _ := newTestRegistry(t)
	tests := []struct {
		name     string
		resource string
		session  string
		lockType LockType
	}{
		{"missing resource", "", "s1", Exclusive},
		{"missing session", "res1", "", Exclusive},
		{"unknown lock type", "res1", "s1", LockType("read")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Acquire(tt.resource, tt.session, tt.lockType, 0)
			assert.ErrorIs(t, err, gwerrors.ErrInvalidInput)
			assert.NotErrorIs(t, err, gwerrors.ErrResourceBusy)
		})
	}
}

func TestExclusiveHandover(t *testing.T) {
	reg, _ := newTestRegistry(t)

	require.True(t, tryAcquire(t, reg, "res1", "s1", Exclusive), "s1 exclusive should succeed")
	require.False(t, tryAcquire(t, reg, "res1", "s2", Exclusive), "s2 exclusive should fail while s1 holds res1")
	require.NoError(t, reg.Release("res1", "s1"))
	require.True(t, tryAcquire(t, reg, "res1", "s2", Exclusive), "s2 exclusive should succeed after release")

	res, ok := reg.Get("res1")
	require.True(t, ok)
	assert.Equal(t, "s2", res.LockedBy)
}

func TestRelease(t *testing.T) {
	reg, _ := newTestRegistry(t)
	tryAcquire(t, reg, "shared", "s1", Shared)
	tryAcquire(t, reg, "shared", "s2", Shared)
	tryAcquire(t, reg, "excl", "s1", Exclusive)

	assert.ErrorIs(t, reg.Release("excl", "s2"), gwerrors.ErrResourceNotHeld)
	assert.ErrorIs(t, reg.Release("missing", "s1"), gwerrors.ErrResourceNotHeld)

	require.NoError(t, reg.Release("shared", "s1"))
	res, ok := reg.Get("shared")
	require.True(t, ok, "shared resource dropped while s2 still holds it")
	assert.Equal(t, []string{"s2"}, res.SharedSessions)

	require.NoError(t, reg.Release("shared", "s2"))
	_, ok = reg.Get("shared")
	assert.False(t, ok, "resource still present after last shared holder released")
	assert.True(t, reg.IsAvailable("shared", Exclusive))
}

func TestRelease_RefusalPublishesNothing(t *testing.T) {
	reg, bus := newTestRegistry(t)
	released := 0
	bus.Subscribe(event.TypeResourceReleased, func(event.Event) { released++ })

	tryAcquire(t, reg, "res1", "s1", Exclusive)
	require.Error(t, reg.Release("res1", "s2"))
	assert.Zero(t, released)
}

func TestReleaseAll(t *testing.T) {
	reg, bus := newTestRegistry(t)
	var released []string
	bus.Subscribe(event.TypeResourceReleased, func(e event.Event) {
		released = append(released, e.(event.ResourceReleasedEvent).ResourceID)
	})

	tryAcquire(t, reg, "b", "s1", Exclusive)
	tryAcquire(t, reg, "a", "s1", Shared)
	tryAcquire(t, reg, "a", "s2", Shared)
	tryAcquire(t, reg, "c", "s2", Exclusive)

	assert.Equal(t, []string{"a", "b"}, reg.ReleaseAll("s1"))
	assert.Equal(t, []string{"a", "b"}, released)
	assert.Equal(t, []string{"a", "c"}, reg.HeldBy("s2"))
	assert.Nil(t, reg.ReleaseAll("nobody"))
}

func TestAcquirePublishesEvent(t *testing.T) {
	reg, bus := newTestRegistry(t)
	var events []event.ResourceAcquiredEvent
	bus.Subscribe(event.TypeResourceAcquired, func(e event.Event) {
		events = append(events, e.(event.ResourceAcquiredEvent))
	})

	tryAcquire(t, reg, "res1", "s1", Exclusive)
	tryAcquire(t, reg, "res1", "s1", Exclusive)
	tryAcquire(t, reg, "res1", "s2", Exclusive)

	require.Len(t, events, 1)
	assert.Equal(t, "s1", events[0].SessionID)
	assert.Equal(t, string(Exclusive), events[0].LockType)
}

func TestResource_Lease(t *testing.T) {
	reg, _ := newTestRegistry(t)
	require.NoError(t, reg.Acquire("res1", "s1", Exclusive, 30*time.Second))

	res, _ := reg.Get("res1")
	assert.Equal(t, epoch.Add(30*time.Second), res.ExpiresAt())
	assert.True(t, (Resource{}).ExpiresAt().IsZero(), "zero lease should have zero expiry")
}

func TestListAndClear(t *testing.T) {
	reg, _ := newTestRegistry(t)
	tryAcquire(t, reg, "z", "s1", Exclusive)
	tryAcquire(t, reg, "a", "s1", Shared)

	list := reg.List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "z", list[1].ID)
	assert.Equal(t, 2, reg.Count())

	reg.Clear()
	assert.Zero(t, reg.Count())
}

// TestConcurrentExclusivity checks that exclusive and shared holders never
// coexist under contention.
func TestConcurrentExclusivity(t *testing.T) {
	reg := NewRegistry()
	var wg sync.WaitGroup
	var mu sync.Mutex
	exclusiveWins := 0

	for i := range 40 {
		session := fmt.Sprintf("s%d", i)
		lt := Shared
		if i%2 == 0 {
			lt = Exclusive
		}
		wg.Go(func() {
			err := reg.Acquire("res1", session, lt, 0)
			if err != nil && !assert.ErrorIs(t, err, gwerrors.ErrResourceBusy) {
				return
			}
			if err == nil && lt == Exclusive {
				mu.Lock()
				exclusiveWins++
				mu.Unlock()
			}
			res, held := reg.Get("res1")
			if held && res.LockedBy != "" {
				assert.Empty(t, res.SharedSessions, "exclusive and shared holders coexist")
			}
		})
	}
	wg.Wait()

	assert.LessOrEqual(t, exclusiveWins, 1, "sessions that won the exclusive lock")
}
