package event

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/logging"
)

func TestBus_Subscribe(t *testing.T) {
	bus := NewBus()

	called := false
	id := bus.Subscribe(TypeContextUpdated, func(e Event) {
		called = true
	})

	assert.NotEmpty(t, id)
	assert.Equal(t, 1, bus.SubscriptionCount())
	assert.False(t, called, "handler should not be called until an event is published")
}

func TestBus_Publish(t *testing.T) {
	bus := NewBus()

	var received Event
	bus.Subscribe(TypeContextUpdated, func(e Event) {
		received = e
	})

	bus.Publish(NewContextUpdatedEvent("c1", "op-1", "a", "x", 2, 3))

	require.NotNil(t, received, "handler should have received the event")
	updated, ok := received.(ContextUpdatedEvent)
	require.True(t, ok, "got %T", received)
	assert.Equal(t, "x", updated.Key)
	assert.Equal(t, 3, updated.ContextVersion)
	assert.False(t, updated.Timestamp().IsZero(), "event timestamp should be set")
	assert.EqualValues(t, 1, bus.PublishedCount())
}

func TestBus_ExactlyOncePerListener(t *testing.T) {
	bus := NewBus()

	counts := make([]int, 3)
	for i := range counts {
		bus.Subscribe(TypeSessionNotification, func(e Event) { counts[i]++ })
	}
	wildcard := 0
	bus.SubscribeAll(func(e Event) { wildcard++ })

	bus.Publish(newBaseEvent(TypeSessionNotification))

	assert.Equal(t, []int{1, 1, 1}, counts)
	assert.Equal(t, 1, wildcard, "wildcard listener calls")
}

func TestBus_PublishNoMatchingHandlers(t *testing.T) {
	bus := NewBus()

	bus.Subscribe(TypeContextSynced, func(e Event) {
		assert.Fail(t, "handler should not be called for non-matching event type")
	})

	bus.Publish(newBaseEvent(TypeContextUpdated))
}

func TestBus_SpecificBeforeWildcard(t *testing.T) {
	bus := NewBus()

	var order []string
	bus.SubscribeAll(func(e Event) { order = append(order, "wildcard") })
	bus.Subscribe(TypeOperationInitiated, func(e Event) { order = append(order, "specific") })

	bus.Publish(NewOperationInitiatedEvent("op-1", "deploy", "s1", []string{"s1"}, 0))

	assert.Equal(t, []string{"specific", "wildcard"}, order)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	called := false
	id := bus.Subscribe(TypeContextUpdated, func(e Event) { called = true })

	assert.True(t, bus.Unsubscribe(id))
	assert.False(t, bus.Unsubscribe(id), "second Unsubscribe")
	assert.False(t, bus.Unsubscribe("sub-missing"), "unknown id")

	bus.Publish(newBaseEvent(TypeContextUpdated))
	assert.False(t, called, "handler should not be called after unsubscribe")
	assert.Zero(t, bus.SubscriptionCount())
}

func TestBus_UnsubscribeOneOfMany(t *testing.T) {
	bus := NewBus()

	var first, second int
	id := bus.Subscribe(TypeContextUpdated, func(e Event) { first++ })
	bus.Subscribe(TypeContextUpdated, func(e Event) { second++ })

	bus.Unsubscribe(id)
	bus.Publish(newBaseEvent(TypeContextUpdated))

	assert.Zero(t, first)
	assert.Equal(t, 1, second)
}

func TestBus_Clear(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(TypeContextUpdated, func(e Event) {})
	bus.SubscribeAll(func(e Event) {})

	bus.Clear()

	assert.Zero(t, bus.SubscriptionCount())
}

func TestBus_HandlerPanicRecovery(t *testing.T) {
	var buf bytes.Buffer
	bus := NewBus(WithLogger(logging.NewLoggerWithWriter(&buf, logging.LevelDebug)))

	secondCalled := false
	bus.Subscribe(TypeSyncHealthAlert, func(e Event) { panic("boom") })
	bus.Subscribe(TypeSyncHealthAlert, func(e Event) { secondCalled = true })

	bus.Publish(NewSyncHealthAlertEvent("c1", 40, "degraded", nil))

	assert.True(t, secondCalled, "second handler should still run after first panics")
	assert.Contains(t, buf.String(), "event handler panicked")
}

func TestBus_HandlerMayPublish(t *testing.T) {
	bus := NewBus()

	nested := false
	bus.Subscribe(TypeOperationFailed, func(e Event) {
		bus.Publish(newBaseEvent(TypeOperationCompleted))
	})
	bus.Subscribe(TypeOperationCompleted, func(e Event) { nested = true })

	bus.Publish(NewOperationFailedEvent("op-1", "rejected"))

	assert.True(t, nested, "handler publishing from within a handler should not deadlock")
}

func TestBus_ConcurrentPublish(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	count := 0
	bus.Subscribe(TypeContextUpdated, func(e Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for range 100 {
		wg.Go(func() {
			bus.Publish(newBaseEvent(TypeContextUpdated))
		})
	}
	wg.Wait()

	assert.Equal(t, 100, count)
}

func TestBus_ConcurrentSubscribeUnsubscribe(t *testing.T) {
	bus := NewBus()

	var wg sync.WaitGroup
	for range 50 {
		wg.Go(func() {
			id := bus.Subscribe(TypeContextUpdated, func(e Event) {})
			bus.Publish(newBaseEvent(TypeContextUpdated))
			bus.Unsubscribe(id)
		})
	}
	wg.Wait()

	assert.Zero(t, bus.SubscriptionCount())
}

func TestBus_UniqueIDs(t *testing.T) {
	bus := NewBus()

	seen := make(map[string]bool)
	for range 1000 {
		id := bus.Subscribe(TypeContextUpdated, func(e Event) {})
		require.False(t, seen[id], "duplicate subscription id %q", id)
		seen[id] = true
	}
}

func TestEventTypes(t *testing.T) {
	tests := []struct {
		event Event
		want  string
	}{
		{NewContextSyncInitializedEvent("c1", "sync", nil, 0, false), "contextSyncInitialized"},
		{NewContextUpdatedEvent("c1", "op", "a", "x", 1, 2), "contextUpdated"},
		{NewContextSyncedEvent("c1", 1, 0, 1, 0, nil), "contextSynced"},
		{NewContextRolledBackEvent("c1", "v", 1, 0, 0), "contextRolledBack"},
		{NewConflictDetectedEvent("c1", "op", "x", nil, nil, "medium"), "conflictDetected"},
		{NewSyncHealthAlertEvent("c1", 10, "critical", nil), "syncHealthAlert"},
		{NewSessionRegisteredEvent("s1"), "session_registered"},
		{NewSessionUnregisteredEvent("s1", 0, 0), "session_unregistered"},
		{NewOperationInitiatedEvent("op", "deploy", "s1", nil, 0), "operation_initiated"},
		{NewApprovalRequestedEvent("approval-1", "op", "s1", "ok?", nil), "approval_requested"},
		{NewOperationCompletedEvent("op", nil), "operation_completed"},
		{NewSessionNotificationEvent("s1", "n1", "info", "hi", nil, "low", false, "s2", newBaseEvent("").timestamp), "session_notification"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.event.EventType())
		})
	}
}
