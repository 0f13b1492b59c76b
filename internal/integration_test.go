// Package internal holds module-wide tests: formatting and lint compliance,
// and end-to-end scenarios that drive the synchronizer and the coordinator
// together over one event bus.
package internal

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/contextsync"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/coordination"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/event"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/mailbox"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/resourcelock"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/testutil"
)

type harness struct {
	clock  *testutil.Clock
	bus    *event.Bus
	events *testutil.EventCollector
	sync   *contextsync.Synchronizer
	coord  *coordination.Coordinator
}

// newHarness wires a synchronizer whose deliveries become context_sync
// notifications, the same way the gateway does.
func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{clock: testutil.NewClock(testutil.Epoch), bus: event.NewBus()}
	h.events = testutil.CollectEvents(t, h.bus)

	syncer := contextsync.AgentSyncerFunc(func(ctx context.Context, agentID string, conv *contextsync.ConversationContext) error {
		_, err := h.coord.SendNotification(ctx, []string{agentID}, mailbox.Notification{
			Type:    "context_sync",
			Message: "context synchronized",
			Data:    map[string]any{"conversationId": conv.ConversationID, "version": conv.Version},
		})
		return err
	})

	var err error
	h.sync, err = contextsync.New(
		contextsync.WithBus(h.bus),
		contextsync.WithClock(h.clock.Now),
		contextsync.WithAgentSyncer(syncer),
	)
	require.NoError(t, err)

	h.coord, err = coordination.New(
		coordination.Config{Bus: h.bus, Synchronizer: h.sync},
		coordination.WithClock(h.clock.Now),
	)
	require.NoError(t, err)
	t.Cleanup(h.coord.Shutdown)
	return h
}

func (h *harness) register(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := h.coord.RegisterSession(id)
		require.NoError(t, err)
	}
}

// TestConcurrentEditsConvergeAfterSync covers two sessions writing the same
// key inside the concurrency window, the queued write being settled by
// Sync, and both sessions hearing about it.
func TestConcurrentEditsConvergeAfterSync(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice", "bob")

	_, err := h.sync.Initialize("conv-1", []string{"alice", "bob"}, map[string]any{"plan": "draft"})
	require.NoError(t, err)

	h.clock.Advance(2 * time.Second)
	_, err = h.sync.Update("conv-1", "alice", "plan", "v1", contextsync.UpdateOptions{})
	require.NoError(t, err)
	h.clock.Advance(300 * time.Millisecond)
	bobOp, err := h.sync.Update("conv-1", "bob", "plan", "v2", contextsync.UpdateOptions{})
	require.NoError(t, err)

	op, err := h.sync.Operation("conv-1", bobOp)
	require.NoError(t, err)
	require.False(t, op.Applied, "bob's write should wait for sync")
	assert.Equal(t, 1, h.events.Count(event.TypeConflictDetected))

	report, err := h.sync.Sync(context.Background(), "conv-1", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{bobOp}, report.AppliedOperations)
	assert.ElementsMatch(t, []string{"alice", "bob"}, report.SyncedSessions)

	entry, ok := h.sync.Entry("conv-1", "plan")
	require.True(t, ok)
	var plan string
	require.NoError(t, json.Unmarshal(entry.Value, &plan))
	assert.Equal(t, "v2", plan)

	for _, s := range []string{"alice", "bob"} {
		pending := h.coord.PendingNotifications(s)
		require.Len(t, pending, 1, "session %s", s)
		assert.Equal(t, "context_sync", pending[0].Type)
	}
	assert.Equal(t, 1, h.events.Count(event.TypeContextSynced))
	assert.Equal(t, 1, report.ResolvedConflicts)
}

// TestApprovedDeploymentWorkflow runs an operation from initiation through
// approval, a locked resource and a coordinated context update to
// completion.
func TestApprovedDeploymentWorkflow(t *testing.T) {
	h := newHarness(t)
	h.register(t, "lead", "reviewer")
	_, err := h.sync.Initialize("conv-1", []string{"lead", "reviewer"}, nil)
	require.NoError(t, err)

	opID, err := h.coord.InitiateOperation("deploy", "lead", map[string]any{"env": "staging"}, []string{"reviewer"})
	require.NoError(t, err)

	approvalID, err := h.coord.RequestApproval(context.Background(), opID, "lead", "ship it?", nil)
	require.NoError(t, err)
	_, err = h.coord.ProcessApprovalResponse(approvalID, "reviewer", true, "")
	require.NoError(t, err)

	op, _ := h.coord.GetOperation(opID)
	require.Equal(t, coordination.StatusInProgress, op.Status)

	ok, err := h.coord.AcquireSharedResource("env:staging", "lead", resourcelock.Exclusive, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = h.coord.AcquireSharedResource("env:staging", "reviewer", resourcelock.Shared, 0)
	require.NoError(t, err)
	assert.False(t, ok, "exclusive lock must block shared holders")

	res, err := h.coord.CoordinateUpdate(context.Background(), coordination.UpdateRequest{
		OperationID:    opID,
		ConversationID: "conv-1",
		AgentID:        "lead",
		ContextPath:    "deploy",
		Changes:        map[string]any{"status": "rolling", "version": "1.4.2"},
		Sessions:       []string{"reviewer"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"deploy.status", "deploy.version"}, res.Applied)
	assert.Equal(t, []string{"reviewer"}, res.Notified)

	_, err = h.coord.CompleteOperation(opID, map[string]any{"url": "https://staging.example"})
	require.NoError(t, err)
	assert.True(t, h.coord.ReleaseSharedResource("env:staging", "lead"))

	for _, typ := range []string{
		event.TypeOperationInitiated,
		event.TypeApprovalRequested,
		event.TypeApprovalProcessed,
		event.TypeResourceAcquired,
		event.TypeContextUpdated,
		event.TypeSessionNotification,
		event.TypeOperationCompleted,
		event.TypeResourceReleased,
	} {
		assert.Positive(t, h.events.Count(typ), "expected %s", typ)
	}

	pending := h.coord.PendingNotifications("reviewer")
	require.Len(t, pending, 1)
	assert.Equal(t, "context_update", pending[0].Type)
}

// TestUnregisterDuringWorkReleasesEverything checks that a session leaving
// mid-operation frees its locks and inbox while the operation and its
// context survive.
func TestUnregisterDuringWorkReleasesEverything(t *testing.T) {
	h := newHarness(t)
	h.register(t, "a", "b")

	opID, err := h.coord.InitiateOperation("migrate", "a", nil, nil)
	require.NoError(t, err)
	_, err = h.coord.AcquireSharedResource("db", "a", resourcelock.Exclusive, 0)
	require.NoError(t, err)
	_, err = h.coord.SendNotification(context.Background(), []string{"a"}, mailbox.Notification{
		Type: "ping", Message: "hello", RequiresAcknowledgment: true,
	})
	require.NoError(t, err)

	removed, err := h.coord.UnregisterSession("a")
	require.NoError(t, err)
	require.True(t, removed)

	_, held := h.coord.Resource("db")
	assert.False(t, held)
	assert.Equal(t, 0, h.coord.Mailbox().PendingCount("a"))

	op, ok := h.coord.GetOperation(opID)
	require.True(t, ok)
	assert.Equal(t, coordination.StatusPending, op.Status)

	ok, err = h.coord.AcquireSharedResource("db", "b", resourcelock.Exclusive, 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

// TestConcurrentSessionsShareOneBus hammers the coordinator and the
// synchronizer from many goroutines; run with -race.
func TestConcurrentSessionsShareOneBus(t *testing.T) {
	h := newHarness(t)
	const sessions = 8

	ids := make([]string, sessions)
	for i := range sessions {
		ids[i] = "s" + string(rune('a'+i))
	}
	h.register(t, ids...)
	_, err := h.sync.Initialize("conv-1", ids, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Go(func() {
			_, _ = h.sync.Update("conv-1", id, "notes."+id, id, contextsync.UpdateOptions{})
			_, _ = h.coord.AcquireSharedResource("repo", id, resourcelock.Shared, 0)
			_, _ = h.coord.BroadcastNotification(context.Background(), mailbox.Notification{
				Type: "progress", Message: id + " working", From: id,
			})
			h.coord.ReleaseSharedResource("repo", id)
		})
	}
	wg.Wait()

	snap, ok := h.sync.Snapshot("conv-1")
	require.True(t, ok)
	assert.Len(t, snap.Entries, sessions)
	assert.Equal(t, sessions*sessions, h.coord.Mailbox().TotalPending())
	_, held := h.coord.Resource("repo")
	assert.False(t, held)
}
