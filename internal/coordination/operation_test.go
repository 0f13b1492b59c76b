package coordination

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/contextsync"
	gwerrors "github.com/LucidWonk/environment-mcp-gateway-sub002/internal/errors"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/event"
	"github.com/LucidWonk/environment-mcp-gateway-sub002/internal/testutil"
)

func TestInitiateOperation(t *testing.T) {
	f := newFixture(t)
	f.register(t, "s1", "s2")

	opID, err := f.coord.InitiateOperation("deploy", "s1", map[string]any{"env": "prod"}, []string{"s2", "s1", ""})
	require.NoError(t, err)
	assert.Equal(t, "op-deploy-1", opID)

	op, ok := f.coord.GetOperation(opID)
	require.True(t, ok)
	assert.Equal(t, StatusPending, op.Status)
	assert.Equal(t, "s1", op.InitiatingSessionID)
	assert.Equal(t, []string{"s1", "s2"}, op.AffectedSessions)
	assert.Equal(t, "prod", op.Payload["env"])
	assert.Zero(t, op.Timeout)
	assert.True(t, op.TimeoutDeadline.IsZero())

	evt, ok := f.events.Last(event.TypeOperationInitiated).(event.OperationInitiatedEvent)
	require.True(t, ok)
	assert.Equal(t, opID, evt.OperationID)
	assert.Equal(t, []string{"s1", "s2"}, evt.AffectedSessions)
}

func TestInitiateOperation_DefaultsAffectedToInitiator(t *testing.T) {
	f := newFixture(t)
	f.register(t, "s1")

	opID, err := f.coord.InitiateOperation("deploy", "s1", nil, nil)
	require.NoError(t, err)
	op, _ := f.coord.GetOperation(opID)
	assert.Equal(t, []string{"s1"}, op.AffectedSessions)
}

func TestInitiateOperation_Rejections(t *testing.T) {
	f := newFixture(t)
	f.register(t, "s1")

	tests := []struct {
		name      string
		opType    string
		initiator string
		payload   map[string]any
		wantErr   error
	}{
		{"unregistered initiator", "deploy", "ghost", nil, gwerrors.ErrSessionNotRegistered},
		{"empty initiator", "deploy", "", nil, gwerrors.ErrSessionNotRegistered},
		{"empty type", "", "s1", nil, gwerrors.ErrInvalidInput},
		{"bad timeout string", "deploy", "s1", map[string]any{"timeout": "soon"}, gwerrors.ErrInvalidInput},
		{"negative timeout", "deploy", "s1", map[string]any{"timeout": -5}, gwerrors.ErrInvalidInput},
		{"unsupported timeout type", "deploy", "s1", map[string]any{"timeout": true}, gwerrors.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.coord.InitiateOperation(tt.opType, tt.initiator, tt.payload, nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Empty(t, f.coord.ListOperations(""))
	assert.Zero(t, f.events.Count(event.TypeOperationInitiated))
}

func TestParseTimeout(t *testing.T) {
	tests := []struct {
		name string
		raw  any
		want time.Duration
	}{
		{"absent", nil, 0},
		{"int milliseconds", 1500, 1500 * time.Millisecond},
		{"int64 milliseconds", int64(250), 250 * time.Millisecond},
		{"float milliseconds", 2000.0, 2 * time.Second},
		{"json number", json.Number("100"), 100 * time.Millisecond},
		{"duration string", "90s", 90 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := map[string]any{}
			if tt.raw != nil {
				payload[TimeoutKey] = tt.raw
			}
			got, err := parseTimeout(payload)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Initiate, request approval, reject: the operation fails and the approval
// is gone.
func TestApprovalRejectionFailsOperation(t *testing.T) {
	f := newFixture(t)
	f.register(t, "s1")
	ctx := context.Background()

	opID, err := f.coord.InitiateOperation("approval_required", "s1", map[string]any{"change": "drop table"}, nil)
	require.NoError(t, err)
	approvalID, err := f.coord.RequestApproval(ctx, opID, "s1", "msg", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, f.events.Count(event.TypeApprovalRequested))

	resp, err := f.coord.ProcessApprovalResponse(approvalID, "s1", false, "reason")
	require.NoError(t, err)
	assert.False(t, resp.Approved)

	op, _ := f.coord.GetOperation(opID)
	assert.Equal(t, StatusFailed, op.Status)
	assert.Equal(t, "reason", op.FailureReason)

	_, pending := f.coord.GetPendingApproval(approvalID)
	assert.False(t, pending)
	assert.Equal(t, 1, f.events.Count(event.TypeApprovalProcessed))
	assert.Equal(t, 1, f.events.Count(event.TypeOperationFailed))

	_, err = f.coord.ProcessApprovalResponse(approvalID, "s1", true, "")
	assert.ErrorIs(t, err, gwerrors.ErrNotFound)
}

func TestApprovalDoesNotComplete(t *testing.T) {
	f := newFixture(t)
	f.register(t, "s1", "s2")
	ctx := context.Background()

	opID, err := f.coord.InitiateOperation("deploy", "s1", nil, []string{"s2"})
	require.NoError(t, err)
	approvalID, err := f.coord.RequestApproval(ctx, opID, "s1", "ship it?", nil)
	require.NoError(t, err)

	_, err = f.coord.ProcessApprovalResponse(approvalID, "s2", true, "")
	require.NoError(t, err)

	op, _ := f.coord.GetOperation(opID)
	assert.Equal(t, StatusInProgress, op.Status)
	assert.Zero(t, f.events.Count(event.TypeOperationCompleted))

	op, err = f.coord.CompleteOperation(opID, map[string]any{"url": "https://example.test"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, op.Status)
	assert.Equal(t, "https://example.test", op.Result["url"])
	assert.Equal(t, 1, f.events.Count(event.TypeOperationCompleted))
}

func TestRequestApproval_Rejections(t *testing.T) {
	f := newFixture(t)
	f.register(t, "s1")
	ctx := context.Background()

	_, err := f.coord.RequestApproval(ctx, "op-missing", "s1", "ok?", nil)
	assert.ErrorIs(t, err, gwerrors.ErrNotFound)

	opID, err := f.coord.InitiateOperation("deploy", "s1", nil, nil)
	require.NoError(t, err)

	_, err = f.coord.RequestApproval(ctx, opID, "ghost", "ok?", nil)
	assert.ErrorIs(t, err, gwerrors.ErrSessionNotRegistered)

	_, err = f.coord.RequestApproval(ctx, opID, "s1", "", nil)
	assert.ErrorIs(t, err, gwerrors.ErrInvalidInput)

	_, err = f.coord.FailOperation(opID, "abandoned")
	require.NoError(t, err)
	_, err = f.coord.RequestApproval(ctx, opID, "s1", "ok?", nil)
	assert.ErrorIs(t, err, gwerrors.ErrOperationTerminal)
}

func TestProcessApprovalResponse_RequiresRegisteredResponder(t *testing.T) {
	f := newFixture(t)
	f.register(t, "s1")

	opID, _ := f.coord.InitiateOperation("deploy", "s1", nil, nil)
	approvalID, err := f.coord.RequestApproval(context.Background(), opID, "s1", "ok?", nil)
	require.NoError(t, err)

	_, err = f.coord.ProcessApprovalResponse(approvalID, "ghost", true, "")
	assert.ErrorIs(t, err, gwerrors.ErrSessionNotRegistered)
	_, pending := f.coord.GetPendingApproval(approvalID)
	assert.True(t, pending)
}

func TestMultipleApprovalsAreIndependent(t *testing.T) {
	f := newFixture(t)
	f.register(t, "s1", "s2", "s3")
	ctx := context.Background()

	opID, _ := f.coord.InitiateOperation("deploy", "s1", nil, []string{"s2", "s3"})
	first, err := f.coord.RequestApproval(ctx, opID, "s1", "s2, ok?", nil)
	require.NoError(t, err)
	second, err := f.coord.RequestApproval(ctx, opID, "s1", "s3, ok?", nil)
	require.NoError(t, err)
	assert.Len(t, f.coord.PendingApprovals(opID), 2)

	_, err = f.coord.ProcessApprovalResponse(first, "s2", true, "")
	require.NoError(t, err)
	assert.Len(t, f.coord.PendingApprovals(opID), 1)

	_, err = f.coord.ProcessApprovalResponse(second, "s3", false, "not today")
	require.NoError(t, err)
	op, _ := f.coord.GetOperation(opID)
	assert.Equal(t, StatusFailed, op.Status)
}

func TestOperationLifecycle_TerminalStatesAreFinal(t *testing.T) {
	f := newFixture(t)
	f.register(t, "s1")

	opID, _ := f.coord.InitiateOperation("deploy", "s1", nil, nil)

	op, err := f.coord.StartOperation(opID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, op.Status)
	_, err = f.coord.StartOperation(opID)
	require.NoError(t, err, "starting twice is a no-op")

	_, err = f.coord.CompleteOperation(opID, nil)
	require.NoError(t, err)

	_, err = f.coord.CompleteOperation(opID, nil)
	assert.ErrorIs(t, err, gwerrors.ErrOperationTerminal)
	_, err = f.coord.FailOperation(opID, "late")
	assert.ErrorIs(t, err, gwerrors.ErrOperationTerminal)
	_, err = f.coord.StartOperation(opID)
	assert.ErrorIs(t, err, gwerrors.ErrOperationTerminal)

	_, err = f.coord.CompleteOperation("op-missing", nil)
	assert.ErrorIs(t, err, gwerrors.ErrNotFound)
}

func TestOperationTimeout(t *testing.T) {
	f := newFixture(t)
	f.register(t, "s1")

	opID, err := f.coord.InitiateOperation("deploy", "s1", map[string]any{"timeout": 20}, nil)
	require.NoError(t, err)

	op, _ := f.coord.GetOperation(opID)
	assert.Equal(t, 20*time.Millisecond, op.Timeout)
	assert.Equal(t, testutil.Epoch.Add(20*time.Millisecond), op.TimeoutDeadline)

	require.Eventually(t, func() bool {
		op, _ := f.coord.GetOperation(opID)
		return op.Status == StatusTimeout
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, f.events.Count(event.TypeOperationTimeout))
	_, err = f.coord.CompleteOperation(opID, nil)
	assert.ErrorIs(t, err, gwerrors.ErrOperationTerminal)
}

func TestOperationTimeout_CompletionCancels(t *testing.T) {
	f := newFixture(t)
	f.register(t, "s1")

	opID, err := f.coord.InitiateOperation("deploy", "s1", map[string]any{"timeout": "30ms"}, nil)
	require.NoError(t, err)
	_, err = f.coord.CompleteOperation(opID, nil)
	require.NoError(t, err)

	assert.Never(t, func() bool {
		return f.events.Count(event.TypeOperationTimeout) > 0
	}, 150*time.Millisecond, 10*time.Millisecond)

	op, _ := f.coord.GetOperation(opID)
	assert.Equal(t, StatusCompleted, op.Status)
}

func TestOperationTimeout_Default(t *testing.T) {
	f := newFixture(t, WithDefaultOperationTimeout(20*time.Millisecond))
	f.register(t, "s1")

	opID, err := f.coord.InitiateOperation("deploy", "s1", nil, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		op, _ := f.coord.GetOperation(opID)
		return op.Status == StatusTimeout
	}, 2*time.Second, 5*time.Millisecond)
}

func TestListOperations(t *testing.T) {
	f := newFixture(t)
	f.register(t, "s1", "s2", "s3")

	first, _ := f.coord.InitiateOperation("deploy", "s1", nil, []string{"s2"})
	f.clock.Advance(time.Second)
	second, _ := f.coord.InitiateOperation("review", "s3", nil, nil)
	f.clock.Advance(time.Second)
	third, _ := f.coord.InitiateOperation("rollback", "s2", nil, nil)

	ids := func(ops []Operation) []string {
		out := make([]string, len(ops))
		for i, op := range ops {
			out[i] = op.ID
		}
		return out
	}
	assert.Equal(t, []string{first, second, third}, ids(f.coord.ListOperations("")))
	assert.Equal(t, []string{first, third}, ids(f.coord.ListOperations("s2")))
	assert.Equal(t, []string{second}, ids(f.coord.ListOperations("s3")))
}

func TestCoordinateUpdate_Fallback(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a", "b")
	sync := f.coord.Synchronizer()
	_, err := sync.Initialize("c1", []string{"a", "b"}, map[string]any{"plan.x": 1})
	require.NoError(t, err)

	opID, _ := f.coord.InitiateOperation("holistic_update", "a", nil, []string{"b"})
	f.clock.Advance(5 * time.Second)

	res, err := f.coord.CoordinateUpdate(context.Background(), UpdateRequest{
		OperationID:    opID,
		ConversationID: "c1",
		AgentID:        "a",
		ContextPath:    "plan.",
		Changes:        map[string]any{"x": 2, "y": "new"},
		Sessions:       []string{"b"},
	})
	require.NoError(t, err)
	assert.False(t, res.Delegated)
	assert.Equal(t, opID, res.OperationID)
	assert.Equal(t, []string{"plan.x", "plan.y"}, res.Applied)
	assert.Empty(t, res.Queued)
	assert.Equal(t, []string{"b"}, res.Notified)

	entry, ok := sync.Entry("c1", "plan.x")
	require.True(t, ok)
	assert.Equal(t, 2, entry.Version)

	pending := f.coord.PendingNotifications("b")
	require.Len(t, pending, 1)
	assert.Equal(t, "context_update", pending[0].Type)
	assert.Equal(t, "a", pending[0].From)
}

func TestCoordinateUpdate_QueuesConflicts(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a", "b")
	sync := f.coord.Synchronizer()
	_, err := sync.Initialize("c1", []string{"a", "b"}, map[string]any{"x": 1})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Second)
	_, err = sync.Update("c1", "a", "x", 2, contextsync.UpdateOptions{})
	require.NoError(t, err)

	f.clock.Advance(500 * time.Millisecond)
	res, err := f.coord.CoordinateUpdate(context.Background(), UpdateRequest{
		ConversationID: "c1",
		AgentID:        "b",
		Changes:        map[string]any{"x": 3},
	})
	require.NoError(t, err)
	assert.Empty(t, res.Applied)
	assert.Equal(t, []string{"x"}, res.Queued)
	assert.Empty(t, res.Notified)
}

func TestCoordinateUpdate_Rejections(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a")
	ctx := context.Background()
	_, err := f.coord.Synchronizer().Initialize("c1", []string{"a"}, nil)
	require.NoError(t, err)

	done, _ := f.coord.InitiateOperation("deploy", "a", nil, nil)
	_, err = f.coord.CompleteOperation(done, nil)
	require.NoError(t, err)

	tests := []struct {
		name    string
		req     UpdateRequest
		wantErr error
	}{
		{"no conversation", UpdateRequest{AgentID: "a", Changes: map[string]any{"x": 1}}, gwerrors.ErrInvalidInput},
		{"no agent", UpdateRequest{ConversationID: "c1", Changes: map[string]any{"x": 1}}, gwerrors.ErrInvalidInput},
		{"no changes", UpdateRequest{ConversationID: "c1", AgentID: "a"}, gwerrors.ErrInvalidInput},
		{"unknown operation", UpdateRequest{OperationID: "op-x", ConversationID: "c1", AgentID: "a", Changes: map[string]any{"x": 1}}, gwerrors.ErrNotFound},
		{"finished operation", UpdateRequest{OperationID: done, ConversationID: "c1", AgentID: "a", Changes: map[string]any{"x": 1}}, gwerrors.ErrOperationTerminal},
		{"unregistered session", UpdateRequest{ConversationID: "c1", AgentID: "a", Changes: map[string]any{"x": 1}, Sessions: []string{"ghost"}}, gwerrors.ErrSessionNotRegistered},
		{"unknown conversation", UpdateRequest{ConversationID: "c9", AgentID: "a", Changes: map[string]any{"x": 1}}, gwerrors.ErrNotFound},
		{"not a participant", UpdateRequest{ConversationID: "c1", AgentID: "z", Changes: map[string]any{"x": 1}}, gwerrors.ErrNotParticipant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.coord.CoordinateUpdate(ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCoordinateUpdate_Delegates(t *testing.T) {
	var got UpdateRequest
	orchestrator := UpdateOrchestratorFunc(func(_ context.Context, req UpdateRequest) (UpdateResult, error) {
		got = req
		return UpdateResult{Applied: []string{"remote"}}, nil
	})
	f := newFixture(t, WithUpdateOrchestrator(orchestrator))
	f.register(t, "a")

	opID, _ := f.coord.InitiateOperation("holistic_update", "a", nil, nil)
	res, err := f.coord.CoordinateUpdate(context.Background(), UpdateRequest{
		OperationID:    opID,
		ConversationID: "c1",
		AgentID:        "a",
		ContextPath:    "repo",
		Changes:        map[string]any{"branch": "main"},
	})
	require.NoError(t, err)
	assert.True(t, res.Delegated)
	assert.Equal(t, opID, res.OperationID)
	assert.Equal(t, []string{"remote"}, res.Applied)
	assert.Equal(t, "repo", got.ContextPath)

	_, ok := f.coord.Synchronizer().Entry("c1", "repo.branch")
	assert.False(t, ok, "the synchronizer is bypassed when an orchestrator is registered")
}

func TestContextKey(t *testing.T) {
	assert.Equal(t, "x", contextKey("", "x"))
	assert.Equal(t, "plan.x", contextKey("plan", "x"))
	assert.Equal(t, "plan.x", contextKey(".plan.", "x"))
}
