package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillweave/skillweave/pkg/eventbus"
	"github.com/skillweave/skillweave/pkg/events"
	"github.com/skillweave/skillweave/pkg/models"
	"github.com/skillweave/skillweave/pkg/persistence"
	"github.com/skillweave/skillweave/pkg/testutil"
)

func newSessionBus(t *testing.T) *eventbus.WatermillEventBus {
	t.Helper()

	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})

	return eventbus.NewWatermillEventBus(pubsub, pubsub)
}

func sessionNode(t *testing.T, id string, role models.DivergentRole, level int) *models.Node {
	t.Helper()

	meta, err := models.NewDivergentMetadata(role, level, "ds-q", nil)
	require.NoError(t, err)

	node := testutil.CreateTestNode(
		testutil.WithID(id),
		testutil.WithName(id),
		testutil.WithSkill("decompose", nil),
	)
	node.Divergent = meta

	return node
}

func saveSessionFixture(t *testing.T, p persistence.Persistence) {
	t.Helper()

	wf := &models.Workflow{
		ID:     "wf-s",
		Name:   "session fixture",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.Node{
			sessionNode(t, "s-l1-exec", models.DivergentRoleExecution, 1),
			sessionNode(t, "s-l0-exec", models.DivergentRoleExecution, 0),
			sessionNode(t, "s-final", models.DivergentRoleFinalOutput, 1),
		},
	}
	require.NoError(t, p.WorkflowRepository().Save(context.Background(), wf))
}

func TestSession_GetSessionNodes(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	saveSessionFixture(t, p)

	svc := NewSession(p, nil, slog.Default())

	resp, err := svc.GetSessionNodes(ctx, "ds-q")
	require.NoError(t, err)

	assert.True(t, resp.Converged)
	assert.Equal(t, 1, resp.MaxLevel)
	require.Len(t, resp.Nodes, 3)
	assert.Equal(t, "s-l0-exec", resp.Nodes[0].ID, "nodes ordered by level")
}

func TestSession_UnknownSession(t *testing.T) {
	svc := NewSession(newTestPersistence(t), nil, slog.Default())

	_, err := svc.GetSessionNodes(context.Background(), "ds-none")
	assert.True(t, IsNotFoundError(err))
}

func TestSession_StartSessionDispatchesRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := newTestPersistence(t)
	wf := testutil.CreateTestWorkflow()
	require.NoError(t, p.WorkflowRepository().Save(ctx, wf))

	bus := newSessionBus(t)

	received := make(chan *events.SessionStartRequested, 1)
	require.NoError(t, bus.Handle(events.SessionStartRequestedEvent, func(_ context.Context, event any) error {
		received <- event.(*events.SessionStartRequested)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	svc := NewSession(p, bus, slog.Default())

	resp, err := svc.StartSession(ctx, wf.ID, StartSessionRequest{
		Goal:           "write a report",
		ScoreThreshold: 0.8,
	})
	require.NoError(t, err)
	assert.Equal(t, wf.ID, resp.WorkflowID)
	assert.NotEmpty(t, resp.SessionID)

	select {
	case request := <-received:
		assert.Equal(t, resp.SessionID, request.SessionID)
		assert.Equal(t, "write a report", request.Goal)
		assert.InDelta(t, 0.8, request.ScoreThreshold, 1e-9)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session start request")
	}
}

func TestSession_StartSessionValidation(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	bus := newSessionBus(t)
	svc := NewSession(p, bus, slog.Default())

	_, err := svc.StartSession(ctx, "wf-any", StartSessionRequest{})
	assert.ErrorIs(t, err, ErrGoalRequired)

	_, err = svc.StartSession(ctx, "wf-missing", StartSessionRequest{Goal: "g"})
	assert.True(t, IsNotFoundError(err))

	draft, err := NewWorkflow(p, nil).Create(ctx, draftWorkflow("unpublished"))
	require.NoError(t, err)

	_, err = svc.StartSession(ctx, draft.ID, StartSessionRequest{Goal: "g"})
	assert.ErrorIs(t, err, ErrWorkflowNotPublished)
}

func TestSession_StartSessionWithoutBus(t *testing.T) {
	svc := NewSession(newTestPersistence(t), nil, slog.Default())

	_, err := svc.StartSession(context.Background(), "wf-1", StartSessionRequest{Goal: "g"})
	assert.ErrorIs(t, err, ErrDispatchUnavailable)
}

func TestSession_ProgressFollowsSessionEvents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := newTestPersistence(t)
	wf := testutil.CreateTestWorkflow()
	require.NoError(t, p.WorkflowRepository().Save(ctx, wf))

	bus := newSessionBus(t)
	require.NoError(t, bus.Subscribe(ctx))

	svc := NewSession(p, bus, slog.Default())

	resp, err := svc.StartSession(ctx, wf.ID, StartSessionRequest{Goal: "converge"})
	require.NoError(t, err)

	initial, err := svc.GetSessionProgress(ctx, resp.SessionID)
	require.NoError(t, err)
	assert.Zero(t, initial.Level)
	assert.False(t, initial.Converged)

	require.NoError(t, bus.Publish(ctx, wf.ID, events.SessionLevelCompleted{
		BaseEvent:       events.NewBaseEvent(events.SessionLevelCompletedEvent, wf.ID),
		SessionID:       resp.SessionID,
		Level:           1,
		CompletionScore: 0.5,
	}))

	assert.Eventually(t, func() bool {
		progress, err := svc.GetSessionProgress(ctx, resp.SessionID)

		return err == nil && progress.Level == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, bus.Publish(ctx, wf.ID, events.SessionConverged{
		BaseEvent:  events.NewBaseEvent(events.SessionConvergedEvent, wf.ID),
		SessionID:  resp.SessionID,
		FinalLevel: 1,
	}))

	assert.Eventually(t, func() bool {
		progress, err := svc.GetSessionProgress(ctx, resp.SessionID)

		return err == nil && progress.Converged
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSession_ProgressFallsBackToPersistedNodes(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)

	summary := sessionNode(t, "s-l1-sum", models.DivergentRoleSummary, 1)
	require.NoError(t, summary.Divergent.SetCompletionScore(0.95))

	wf := &models.Workflow{
		ID:     "wf-done",
		Name:   "finished session",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.Node{
			sessionNode(t, "s-l0-exec", models.DivergentRoleExecution, 0),
			summary,
			sessionNode(t, "s-final", models.DivergentRoleFinalOutput, 1),
		},
	}
	require.NoError(t, p.WorkflowRepository().Save(ctx, wf))

	svc := NewSession(p, nil, slog.Default())

	progress, err := svc.GetSessionProgress(ctx, "ds-q")
	require.NoError(t, err)

	assert.Equal(t, 1, progress.Level)
	assert.True(t, progress.Converged)
	assert.InDelta(t, 0.95, progress.CompletionScore, 1e-9)
}
