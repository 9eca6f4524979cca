package divergent

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillweave/skillweave/pkg/credits"
	"github.com/skillweave/skillweave/pkg/gate"
	"github.com/skillweave/skillweave/pkg/models"
	"github.com/skillweave/skillweave/pkg/persistence/file"
	"github.com/skillweave/skillweave/pkg/scheduler"
	"github.com/skillweave/skillweave/pkg/testutil"
)

// scoreByLevel builds an executor that returns the given completion score
// for each level's summary node and an empty document for everything else.
func scoreByLevel(scores map[int]float64) scheduler.Executor {
	return scheduler.ExecutorFunc(func(_ context.Context, _ *models.WorkflowRun, node *models.Node, _ map[string]any) (*scheduler.ExecutionResult, error) {
		if node.Divergent != nil && node.Divergent.Role == models.DivergentRoleSummary {
			return &scheduler.ExecutionResult{
				Output: map[string]any{CompletionScoreField: scores[node.Divergent.Level]},
			}, nil
		}

		if node.Divergent != nil && node.Divergent.Role == models.DivergentRoleFinalOutput {
			return &scheduler.ExecutionResult{Output: map[string]any{"final": true}}, nil
		}

		return &scheduler.ExecutionResult{Output: map[string]any{"work": node.ID}}, nil
	})
}

func twoNodePlanner() Planner {
	return PlannerFunc(func(_ context.Context, sessionID string, level int, _ *models.NodeExecutionRecord) ([]*models.Node, error) {
		nodes := make([]*models.Node, 0, 2)

		for i := range 2 {
			id := fmt.Sprintf("%s-l%d-exec%d", sessionID, level, i)
			nodes = append(nodes, testutil.CreateTestNode(
				testutil.WithID(id),
				testutil.WithName(id),
				testutil.WithSkill("decompose", nil),
			))
		}

		return nodes, nil
	})
}

func newTestCoordinator(t *testing.T, executor scheduler.Executor) (*Coordinator, *file.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())
	logger := slog.Default()
	meter := credits.NewMeter(credits.RateTable{}, logger)
	sched := scheduler.New(p, gate.New(logger), meter, executor, nil, logger, "worker-test")

	return NewCoordinator(p, sched, nil, logger), p
}

func emptyWorkflow(t *testing.T, p *file.Persistence) *models.Workflow {
	t.Helper()

	wf := &models.Workflow{
		ID:     "wf-1",
		Name:   "divergent host",
		Status: models.WorkflowStatusPublished,
	}
	require.NoError(t, p.WorkflowRepository().Save(context.Background(), wf))

	return wf
}

func TestRunSession_ConvergesOnThreshold(t *testing.T) {
	ctx := context.Background()
	executor := scoreByLevel(map[int]float64{0: 0.5, 1: 0.96})
	c, p := newTestCoordinator(t, executor)
	wf := emptyWorkflow(t, p)

	result, err := c.RunSession(ctx, wf, "ds-1", twoNodePlanner(), SessionOptions{ScoreThreshold: 0.95})
	require.NoError(t, err)

	assert.Equal(t, 1, result.FinalLevel)
	assert.False(t, result.DepthCapped)
	assert.InDelta(t, 0.96, result.FinalScore, 1e-9)
	assert.Equal(t, map[string]any{"final": true}, result.FinalOutput)

	nodes, err := p.WorkflowRepository().NodesBySession(ctx, "ds-1")
	require.NoError(t, err)

	finals := 0
	levels := map[int]int{}

	for _, node := range nodes {
		levels[node.Divergent.Level]++

		if node.Divergent.Role == models.DivergentRoleFinalOutput {
			finals++
		}
	}

	assert.Equal(t, 1, finals, "exactly one final output per session")
	// Two levels: 2 exec + 1 summary each, plus the final at level 1.
	assert.Equal(t, 3, levels[0])
	assert.Equal(t, 4, levels[1])
}

func TestRunSession_DepthCapForcesConvergence(t *testing.T) {
	ctx := context.Background()
	executor := scoreByLevel(map[int]float64{}) // every summary scores zero
	c, p := newTestCoordinator(t, executor)
	wf := emptyWorkflow(t, p)

	result, err := c.RunSession(ctx, wf, "ds-2", twoNodePlanner(), SessionOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.MaxDivergentLevel, result.FinalLevel)
	assert.True(t, result.DepthCapped)

	nodes, err := p.WorkflowRepository().NodesBySession(ctx, "ds-2")
	require.NoError(t, err)

	for _, node := range nodes {
		assert.LessOrEqual(t, node.Divergent.Level, models.MaxDivergentLevel)
	}
}

func TestRunSession_OutOfRangeScoreIsFatal(t *testing.T) {
	ctx := context.Background()
	executor := scoreByLevel(map[int]float64{0: 1.5})
	c, p := newTestCoordinator(t, executor)
	wf := emptyWorkflow(t, p)

	_, err := c.RunSession(ctx, wf, "ds-3", twoNodePlanner(), SessionOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrInvalidCompletionScore)
}

func TestRunSession_MissingScoreIsFatal(t *testing.T) {
	ctx := context.Background()

	executor := scheduler.ExecutorFunc(func(_ context.Context, _ *models.WorkflowRun, _ *models.Node, _ map[string]any) (*scheduler.ExecutionResult, error) {
		return &scheduler.ExecutionResult{Output: map[string]any{}}, nil
	})

	c, p := newTestCoordinator(t, executor)
	wf := emptyWorkflow(t, p)

	_, err := c.RunSession(ctx, wf, "ds-4", twoNodePlanner(), SessionOptions{})
	assert.ErrorIs(t, err, ErrMissingCompletionScore)
}

func TestRunSession_RejectsConvergedSession(t *testing.T) {
	ctx := context.Background()
	executor := scoreByLevel(map[int]float64{0: 0.99})
	c, p := newTestCoordinator(t, executor)
	wf := emptyWorkflow(t, p)

	_, err := c.RunSession(ctx, wf, "ds-5", twoNodePlanner(), SessionOptions{})
	require.NoError(t, err)

	_, err = c.RunSession(ctx, wf, "ds-5", twoNodePlanner(), SessionOptions{})
	assert.ErrorIs(t, err, ErrSessionAlreadyConverged)
}

func TestRunSession_ParentBackReferences(t *testing.T) {
	ctx := context.Background()
	executor := scoreByLevel(map[int]float64{0: 0.5, 1: 0.99})
	c, p := newTestCoordinator(t, executor)
	wf := emptyWorkflow(t, p)

	_, err := c.RunSession(ctx, wf, "ds-6", twoNodePlanner(), SessionOptions{})
	require.NoError(t, err)

	nodes, err := p.WorkflowRepository().NodesBySession(ctx, "ds-6")
	require.NoError(t, err)

	for _, node := range nodes {
		switch {
		case node.Divergent.Level == 0:
			assert.Empty(t, node.Divergent.ParentNodeIDs, node.ID)
		case node.Divergent.Role == models.DivergentRoleExecution:
			assert.Equal(t, []string{"ds-6-l0-summary"}, node.Divergent.ParentNodeIDs, node.ID)
		case node.Divergent.Role == models.DivergentRoleFinalOutput:
			assert.Equal(t, []string{"ds-6-l1-summary"}, node.Divergent.ParentNodeIDs)
		}
	}
}
