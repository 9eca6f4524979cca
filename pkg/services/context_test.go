package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillweave/skillweave/pkg/models"
	"github.com/skillweave/skillweave/pkg/persistence/file"
)

// chainWorkflow builds a -> b -> c -> d where c carries no task id.
func chainWorkflow(t *testing.T, p *file.Persistence) *models.Workflow {
	t.Helper()

	node := func(id, taskID string) *models.Node {
		return &models.Node{
			ID:     id,
			Type:   models.NodeTypeSkill,
			Name:   id,
			TaskID: taskID,
			Skill:  &models.SkillConfig{SkillName: "echo"},
		}
	}

	wf := &models.Workflow{
		ID:     "wf-ctx",
		Name:   "context fixture",
		Status: models.WorkflowStatusPublished,
		Nodes: []*models.Node{
			node("a", "task-a"),
			node("b", "task-b"),
			node("c", ""),
			node("d", "task-d"),
		},
		Edges: []*models.Edge{
			{ID: "e1", SourceNodeID: "a", TargetNodeID: "b"},
			{ID: "e2", SourceNodeID: "b", TargetNodeID: "c"},
			{ID: "e3", SourceNodeID: "c", TargetNodeID: "d"},
		},
	}
	require.NoError(t, p.WorkflowRepository().Save(context.Background(), wf))

	return wf
}

func TestContext_GetNodeGraphContext(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	wf := chainWorkflow(t, p)
	svc := NewContext(p)

	result, err := svc.GetNodeGraphContext(ctx, wf.ID, "b")
	require.NoError(t, err)

	assert.Equal(t, "task-b", result.TaskID)
	assert.Equal(t, []string{"task-a"}, result.UpstreamTaskIDs)
	// c has no task id and is transparent; d is still downstream.
	assert.Equal(t, []string{"task-d"}, result.DownstreamTaskIDs)
}

func TestContext_Idempotent(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	wf := chainWorkflow(t, p)
	svc := NewContext(p)

	first, err := svc.GetNodeGraphContext(ctx, wf.ID, "b")
	require.NoError(t, err)

	second, err := svc.GetNodeGraphContext(ctx, wf.ID, "b")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestContext_NodeWithoutTaskID(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	wf := chainWorkflow(t, p)
	svc := NewContext(p)

	_, err := svc.GetNodeGraphContext(ctx, wf.ID, "c")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNodeNotAddressable)
	assert.True(t, IsValidationError(err))
}

func TestContext_UnknownNode(t *testing.T) {
	ctx := context.Background()
	p := newTestPersistence(t)
	wf := chainWorkflow(t, p)
	svc := NewContext(p)

	_, err := svc.GetNodeGraphContext(ctx, wf.ID, "zz")
	assert.True(t, IsNotFoundError(err))

	_, err = svc.GetNodeGraphContext(ctx, "wf-missing", "a")
	assert.True(t, IsNotFoundError(err))
}
