package services

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillweave/skillweave/pkg/graph"
	"github.com/skillweave/skillweave/pkg/models"
	"github.com/skillweave/skillweave/pkg/persistence/file"
	"github.com/skillweave/skillweave/pkg/registry"
	"github.com/skillweave/skillweave/pkg/testutil"
)

func newTestPersistence(t *testing.T) *file.Persistence {
	t.Helper()

	return file.NewPersistence(t.TempDir())
}

func draftWorkflow(name string) *models.Workflow {
	out := testutil.CreateTestNode(testutil.WithID("n2"), testutil.WithName("out"))
	out.Type = models.NodeTypeOutput
	out.Skill = nil

	return &models.Workflow{
		Name: name,
		Nodes: []*models.Node{
			testutil.CreateTestNode(
				testutil.WithID("n1"),
				testutil.WithName("first"),
				testutil.WithSkill("echo", nil),
			),
			out,
		},
		Edges: []*models.Edge{
			testutil.CreateTestEdge("n1", "n2"),
		},
	}
}

func TestWorkflow_CreateAndFetch(t *testing.T) {
	ctx := context.Background()
	svc := NewWorkflow(newTestPersistence(t), nil)

	created, err := svc.Create(ctx, draftWorkflow("my workflow"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.WorkflowStatusDraft, created.Status)

	fetched, err := svc.FetchByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "my workflow", fetched.Name)
}

func TestWorkflow_CreateRequiresName(t *testing.T) {
	svc := NewWorkflow(newTestPersistence(t), nil)

	wf := draftWorkflow("")

	_, err := svc.Create(context.Background(), wf)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestWorkflow_FetchMissing(t *testing.T) {
	svc := NewWorkflow(newTestPersistence(t), nil)

	_, err := svc.FetchByID(context.Background(), "nope")
	assert.True(t, IsNotFoundError(err))
}

func TestWorkflow_PublishValidatesGraph(t *testing.T) {
	ctx := context.Background()
	svc := NewWorkflow(newTestPersistence(t), nil)

	wf := draftWorkflow("cyclic")
	wf.Edges = append(wf.Edges, &models.Edge{ID: "e2", SourceNodeID: "n2", TargetNodeID: "n1"})

	created, err := svc.Create(ctx, wf)
	require.NoError(t, err)

	_, err = svc.Publish(ctx, created.ID)
	assert.ErrorIs(t, err, graph.ErrCyclicDependency)
}

func TestWorkflow_PublishThenLock(t *testing.T) {
	ctx := context.Background()
	svc := NewWorkflow(newTestPersistence(t), nil)

	created, err := svc.Create(ctx, draftWorkflow("lockable"))
	require.NoError(t, err)

	published, err := svc.Publish(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusPublished, published.Status)

	// Publishing again is idempotent.
	again, err := svc.Publish(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WorkflowStatusPublished, again.Status)

	_, err = svc.Update(ctx, created.ID, draftWorkflow("edited"))
	require.Error(t, err)
	assert.True(t, IsConflictError(err))
}

func TestWorkflow_SkillConfigValidatedOnSave(t *testing.T) {
	ctx := context.Background()

	reg := registry.NewRegistry(slog.Default())
	reg.RegisterSkill(registry.SkillDefinition{
		Name: "echo",
		ConfigSchema: map[string]any{
			"type":     "object",
			"required": []string{"model"},
		},
		Factory: func(config map[string]any) (registry.Skill, error) {
			return nil, nil
		},
	})

	svc := NewWorkflow(newTestPersistence(t), reg)

	wf := draftWorkflow("validated")
	wf.Nodes[0].Skill.Config = map[string]any{}

	_, err := svc.Create(ctx, wf)
	require.Error(t, err)
	assert.True(t, IsValidationError(err))

	wf.Nodes[0].Skill.Config = map[string]any{"model": "large"}

	_, err = svc.Create(ctx, wf)
	require.NoError(t, err)
}

func TestWorkflow_Delete(t *testing.T) {
	ctx := context.Background()
	svc := NewWorkflow(newTestPersistence(t), nil)

	created, err := svc.Create(ctx, draftWorkflow("short lived"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, created.ID))

	_, err = svc.FetchByID(ctx, created.ID)
	assert.True(t, IsNotFoundError(err))

	err = svc.Delete(ctx, created.ID)
	assert.True(t, IsNotFoundError(err))
}
