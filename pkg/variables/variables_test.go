package variables

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillweave/skillweave/pkg/models"
	"github.com/skillweave/skillweave/pkg/persistence/file"
)

func newTestService(t *testing.T) (*Service, *file.Persistence) {
	t.Helper()

	p := file.NewPersistence(t.TempDir())

	return NewService(p, nil, slog.Default()), p
}

func seedWorkflow(t *testing.T, p *file.Persistence, vars map[string]any) *models.Workflow {
	t.Helper()

	wf := &models.Workflow{
		ID:        "wf-vars",
		Name:      "variable fixture",
		Status:    models.WorkflowStatusPublished,
		Variables: vars,
	}
	require.NoError(t, p.WorkflowRepository().Save(context.Background(), wf))

	return wf
}

func TestApply_MergesAndSnapshots(t *testing.T) {
	ctx := context.Background()
	svc, p := newTestService(t)
	seedWorkflow(t, p, map[string]any{"region": "us", "retries": float64(3)})

	pending, err := svc.Apply(ctx, "wf-vars", map[string]any{
		"region": "eu",
		"model":  "large",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"region": "us"}, pending.Snapshot)
	assert.Equal(t, []string{"model"}, pending.AbsentKeys)

	stored, err := p.WorkflowRepository().GetByID(ctx, "wf-vars")
	require.NoError(t, err)
	assert.Equal(t, "eu", stored.Variables["region"])
	assert.Equal(t, "large", stored.Variables["model"])
	assert.Equal(t, float64(3), stored.Variables["retries"], "untouched keys survive")
}

func TestApply_InitializesNilVariables(t *testing.T) {
	ctx := context.Background()
	svc, p := newTestService(t)
	seedWorkflow(t, p, nil)

	pending, err := svc.Apply(ctx, "wf-vars", map[string]any{"fresh": true})
	require.NoError(t, err)
	assert.Empty(t, pending.Snapshot)
	assert.Equal(t, []string{"fresh"}, pending.AbsentKeys)
}

func TestApply_RejectsEmptyUpdates(t *testing.T) {
	svc, p := newTestService(t)
	seedWorkflow(t, p, nil)

	_, err := svc.Apply(context.Background(), "wf-vars", nil)
	assert.Error(t, err)
}

func TestApply_UnknownWorkflow(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Apply(context.Background(), "wf-missing", map[string]any{"k": "v"})
	assert.Error(t, err)
}

func TestRollback_RestoresSnapshot(t *testing.T) {
	ctx := context.Background()
	svc, p := newTestService(t)
	seedWorkflow(t, p, map[string]any{"region": "us"})

	pending, err := svc.Apply(ctx, "wf-vars", map[string]any{
		"region": "eu",
		"model":  "large",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Rollback(ctx, pending))

	stored, err := p.WorkflowRepository().GetByID(ctx, "wf-vars")
	require.NoError(t, err)
	assert.Equal(t, "us", stored.Variables["region"], "overwritten key restored")
	_, exists := stored.Variables["model"]
	assert.False(t, exists, "introduced key removed")
}

func TestDecodePending(t *testing.T) {
	payload, err := json.Marshal(&PendingUpdate{
		WorkflowID: "wf-1",
		Updates:    map[string]any{"k": "v"},
		Snapshot:   map[string]any{"k": "old"},
	})
	require.NoError(t, err)

	pending, err := decodePending(redis.XMessage{
		ID:     "1-0",
		Values: map[string]any{"payload": string(payload)},
	})
	require.NoError(t, err)
	assert.Equal(t, "1-0", pending.ID)
	assert.Equal(t, "wf-1", pending.WorkflowID)

	_, err = decodePending(redis.XMessage{ID: "2-0", Values: map[string]any{}})
	assert.Error(t, err)
}
