package registry

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillweave/skillweave/pkg/models"
)

func plannerRegistry(subgoalsByLevel map[int][]any) *Registry {
	r := NewRegistry(slog.Default())
	r.RegisterSkill(SkillDefinition{
		Name: DefaultPlannerSkill,
		Factory: func(_ map[string]any) (Skill, error) {
			return skillFunc(func(_ context.Context, inputs map[string]any) (map[string]any, *models.UsageReport, error) {
				level := inputs["level"].(int)

				return map[string]any{SubgoalsField: subgoalsByLevel[level]}, nil, nil
			}), nil
		},
	})

	return r
}

func TestSessionPlanner_PlansLevel(t *testing.T) {
	r := plannerRegistry(map[int][]any{
		0: {"research the topic", "draft an outline"},
	})

	planner := NewSessionPlanner(r, "", "", "write a report")

	nodes, err := planner.PlanLevel(context.Background(), "ds-1", 0, nil)
	require.NoError(t, err)
	require.Len(t, nodes, 2)

	assert.Equal(t, "ds-1-l0-exec0", nodes[0].ID)
	assert.Equal(t, "task-ds-1-l0-exec0", nodes[0].TaskID)
	assert.Equal(t, "research the topic", nodes[0].Name)
	assert.Equal(t, DefaultExecutionSkill, nodes[0].Skill.SkillName)
	assert.Equal(t, "research the topic", nodes[0].Skill.Config["goal"])
	assert.NoError(t, nodes[0].Validate())
}

func TestSessionPlanner_EmptyPlanConverges(t *testing.T) {
	r := plannerRegistry(map[int][]any{})

	planner := NewSessionPlanner(r, "", "", "already done")

	nodes, err := planner.PlanLevel(context.Background(), "ds-2", 1, &models.NodeExecutionRecord{
		Output: map[string]any{"summary": "complete"},
	})
	require.NoError(t, err)
	assert.Empty(t, nodes)
}

func TestSessionPlanner_RejectsNonStringSubgoal(t *testing.T) {
	r := plannerRegistry(map[int][]any{0: {42}})

	planner := NewSessionPlanner(r, "", "", "goal")

	_, err := planner.PlanLevel(context.Background(), "ds-3", 0, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a string")
}

func TestSessionPlanner_UnknownPlannerSkill(t *testing.T) {
	planner := NewSessionPlanner(NewRegistry(slog.Default()), "missing", "", "goal")

	_, err := planner.PlanLevel(context.Background(), "ds-4", 0, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}
