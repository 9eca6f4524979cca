package registry

import (
	"context"
	"fmt"

	"github.com/skillweave/skillweave/pkg/divergent"
	"github.com/skillweave/skillweave/pkg/models"
)

// DefaultPlannerSkill decomposes a goal into sub-goals.
const DefaultPlannerSkill = "plan_level"

// DefaultExecutionSkill works one sub-goal.
const DefaultExecutionSkill = "execute_goal"

// SubgoalsField is the planner skill's output field holding the sub-goal list.
const SubgoalsField = "subgoals"

// NewSessionPlanner returns a planner that asks a registered skill to
// decompose the session goal. The skill receives the goal, the level, and the
// previous level's summary output, and returns a string list under
// "subgoals"; each sub-goal becomes one execution node running the execution
// skill. An empty list converges the session.
func NewSessionPlanner(r *Registry, plannerSkill, executionSkill, goal string) divergent.Planner {
	if plannerSkill == "" {
		plannerSkill = DefaultPlannerSkill
	}

	if executionSkill == "" {
		executionSkill = DefaultExecutionSkill
	}

	return divergent.PlannerFunc(func(ctx context.Context, sessionID string, level int, parentSummary *models.NodeExecutionRecord) ([]*models.Node, error) {
		skill, err := r.CreateSkill(plannerSkill, nil)
		if err != nil {
			return nil, err
		}

		inputs := map[string]any{
			"goal":  goal,
			"level": level,
		}
		if parentSummary != nil {
			inputs["parent_summary"] = parentSummary.Output
		}

		output, _, err := skill.Execute(ctx, inputs)
		if err != nil {
			return nil, fmt.Errorf("planner skill '%s' failed: %w", plannerSkill, err)
		}

		raw, _ := output[SubgoalsField].([]any)

		nodes := make([]*models.Node, 0, len(raw))

		for i, item := range raw {
			subgoal, ok := item.(string)
			if !ok || subgoal == "" {
				return nil, fmt.Errorf("planner skill '%s': subgoal %d is not a string", plannerSkill, i)
			}

			id := fmt.Sprintf("%s-l%d-exec%d", sessionID, level, i)
			nodes = append(nodes, &models.Node{
				ID:     id,
				Type:   models.NodeTypeSkill,
				Name:   subgoal,
				TaskID: "task-" + id,
				Skill: &models.SkillConfig{
					SkillName: executionSkill,
					Config:    map[string]any{"goal": subgoal},
				},
			})
		}

		return nodes, nil
	})
}
