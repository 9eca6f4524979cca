package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/skillweave/skillweave/pkg/models"
	"github.com/skillweave/skillweave/pkg/scheduler"
	"github.com/skillweave/skillweave/pkg/template"
)

// Executor routes node execution to the registry's installed skills and
// toolsets. Aggregate and output nodes need no installed implementation and
// are handled inline.
type Executor struct {
	registry *Registry
	logger   *slog.Logger
}

func NewExecutor(registry *Registry, logger *slog.Logger) *Executor {
	return &Executor{
		registry: registry,
		logger:   logger.With("module", "registry_executor"),
	}
}

func (e *Executor) ExecuteNode(ctx context.Context, run *models.WorkflowRun, node *models.Node, inputs map[string]any) (*scheduler.ExecutionResult, error) {
	switch node.Type {
	case models.NodeTypeSkill:
		return e.executeSkill(ctx, run, node, inputs)
	case models.NodeTypeTool:
		return e.executeTool(ctx, node, inputs)
	case models.NodeTypeAggregate:
		return &scheduler.ExecutionResult{Output: map[string]any{"results": inputs}}, nil
	case models.NodeTypeOutput:
		return &scheduler.ExecutionResult{Output: inputs}, nil
	default:
		return nil, fmt.Errorf("node %s: %w", node.ID, models.ErrUnknownNodeType)
	}
}

func (e *Executor) executeSkill(ctx context.Context, run *models.WorkflowRun, node *models.Node, inputs map[string]any) (*scheduler.ExecutionResult, error) {
	config, err := template.RenderConfig(node.Skill.Config, map[string]any{
		"inputs": inputs,
		"input":  run.Input,
		"run": map[string]any{
			"id":          run.ID,
			"workflow_id": run.WorkflowID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", node.ID, err)
	}

	skill, err := e.registry.CreateSkill(node.Skill.SkillName, config)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("executing skill", "node_id", node.ID, "skill_name", node.Skill.SkillName)

	output, usage, err := skill.Execute(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("skill '%s' failed: %w", node.Skill.SkillName, err)
	}

	return &scheduler.ExecutionResult{Output: output, Usage: usage}, nil
}

func (e *Executor) executeTool(ctx context.Context, node *models.Node, inputs map[string]any) (*scheduler.ExecutionResult, error) {
	caller, err := e.registry.Toolset(node.Tool.ToolsetID)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("calling tool",
		"node_id", node.ID, "toolset_id", node.Tool.ToolsetID, "tool_name", node.Tool.ToolName)

	output, err := caller.Call(ctx, node.Tool.ToolName, inputs)
	if err != nil {
		return nil, fmt.Errorf("tool '%s/%s' failed: %w", node.Tool.ToolsetID, node.Tool.ToolName, err)
	}

	return &scheduler.ExecutionResult{Output: output}, nil
}
