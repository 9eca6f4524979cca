package registry

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillweave/skillweave/pkg/models"
)

type echoSkill struct {
	config map[string]any
}

func (s *echoSkill) Execute(_ context.Context, inputs map[string]any) (map[string]any, *models.UsageReport, error) {
	return map[string]any{"inputs": inputs, "config": s.config}, nil, nil
}

func echoDefinition(schema map[string]any) SkillDefinition {
	return SkillDefinition{
		Name:         "echo",
		ConfigSchema: schema,
		Factory: func(config map[string]any) (Skill, error) {
			return &echoSkill{config: config}, nil
		},
	}
}

func TestRegistry_CreateSkill(t *testing.T) {
	r := NewRegistry(slog.Default())
	r.RegisterSkill(echoDefinition(nil))

	skill, err := r.CreateSkill("echo", map[string]any{"model": "large"})
	require.NoError(t, err)

	output, _, err := skill.Execute(context.Background(), map[string]any{"q": "hi"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"model": "large"}, output["config"])
}

func TestRegistry_CreateSkillNotRegistered(t *testing.T) {
	r := NewRegistry(slog.Default())

	_, err := r.CreateSkill("missing", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestRegistry_ConfigSchemaValidation(t *testing.T) {
	schema := map[string]any{
		"type":     "object",
		"required": []string{"model"},
		"properties": map[string]any{
			"model": map[string]any{"type": "string"},
		},
	}

	r := NewRegistry(slog.Default())
	r.RegisterSkill(echoDefinition(schema))

	_, err := r.CreateSkill("echo", map[string]any{"model": "small"})
	require.NoError(t, err)

	_, err = r.CreateSkill("echo", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")

	_, err = r.CreateSkill("echo", map[string]any{"model": 42})
	require.Error(t, err)
}

func TestRegistry_Toolset(t *testing.T) {
	r := NewRegistry(slog.Default())
	r.RegisterToolset("ts-web", ToolCallerFunc(func(_ context.Context, toolName string, _ map[string]any) (map[string]any, error) {
		return map[string]any{"tool": toolName}, nil
	}))

	caller, err := r.Toolset("ts-web")
	require.NoError(t, err)

	output, err := caller.Call(context.Background(), "fetch", nil)
	require.NoError(t, err)
	assert.Equal(t, "fetch", output["tool"])

	_, err = r.Toolset("ts-missing")
	assert.Error(t, err)
}

func TestRegistry_AvailableSkills(t *testing.T) {
	r := NewRegistry(slog.Default())
	r.RegisterSkill(SkillDefinition{Name: "summarize_level", Factory: func(map[string]any) (Skill, error) { return &echoSkill{}, nil }})
	r.RegisterSkill(SkillDefinition{Name: "decompose", Factory: func(map[string]any) (Skill, error) { return &echoSkill{}, nil }})

	assert.Equal(t, []string{"decompose", "summarize_level"}, r.AvailableSkills())
}

func TestExecutor_RoutesByNodeType(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(slog.Default())
	r.RegisterSkill(echoDefinition(nil))
	r.RegisterToolset("ts-fs", ToolCallerFunc(func(_ context.Context, toolName string, inputs map[string]any) (map[string]any, error) {
		return map[string]any{"called": toolName}, nil
	}))

	e := NewExecutor(r, slog.Default())
	run := &models.WorkflowRun{ID: "run-1"}

	skillNode := &models.Node{
		ID:    "n-skill",
		Type:  models.NodeTypeSkill,
		Skill: &models.SkillConfig{SkillName: "echo"},
	}
	result, err := e.ExecuteNode(ctx, run, skillNode, map[string]any{"q": "hi"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"q": "hi"}, result.Output["inputs"])

	toolNode := &models.Node{
		ID:   "n-tool",
		Type: models.NodeTypeTool,
		Tool: &models.ToolConfig{ToolsetID: "ts-fs", ToolName: "read_file"},
	}
	result, err = e.ExecuteNode(ctx, run, toolNode, nil)
	require.NoError(t, err)
	assert.Equal(t, "read_file", result.Output["called"])

	aggNode := &models.Node{ID: "n-agg", Type: models.NodeTypeAggregate}
	result, err = e.ExecuteNode(ctx, run, aggNode, map[string]any{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"results": map[string]any{"a": 1}}, result.Output)

	outNode := &models.Node{ID: "n-out", Type: models.NodeTypeOutput}
	result, err = e.ExecuteNode(ctx, run, outNode, map[string]any{"done": true})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"done": true}, result.Output)
}

func TestExecutor_RendersSkillConfig(t *testing.T) {
	r := NewRegistry(slog.Default())
	r.RegisterSkill(echoDefinition(nil))

	e := NewExecutor(r, slog.Default())
	run := &models.WorkflowRun{ID: "run-1", Input: map[string]any{"city": "Lisbon"}}

	node := &models.Node{
		ID:   "n-skill",
		Type: models.NodeTypeSkill,
		Skill: &models.SkillConfig{
			SkillName: "echo",
			Config: map[string]any{
				"prompt": "weather in {{.input.city}} for {{.inputs.day}}",
				"static": "unchanged",
			},
		},
	}

	result, err := e.ExecuteNode(context.Background(), run, node, map[string]any{"day": "monday"})
	require.NoError(t, err)

	config, ok := result.Output["config"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "weather in Lisbon for monday", config["prompt"])
	assert.Equal(t, "unchanged", config["static"])
}

func TestExecutor_UnknownSkillFails(t *testing.T) {
	e := NewExecutor(NewRegistry(slog.Default()), slog.Default())

	node := &models.Node{
		ID:    "n-1",
		Type:  models.NodeTypeSkill,
		Skill: &models.SkillConfig{SkillName: "nope"},
	}

	_, err := e.ExecuteNode(context.Background(), &models.WorkflowRun{ID: "run-1"}, node, nil)
	assert.Error(t, err)
}
