// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/google/uuid"

	"github.com/skillweave/skillweave/pkg/models"
)

// CreateTestNode creates a skill node with default values that can be
// overridden.
func CreateTestNode(overrides ...func(*models.Node)) *models.Node {
	id := uuid.New().String()

	node := &models.Node{
		ID:     id,
		Type:   models.NodeTypeSkill,
		Name:   "Test Node",
		TaskID: "task-" + id,
		Skill:  &models.SkillConfig{SkillName: "echo"},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithID sets the node ID, keeping the task id in sync.
func WithID(id string) func(*models.Node) {
	return func(n *models.Node) {
		n.ID = id
		n.TaskID = "task-" + id
	}
}

// WithName sets the node name.
func WithName(name string) func(*models.Node) {
	return func(n *models.Node) {
		n.Name = name
	}
}

// WithSkill sets the skill name and configuration.
func WithSkill(skillName string, config map[string]any) func(*models.Node) {
	return func(n *models.Node) {
		n.Type = models.NodeTypeSkill
		n.Skill = &models.SkillConfig{SkillName: skillName, Config: config}
		n.Tool = nil
	}
}

// WithTool turns the node into a toolset call.
func WithTool(toolsetID, toolName string) func(*models.Node) {
	return func(n *models.Node) {
		n.Type = models.NodeTypeTool
		n.Tool = &models.ToolConfig{ToolsetID: toolsetID, ToolName: toolName}
		n.Skill = nil
	}
}

// WithoutTask clears the task correlation, making the node untargetable for
// partial operations.
func WithoutTask() func(*models.Node) {
	return func(n *models.Node) {
		n.TaskID = ""
	}
}

// WithInputs sets the node's input bindings.
func WithInputs(inputs []models.InputBinding) func(*models.Node) {
	return func(n *models.Node) {
		n.Inputs = inputs
	}
}

// CreateTestWorkflow creates a published two-node workflow: a skill node
// feeding an output node.
func CreateTestWorkflow() *models.Workflow {
	source := CreateTestNode(WithID("source"))

	sink := CreateTestNode(WithID("sink"))
	sink.Type = models.NodeTypeOutput
	sink.Skill = nil

	return &models.Workflow{
		ID:     uuid.New().String(),
		Name:   "Test Workflow",
		Status: models.WorkflowStatusPublished,
		Owner:  "test-user",
		Nodes:  []*models.Node{source, sink},
		Edges: []*models.Edge{
			CreateTestEdge("source", "sink"),
		},
		Variables: map[string]any{"env": "test"},
	}
}

// CreateTestEdge creates an edge between two nodes.
func CreateTestEdge(sourceNodeID, targetNodeID string) *models.Edge {
	return &models.Edge{
		ID:           "e-" + sourceNodeID + "-" + targetNodeID,
		SourceNodeID: sourceNodeID,
		TargetNodeID: targetNodeID,
	}
}

// CreateTestUsage creates a usage report for the text modality.
func CreateTestUsage(promptUnits, outputUnits int64) *models.UsageReport {
	return &models.UsageReport{
		Modality:    "text",
		PromptUnits: promptUnits,
		OutputUnits: outputUnits,
	}
}
