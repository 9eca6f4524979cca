package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNode_Validate_TaggedVariants(t *testing.T) {
	testCases := []struct {
		name    string
		node    *Node
		wantErr error
	}{
		{
			name: "skill node with skill config",
			node: &Node{
				ID:    "node-1",
				Type:  NodeTypeSkill,
				Name:  "Draft outline",
				Skill: &SkillConfig{SkillName: "writer"},
			},
		},
		{
			name: "tool node with tool config",
			node: &Node{
				ID:   "node-2",
				Type: NodeTypeTool,
				Name: "Search web",
				Tool: &ToolConfig{ToolsetID: "ts-search", ToolName: "web_search"},
			},
		},
		{
			name:    "skill node without skill config",
			node:    &Node{ID: "node-3", Type: NodeTypeSkill, Name: "Broken"},
			wantErr: ErrMissingVariantConfig,
		},
		{
			name: "output node carrying skill config",
			node: &Node{
				ID:    "node-4",
				Type:  NodeTypeOutput,
				Name:  "Final",
				Skill: &SkillConfig{SkillName: "writer"},
			},
			wantErr: ErrMismatchedVariantConfig,
		},
		{
			name: "aggregate node carrying tool config",
			node: &Node{
				ID:   "node-5",
				Type: NodeTypeAggregate,
				Name: "Merge",
				Tool: &ToolConfig{ToolsetID: "ts-x", ToolName: "y"},
			},
			wantErr: ErrMismatchedVariantConfig,
		},
		{
			name:    "unknown node type",
			node:    &Node{ID: "node-6", Type: "widget", Name: "Mystery"},
			wantErr: ErrUnknownNodeType,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.node.Validate()
			if tc.wantErr == nil {
				assert.NoError(t, err)

				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)

			var nodeErr *NodeError
			require.ErrorAs(t, err, &nodeErr)
			assert.Equal(t, tc.node.ID, nodeErr.NodeID)
		})
	}
}

func TestNode_Validate_DivergentMetadataChecked(t *testing.T) {
	node := &Node{
		ID:    "node-1",
		Type:  NodeTypeSkill,
		Name:  "Sub goal",
		Skill: &SkillConfig{SkillName: "researcher"},
		Divergent: &DivergentMetadata{
			Role:      DivergentRoleExecution,
			Level:     MaxDivergentLevel + 2,
			SessionID: "ds-1",
		},
	}

	assert.ErrorIs(t, node.Validate(), ErrInvalidDivergentLevel)
}

func TestNodeType_ToleratesUpstreamFailure(t *testing.T) {
	assert.True(t, NodeTypeAggregate.ToleratesUpstreamFailure())
	assert.False(t, NodeTypeSkill.ToleratesUpstreamFailure())
	assert.False(t, NodeTypeTool.ToleratesUpstreamFailure())
	assert.False(t, NodeTypeOutput.ToleratesUpstreamFailure())
}

func TestWorkflow_Validate_EdgeReferences(t *testing.T) {
	workflow := &Workflow{
		ID: "wf-1",
		Nodes: []*Node{
			{ID: "a", Type: NodeTypeSkill, Name: "A", Skill: &SkillConfig{SkillName: "s"}},
			{ID: "b", Type: NodeTypeOutput, Name: "B"},
		},
		Edges: []*Edge{{ID: "e1", SourceNodeID: "a", TargetNodeID: "b"}},
	}
	assert.NoError(t, workflow.Validate())

	workflow.Edges = append(workflow.Edges, &Edge{ID: "e2", SourceNodeID: "a", TargetNodeID: "ghost"})
	err := workflow.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownNodeReference)
}

func TestRunStatus_Terminal(t *testing.T) {
	assert.False(t, RunStatusInit.Terminal())
	assert.False(t, RunStatusPending.Terminal())
	assert.False(t, RunStatusRunning.Terminal())
	assert.True(t, RunStatusCompleted.Terminal())
	assert.True(t, RunStatusFailed.Terminal())
	assert.True(t, RunStatusAborted.Terminal())
}

func TestNodeExecutionRecord_Failure(t *testing.T) {
	failed := &NodeExecutionRecord{Status: NodeExecutionFailed}
	assert.True(t, failed.Failure())

	skippedFailure := &NodeExecutionRecord{Status: NodeExecutionSkipped, SkipReason: SkipReasonUpstreamFailed}
	assert.True(t, skippedFailure.Failure())

	skippedScope := &NodeExecutionRecord{Status: NodeExecutionSkipped, SkipReason: SkipReasonOutOfScope}
	assert.False(t, skippedScope.Failure())

	succeeded := &NodeExecutionRecord{Status: NodeExecutionSucceeded}
	assert.False(t, succeeded.Failure())
}
