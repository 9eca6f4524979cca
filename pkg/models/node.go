// Package models defines core node and edge models for graph execution
package models

// NodeType represents the kind of work a node performs.
type NodeType string

const (
	NodeTypeSkill     NodeType = "skill"     // AI skill invocation
	NodeTypeTool      NodeType = "tool"      // External toolset call
	NodeTypeAggregate NodeType = "aggregate" // Folds multiple upstream outputs into one
	NodeTypeOutput    NodeType = "output"    // Terminal output node
)

// ToleratesUpstreamFailure reports whether nodes of this type may still run
// when some, but not all, upstream predecessors failed. Aggregation nodes
// fold whatever succeeded; every other type skips on upstream failure.
func (t NodeType) ToleratesUpstreamFailure() bool {
	return t == NodeTypeAggregate
}

// Valid reports whether the node type is one of the known variants.
func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeSkill, NodeTypeTool, NodeTypeAggregate, NodeTypeOutput:
		return true
	}

	return false
}

// InputBinding declares one input of a node: either a reference to an
// upstream node's output field or an external workflow variable.
type InputBinding struct {
	Name         string `json:"name"                     validate:"required"`
	SourceNodeID string `json:"source_node_id,omitempty"`
	OutputField  string `json:"output_field,omitempty"`
	Variable     string `json:"variable,omitempty"`
}

// SkillConfig carries skill-invocation fields. Valid only on skill nodes.
type SkillConfig struct {
	SkillName string         `json:"skill_name" validate:"required"`
	Config    map[string]any `json:"config,omitempty"`
}

// ToolConfig carries toolset-call fields. Valid only on tool nodes.
type ToolConfig struct {
	ToolsetID string `json:"toolset_id" validate:"required"`
	ToolName  string `json:"tool_name"  validate:"required"`
}

// Node represents a unit of work in a workflow graph. The per-type
// configuration is a tagged variant: exactly the pointer matching Type may
// be set, which Validate enforces instead of an open metadata map.
type Node struct {
	ID     string         `json:"id"     validate:"required"`
	Type   NodeType       `json:"type"   validate:"required"`
	Name   string         `json:"name"   validate:"required,min=1"`
	Inputs []InputBinding `json:"inputs,omitempty"`

	// TaskID correlates this node to a unit of scheduled work. Nodes
	// without one cannot be targeted for partial operations.
	TaskID string `json:"task_id,omitempty"`

	Skill     *SkillConfig       `json:"skill,omitempty"`
	Tool      *ToolConfig        `json:"tool,omitempty"`
	Divergent *DivergentMetadata `json:"divergent,omitempty"`
}

// Validate rejects nodes whose tagged variant does not match their type.
func (n *Node) Validate() error {
	if !n.Type.Valid() {
		return NewNodeError(n.ID, ErrUnknownNodeType)
	}

	if n.Type == NodeTypeSkill && n.Skill == nil {
		return NewNodeError(n.ID, ErrMissingVariantConfig)
	}

	if n.Type != NodeTypeSkill && n.Skill != nil {
		return NewNodeError(n.ID, ErrMismatchedVariantConfig)
	}

	if n.Type == NodeTypeTool && n.Tool == nil {
		return NewNodeError(n.ID, ErrMissingVariantConfig)
	}

	if n.Type != NodeTypeTool && n.Tool != nil {
		return NewNodeError(n.ID, ErrMismatchedVariantConfig)
	}

	if n.Divergent != nil {
		if err := n.Divergent.Validate(); err != nil {
			return NewNodeError(n.ID, err)
		}
	}

	return nil
}

// ToolsetIDs returns the toolset identifiers this node invokes, if any.
func (n *Node) ToolsetIDs() []string {
	if n.Tool == nil {
		return nil
	}

	return []string{n.Tool.ToolsetID}
}

// Edge connects two nodes; directionality defines upstream and downstream.
// Handle optionally discriminates among multiple outputs of the source.
type Edge struct {
	ID           string `json:"id"`
	SourceNodeID string `json:"source_node_id" validate:"required"`
	TargetNodeID string `json:"target_node_id" validate:"required"`
	Handle       string `json:"handle,omitempty"`
}
