// Package models defines the core domain models for AI-skill workflow orchestration
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow definition.
type WorkflowStatus string

const (
	WorkflowStatusDraft     WorkflowStatus = "draft"     // Editable, not executable
	WorkflowStatusPublished WorkflowStatus = "published" // Current active, executable
	WorkflowStatusArchived  WorkflowStatus = "archived"  // Historical, not executable
)

// Workflow represents a directed graph of AI-skill nodes owned by a workspace.
// Edges may form cycles structurally; the run scheduler rejects unresolvable
// cycles at run start.
type Workflow struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"         validate:"required,min=3"`
	Description string         `json:"description"`
	Status      WorkflowStatus `json:"status"       validate:"required"`
	WorkspaceID string         `json:"workspace_id"`
	Nodes       []*Node        `json:"nodes"`
	Edges       []*Edge        `json:"edges"`
	Variables   map[string]any `json:"variables"`
	Owner       string         `json:"owner"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   *time.Time     `json:"deleted_at,omitempty"`
}

// NodeByID returns the node with the given identifier, or nil.
func (w *Workflow) NodeByID(id string) *Node {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// Validate checks that every edge references existing node identifiers.
func (w *Workflow) Validate() error {
	known := make(map[string]struct{}, len(w.Nodes))
	for _, node := range w.Nodes {
		known[node.ID] = struct{}{}
	}

	for _, edge := range w.Edges {
		if _, ok := known[edge.SourceNodeID]; !ok {
			return NewEdgeError(edge.ID, edge.SourceNodeID, ErrUnknownNodeReference)
		}

		if _, ok := known[edge.TargetNodeID]; !ok {
			return NewEdgeError(edge.ID, edge.TargetNodeID, ErrUnknownNodeReference)
		}
	}

	return nil
}
