// Package web provides HTTP request and response types for the workflow API.
package web

import "github.com/skillweave/skillweave/pkg/models"

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Name        string         `json:"name"        validate:"required,min=3"`
	Description string         `json:"description"`
	WorkspaceID string         `json:"workspace_id"`
	Owner       string         `json:"owner"`
	Nodes       []*models.Node `json:"nodes"`
	Edges       []*models.Edge `json:"edges"`
	Variables   map[string]any `json:"variables"`
}

// UpdateWorkflowRequest represents the request body for updating a draft
// workflow. All fields are optional to support partial updates.
type UpdateWorkflowRequest struct {
	Name        *string        `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string        `json:"description,omitempty"`
	Nodes       []*models.Node `json:"nodes,omitempty"`
	Edges       []*models.Edge `json:"edges,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
}

// StartRunRequest represents the request body for starting a workflow run.
type StartRunRequest struct {
	StartNodes    []string                    `json:"start_nodes,omitempty"`
	Input         map[string]any              `json:"input,omitempty"`
	Authorization models.ToolsetAuthorization `json:"authorization,omitempty"`
}

// AuthorizeRunRequest carries a fresh toolset authorization for a blocked run.
type AuthorizeRunRequest struct {
	Authorization models.ToolsetAuthorization `json:"authorization" validate:"required"`
}

// StartSessionRequest represents the request body for starting a divergent
// session against a published workflow.
type StartSessionRequest struct {
	Goal           string                      `json:"goal"                      validate:"required"`
	PlannerSkill   string                      `json:"planner_skill,omitempty"`
	ExecutionSkill string                      `json:"execution_skill,omitempty"`
	SummarySkill   string                      `json:"summary_skill,omitempty"`
	FinalSkill     string                      `json:"final_skill,omitempty"`
	ScoreThreshold float64                     `json:"score_threshold,omitempty" validate:"omitempty,gt=0,lte=1"`
	Input          map[string]any              `json:"input,omitempty"`
	Authorization  models.ToolsetAuthorization `json:"authorization,omitempty"`
}

// ApplyVariablesRequest carries an optimistic variable update.
type ApplyVariablesRequest struct {
	Updates map[string]any `json:"updates" validate:"required"`
}

// CreditCostRequest prices a usage report without recording it.
type CreditCostRequest struct {
	Usage *models.UsageReport `json:"usage" validate:"required"`
}
