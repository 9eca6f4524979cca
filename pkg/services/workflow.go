package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/skillweave/skillweave/pkg/graph"
	"github.com/skillweave/skillweave/pkg/models"
	"github.com/skillweave/skillweave/pkg/persistence"
	"github.com/skillweave/skillweave/pkg/registry"
)

// Workflow handles workflow definition lifecycle operations.
type Workflow struct {
	persistence persistence.Persistence
	registry    *registry.Registry
}

// NewWorkflow creates a new workflow service. The registry is optional; when
// present, node skill configurations are schema-validated on save.
func NewWorkflow(persistence persistence.Persistence, reg *registry.Registry) *Workflow {
	return &Workflow{
		persistence: persistence,
		registry:    reg,
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	if err := w.persistence.HealthCheck(ctx); err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List retrieves all workflows.
func (w *Workflow) List(ctx context.Context) ([]*models.Workflow, error) {
	workflows, err := w.persistence.WorkflowRepository().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.WorkflowRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	return workflow, nil
}

// Create adds a new workflow to the repository in draft status.
func (w *Workflow) Create(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	if workflow.Name == "" {
		return nil, NewValidationError("Create", "VALIDATION_NAME_REQUIRED", "workflow name is required", ErrWorkflowNameRequired)
	}

	now := time.Now().UTC()
	workflow.ID = uuid.New().String()
	workflow.CreatedAt = now
	workflow.UpdatedAt = now

	if workflow.Status == "" {
		workflow.Status = models.WorkflowStatusDraft
	}

	if err := w.validateDefinition(workflow); err != nil {
		return nil, err
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to create workflow: %w", err)
	}

	return workflow, nil
}

// Update modifies an existing draft workflow by its ID.
func (w *Workflow) Update(ctx context.Context, workflowID string, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	existing, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if existing.Status != models.WorkflowStatusDraft {
		return nil, fmt.Errorf("%w: %s", ErrCannotModifyPublished, workflowID)
	}

	workflow.ID = workflowID
	workflow.Status = existing.Status
	workflow.CreatedAt = existing.CreatedAt
	workflow.UpdatedAt = time.Now().UTC()

	if err := w.validateDefinition(workflow); err != nil {
		return nil, err
	}

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to update workflow: %w", err)
	}

	return workflow, nil
}

// Publish transitions a draft workflow to published, making it executable.
// The graph must be structurally sound: at least one node, every edge bound
// to known nodes, and no dependency cycles.
func (w *Workflow) Publish(ctx context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := w.FetchByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status == models.WorkflowStatusPublished {
		return workflow, nil
	}

	if len(workflow.Nodes) == 0 {
		return nil, NewValidationError("Publish", "VALIDATION_NODES_REQUIRED", "workflow must have at least one node", ErrNodesRequired)
	}

	if err := w.validateDefinition(workflow); err != nil {
		return nil, err
	}

	snapshot, err := graph.NewSnapshot(workflow.Nodes, workflow.Edges)
	if err != nil {
		return nil, err
	}

	if _, err := snapshot.TopologicalOrder(snapshot.NodeIDs()); err != nil {
		return nil, err
	}

	workflow.Status = models.WorkflowStatusPublished
	workflow.UpdatedAt = time.Now().UTC()

	if err := w.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to publish workflow: %w", err)
	}

	return workflow, nil
}

// Delete removes a workflow by its ID.
func (w *Workflow) Delete(ctx context.Context, workflowID string) error {
	if _, err := w.FetchByID(ctx, workflowID); err != nil {
		return err
	}

	if err := w.persistence.WorkflowRepository().Delete(ctx, workflowID); err != nil {
		return fmt.Errorf("failed to delete workflow: %w", err)
	}

	return nil
}

// validateDefinition checks node and edge soundness, plus skill config
// schemas when a registry is wired in.
func (w *Workflow) validateDefinition(workflow *models.Workflow) error {
	if err := workflow.Validate(); err != nil {
		return NewValidationError("validateDefinition", "VALIDATION_GRAPH", err.Error(), ErrInvalidRequest)
	}

	for _, node := range workflow.Nodes {
		if err := node.Validate(); err != nil {
			return NewValidationError("validateDefinition", "VALIDATION_NODE", err.Error(), ErrInvalidRequest)
		}

		if w.registry != nil && node.Type == models.NodeTypeSkill {
			if _, err := w.registry.CreateSkill(node.Skill.SkillName, node.Skill.Config); err != nil {
				return NewValidationError("validateDefinition", "VALIDATION_SKILL_CONFIG", err.Error(), ErrInvalidRequest)
			}
		}
	}

	return nil
}
