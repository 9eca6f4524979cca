package services

import (
	"context"
	"log/slog"

	"github.com/skillweave/skillweave/pkg/eventbus"
	"github.com/skillweave/skillweave/pkg/events"
	"github.com/skillweave/skillweave/pkg/models"
	"github.com/skillweave/skillweave/pkg/persistence"
	"github.com/skillweave/skillweave/pkg/scheduler"
)

// StartRunRequest carries the options for starting a workflow run.
type StartRunRequest struct {
	StartNodes    []string                    `json:"start_nodes,omitempty"`
	Input         map[string]any              `json:"input,omitempty"`
	Authorization models.ToolsetAuthorization `json:"authorization,omitempty"`
}

// RunStatusResponse pairs a run with its node execution records.
type RunStatusResponse struct {
	Run     *models.WorkflowRun           `json:"run"`
	Records []*models.NodeExecutionRecord `json:"records"`
}

// Run handles run lifecycle operations: start, status, abort, and
// authorization retry. Execution itself happens on workers; StartRun only
// materializes the run and hands it off through the event bus.
type Run struct {
	persistence persistence.Persistence
	scheduler   *scheduler.Scheduler
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

// NewRun creates a new run service.
func NewRun(p persistence.Persistence, s *scheduler.Scheduler, publisher eventbus.EventPublisher, logger *slog.Logger) *Run {
	return &Run{
		persistence: p,
		scheduler:   s,
		publisher:   publisher,
		logger:      logger.With("module", "run_service"),
	}
}

// StartRun initializes a run for the workflow. When the toolset gate passes,
// the run is left in pending state and a start request is published for a
// worker to pick up; when it blocks, the run is returned in init state with
// its blockers listed.
func (r *Run) StartRun(ctx context.Context, workflowID string, req StartRunRequest) (*models.WorkflowRun, error) {
	workflow, err := r.fetchWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	run, err := r.scheduler.StartRun(ctx, workflow, scheduler.StartOptions{
		StartNodes:    req.StartNodes,
		Input:         req.Input,
		Authorization: req.Authorization,
	})
	if err != nil {
		return nil, err
	}

	if run.Status == models.RunStatusPending {
		r.requestExecution(ctx, run)
	}

	return run, nil
}

// GetRunStatus returns the run together with all its node execution records.
func (r *Run) GetRunStatus(ctx context.Context, runID string) (*RunStatusResponse, error) {
	run, err := r.persistence.RunRepository().GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	records, err := r.persistence.NodeExecutionRepository().ListByRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	return &RunStatusResponse{Run: run, Records: records}, nil
}

// ListRuns returns the runs of a workflow, newest last.
func (r *Run) ListRuns(ctx context.Context, workflowID string) ([]*models.WorkflowRun, error) {
	if _, err := r.fetchWorkflow(ctx, workflowID); err != nil {
		return nil, err
	}

	return r.persistence.RunRepository().ListByWorkflow(ctx, workflowID)
}

// AbortRun requests termination of a run. Aborting a terminal run is a
// no-op returning the stored run.
func (r *Run) AbortRun(ctx context.Context, runID string) (*models.WorkflowRun, error) {
	return r.scheduler.Abort(ctx, runID)
}

// RetryAuthorization re-checks the toolset gate on an init run with a fresh
// authorization set. On success the run moves to pending and is handed to a
// worker.
func (r *Run) RetryAuthorization(ctx context.Context, runID string, auth models.ToolsetAuthorization) (*models.WorkflowRun, error) {
	run, err := r.persistence.RunRepository().GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}

	workflow, err := r.fetchWorkflow(ctx, run.WorkflowID)
	if err != nil {
		return nil, err
	}

	retried, err := r.scheduler.RetryStart(ctx, workflow, runID, auth)
	if err != nil {
		return nil, err
	}

	if retried.Status == models.RunStatusPending {
		r.requestExecution(ctx, retried)
	}

	return retried, nil
}

func (r *Run) fetchWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := r.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	return workflow, nil
}

func (r *Run) requestExecution(ctx context.Context, run *models.WorkflowRun) {
	if r.publisher == nil {
		return
	}

	event := events.RunStartRequested{
		BaseEvent:  events.NewBaseEvent(events.RunStartRequestedEvent, run.WorkflowID),
		RunID:      run.ID,
		StartNodes: run.StartNodes,
		Input:      run.Input,
	}

	if err := r.publisher.Publish(ctx, run.WorkflowID, event); err != nil {
		r.logger.Error("failed to publish run start request", "run_id", run.ID, "error", err)
	}
}
