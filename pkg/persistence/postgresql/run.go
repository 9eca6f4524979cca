package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/skillweave/skillweave/pkg/models"
	"github.com/skillweave/skillweave/pkg/persistence"
)

// RunRepository handles workflow run database operations.
type RunRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunRepository creates a new run repository.
func NewRunRepository(db *sql.DB, logger *slog.Logger) *RunRepository {
	return &RunRepository{db: db, logger: logger}
}

const runColumns = `id, workflow_id, status, start_nodes, input, unauthorized_tools, error_message, started_at, finished_at`

// Save upserts a run row.
func (rr *RunRepository) Save(ctx context.Context, run *models.WorkflowRun) error {
	startNodesJSON, err := json.Marshal(run.StartNodes)
	if err != nil {
		return persistence.NewRunError("Save", run.ID, fmt.Errorf("failed to marshal start nodes: %w", err))
	}

	inputJSON, err := json.Marshal(run.Input)
	if err != nil {
		return persistence.NewRunError("Save", run.ID, fmt.Errorf("failed to marshal input: %w", err))
	}

	blockersJSON, err := json.Marshal(run.UnauthorizedTools)
	if err != nil {
		return persistence.NewRunError("Save", run.ID, fmt.Errorf("failed to marshal blockers: %w", err))
	}

	query := `
		INSERT INTO workflow_runs (` + runColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			start_nodes = EXCLUDED.start_nodes,
			input = EXCLUDED.input,
			unauthorized_tools = EXCLUDED.unauthorized_tools,
			error_message = EXCLUDED.error_message,
			finished_at = EXCLUDED.finished_at
	`

	_, err = rr.db.ExecContext(ctx, query,
		run.ID,
		run.WorkflowID,
		run.Status,
		startNodesJSON,
		inputJSON,
		blockersJSON,
		run.ErrorMessage,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return persistence.NewRunError("Save", run.ID, err)
	}

	return nil
}

// GetByID retrieves a run by its ID.
func (rr *RunRepository) GetByID(ctx context.Context, id string) (*models.WorkflowRun, error) {
	query := `SELECT ` + runColumns + ` FROM workflow_runs WHERE id = $1`

	run, err := rr.scanRun(rr.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewRunError("GetByID", id, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError("GetByID", id, err)
	}

	return run, nil
}

// ListByWorkflow returns every run of the workflow, oldest first.
func (rr *RunRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowRun, error) {
	query := `SELECT ` + runColumns + ` FROM workflow_runs WHERE workflow_id = $1 ORDER BY started_at ASC`

	rows, err := rr.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			rr.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var runs []*models.WorkflowRun

	for rows.Next() {
		run, err := rr.scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

func (rr *RunRepository) scanRun(row rowScanner) (*models.WorkflowRun, error) {
	var (
		run            models.WorkflowRun
		startNodesJSON []byte
		inputJSON      []byte
		blockersJSON   []byte
		errorMessage   sql.NullString
	)

	err := row.Scan(
		&run.ID,
		&run.WorkflowID,
		&run.Status,
		&startNodesJSON,
		&inputJSON,
		&blockersJSON,
		&errorMessage,
		&run.StartedAt,
		&run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	run.ErrorMessage = errorMessage.String

	if len(startNodesJSON) > 0 {
		if err := json.Unmarshal(startNodesJSON, &run.StartNodes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal start nodes: %w", err)
		}
	}

	if len(inputJSON) > 0 {
		if err := json.Unmarshal(inputJSON, &run.Input); err != nil {
			return nil, fmt.Errorf("failed to unmarshal input: %w", err)
		}
	}

	if len(blockersJSON) > 0 {
		if err := json.Unmarshal(blockersJSON, &run.UnauthorizedTools); err != nil {
			return nil, fmt.Errorf("failed to unmarshal blockers: %w", err)
		}
	}

	return &run, nil
}
