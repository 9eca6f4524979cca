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

// NodeExecutionRepository handles node execution record database operations.
// Status transitions use a conditional UPDATE so concurrent dispatchers and
// redelivered completion callbacks race safely at the database.
type NodeExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewNodeExecutionRepository creates a new node execution repository.
func NewNodeExecutionRepository(db *sql.DB, logger *slog.Logger) *NodeExecutionRepository {
	return &NodeExecutionRepository{db: db, logger: logger}
}

const executionColumns = `run_id, node_id, task_id, status, skip_reason, output, usage, error_message, started_at, finished_at`

// SaveAll persists a batch of records inside one transaction.
func (er *NodeExecutionRepository) SaveAll(ctx context.Context, records []*models.NodeExecutionRecord) error {
	transaction, err := er.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	for _, record := range records {
		if err := er.save(ctx, transaction, record); err != nil {
			_ = transaction.Rollback()

			return err
		}
	}

	return transaction.Commit()
}

// Save upserts a single record.
func (er *NodeExecutionRepository) Save(ctx context.Context, record *models.NodeExecutionRecord) error {
	return er.save(ctx, er.db, record)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (er *NodeExecutionRepository) save(ctx context.Context, db execer, record *models.NodeExecutionRecord) error {
	outputJSON, err := json.Marshal(record.Output)
	if err != nil {
		return persistence.NewExecutionError("Save", record.RunID, record.NodeID, fmt.Errorf("failed to marshal output: %w", err))
	}

	usageJSON, err := json.Marshal(record.Usage)
	if err != nil {
		return persistence.NewExecutionError("Save", record.RunID, record.NodeID, fmt.Errorf("failed to marshal usage: %w", err))
	}

	query := `
		INSERT INTO node_executions (` + executionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (run_id, node_id) DO UPDATE SET
			status = EXCLUDED.status,
			skip_reason = EXCLUDED.skip_reason,
			output = EXCLUDED.output,
			usage = EXCLUDED.usage,
			error_message = EXCLUDED.error_message,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at
	`

	_, err = db.ExecContext(ctx, query,
		record.RunID,
		record.NodeID,
		record.TaskID,
		record.Status,
		record.SkipReason,
		outputJSON,
		usageJSON,
		record.ErrorMessage,
		record.StartedAt,
		record.FinishedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("Save", record.RunID, record.NodeID, err)
	}

	return nil
}

// Get retrieves one record by run and node identifier.
func (er *NodeExecutionRepository) Get(ctx context.Context, runID, nodeID string) (*models.NodeExecutionRecord, error) {
	query := `SELECT ` + executionColumns + ` FROM node_executions WHERE run_id = $1 AND node_id = $2`

	record, err := er.scanRecord(er.db.QueryRowContext(ctx, query, runID, nodeID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("Get", runID, nodeID, persistence.ErrNodeExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("Get", runID, nodeID, err)
	}

	return record, nil
}

// ListByRun returns every record of a run, ordered by node identifier.
func (er *NodeExecutionRepository) ListByRun(ctx context.Context, runID string) ([]*models.NodeExecutionRecord, error) {
	query := `SELECT ` + executionColumns + ` FROM node_executions WHERE run_id = $1 ORDER BY node_id ASC`

	rows, err := er.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query node executions: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			er.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var records []*models.NodeExecutionRecord

	for rows.Next() {
		record, err := er.scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node execution: %w", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating node executions: %w", err)
	}

	return records, nil
}

// CompareAndSwapStatus transitions the record only when its current status
// matches, in a single conditional UPDATE. Timestamps are set by the database
// so transition times stay monotonic across workers.
func (er *NodeExecutionRepository) CompareAndSwapStatus(ctx context.Context, runID, nodeID string, from, to models.NodeExecutionStatus) (bool, error) {
	var timestampClause string

	switch to {
	case models.NodeExecutionRunning:
		timestampClause = ", started_at = NOW()"
	case models.NodeExecutionSucceeded, models.NodeExecutionFailed, models.NodeExecutionSkipped:
		timestampClause = ", finished_at = NOW()"
	}

	query := `UPDATE node_executions SET status = $1` + timestampClause + ` WHERE run_id = $2 AND node_id = $3 AND status = $4`

	result, err := er.db.ExecContext(ctx, query, to, runID, nodeID, from)
	if err != nil {
		return false, persistence.NewExecutionError("CompareAndSwapStatus", runID, nodeID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, persistence.NewExecutionError("CompareAndSwapStatus", runID, nodeID, err)
	}

	if affected == 0 {
		// Distinguish a lost race from a missing record.
		if _, err := er.Get(ctx, runID, nodeID); err != nil {
			return false, err
		}

		return false, nil
	}

	return true, nil
}

// LatestOutputs returns, per node, the output of the most recently finished
// succeeded execution across every run of the workflow.
func (er *NodeExecutionRepository) LatestOutputs(ctx context.Context, workflowID string) (map[string]map[string]any, error) {
	query := `
		SELECT DISTINCT ON (ne.node_id) ne.node_id, ne.output
		FROM node_executions ne
		JOIN workflow_runs wr ON wr.id = ne.run_id
		WHERE wr.workflow_id = $1 AND ne.status = $2 AND ne.finished_at IS NOT NULL
		ORDER BY ne.node_id, ne.finished_at DESC
	`

	rows, err := er.db.QueryContext(ctx, query, workflowID, models.NodeExecutionSucceeded)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest outputs: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			er.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	outputs := make(map[string]map[string]any)

	for rows.Next() {
		var (
			nodeID     string
			outputJSON []byte
		)

		if err := rows.Scan(&nodeID, &outputJSON); err != nil {
			return nil, fmt.Errorf("failed to scan latest output: %w", err)
		}

		var output map[string]any
		if len(outputJSON) > 0 {
			if err := json.Unmarshal(outputJSON, &output); err != nil {
				return nil, fmt.Errorf("failed to unmarshal output for node %s: %w", nodeID, err)
			}
		}

		outputs[nodeID] = output
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating latest outputs: %w", err)
	}

	return outputs, nil
}

func (er *NodeExecutionRepository) scanRecord(row rowScanner) (*models.NodeExecutionRecord, error) {
	var (
		record       models.NodeExecutionRecord
		taskID       sql.NullString
		skipReason   sql.NullString
		outputJSON   []byte
		usageJSON    []byte
		errorMessage sql.NullString
	)

	err := row.Scan(
		&record.RunID,
		&record.NodeID,
		&taskID,
		&record.Status,
		&skipReason,
		&outputJSON,
		&usageJSON,
		&errorMessage,
		&record.StartedAt,
		&record.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	record.TaskID = taskID.String
	record.SkipReason = models.SkipReason(skipReason.String)
	record.ErrorMessage = errorMessage.String

	if len(outputJSON) > 0 {
		if err := json.Unmarshal(outputJSON, &record.Output); err != nil {
			return nil, fmt.Errorf("failed to unmarshal output: %w", err)
		}
	}

	if len(usageJSON) > 0 {
		if err := json.Unmarshal(usageJSON, &record.Usage); err != nil {
			return nil, fmt.Errorf("failed to unmarshal usage: %w", err)
		}
	}

	return &record, nil
}
