package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/skillweave/skillweave/pkg/models"
	"github.com/skillweave/skillweave/pkg/persistence"
)

// ScheduleRepository handles schedule database operations.
type ScheduleRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(db *sql.DB, logger *slog.Logger) *ScheduleRepository {
	return &ScheduleRepository{db: db, logger: logger}
}

const scheduleColumns = `id, workflow_id, cron_expression, input, next_due_at, active, created_at, updated_at`

// Save upserts a schedule row.
func (sr *ScheduleRepository) Save(ctx context.Context, schedule *models.Schedule) error {
	inputJSON, err := json.Marshal(schedule.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal schedule input: %w", err)
	}

	query := `
		INSERT INTO schedules (` + scheduleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			workflow_id = EXCLUDED.workflow_id,
			cron_expression = EXCLUDED.cron_expression,
			input = EXCLUDED.input,
			next_due_at = EXCLUDED.next_due_at,
			active = EXCLUDED.active,
			updated_at = EXCLUDED.updated_at
	`

	_, err = sr.db.ExecContext(ctx, query,
		schedule.ID,
		schedule.WorkflowID,
		schedule.CronExpression,
		inputJSON,
		schedule.NextDueAt,
		schedule.Active,
		schedule.CreatedAt,
		schedule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save schedule %s: %w", schedule.ID, err)
	}

	return nil
}

// GetByID retrieves a schedule by its ID.
func (sr *ScheduleRepository) GetByID(ctx context.Context, id string) (*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = $1`

	schedule, err := sr.scanSchedule(sr.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrScheduleNotFound
		}

		return nil, fmt.Errorf("failed to get schedule %s: %w", id, err)
	}

	return schedule, nil
}

// ListDue returns active schedules whose next execution time has passed,
// soonest first.
func (sr *ScheduleRepository) ListDue(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE active = true AND next_due_at <= $1 ORDER BY next_due_at ASC`

	rows, err := sr.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due schedules: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			sr.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var schedules []*models.Schedule

	for rows.Next() {
		schedule, err := sr.scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}

		schedules = append(schedules, schedule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedules: %w", err)
	}

	return schedules, nil
}

// Delete removes a schedule by its ID.
func (sr *ScheduleRepository) Delete(ctx context.Context, id string) error {
	_, err := sr.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete schedule %s: %w", id, err)
	}

	return nil
}

func (sr *ScheduleRepository) scanSchedule(row rowScanner) (*models.Schedule, error) {
	var (
		schedule  models.Schedule
		inputJSON []byte
	)

	err := row.Scan(
		&schedule.ID,
		&schedule.WorkflowID,
		&schedule.CronExpression,
		&inputJSON,
		&schedule.NextDueAt,
		&schedule.Active,
		&schedule.CreatedAt,
		&schedule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(inputJSON) > 0 {
		if err := json.Unmarshal(inputJSON, &schedule.Input); err != nil {
			return nil, fmt.Errorf("failed to unmarshal schedule input: %w", err)
		}
	}

	return &schedule, nil
}
