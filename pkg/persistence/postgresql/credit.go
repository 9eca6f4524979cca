package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/skillweave/skillweave/pkg/models"
)

// CreditUsageRepository handles billing record database operations.
type CreditUsageRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewCreditUsageRepository creates a new credit usage repository.
func NewCreditUsageRepository(db *sql.DB, logger *slog.Logger) *CreditUsageRepository {
	return &CreditUsageRepository{db: db, logger: logger}
}

// Save inserts a billing record. Records are immutable; conflicts on ID fail.
func (cr *CreditUsageRepository) Save(ctx context.Context, usage *models.CreditUsage) error {
	query := `
		INSERT INTO credit_usages (id, scope, scope_id, run_id, node_id, modality, units, amount, due_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := cr.db.ExecContext(ctx, query,
		usage.ID,
		usage.Scope,
		usage.ScopeID,
		usage.RunID,
		usage.NodeID,
		usage.Modality,
		usage.Units,
		usage.Amount,
		usage.DueAmount,
		usage.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save credit usage %s: %w", usage.ID, err)
	}

	return nil
}

// ListByScope returns every record billed against the given scope, oldest first.
func (cr *CreditUsageRepository) ListByScope(ctx context.Context, scope models.UsageScope, scopeID string) ([]*models.CreditUsage, error) {
	query := `
		SELECT id, scope, scope_id, run_id, node_id, modality, units, amount, due_amount, created_at
		FROM credit_usages
		WHERE scope = $1 AND scope_id = $2
		ORDER BY created_at ASC
	`

	rows, err := cr.db.QueryContext(ctx, query, scope, scopeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query credit usages: %w", err)
	}

	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			cr.logger.ErrorContext(ctx, "failed to close rows", "error", closeErr)
		}
	}()

	var records []*models.CreditUsage

	for rows.Next() {
		var (
			usage  models.CreditUsage
			runID  sql.NullString
			nodeID sql.NullString
		)

		err := rows.Scan(
			&usage.ID,
			&usage.Scope,
			&usage.ScopeID,
			&runID,
			&nodeID,
			&usage.Modality,
			&usage.Units,
			&usage.Amount,
			&usage.DueAmount,
			&usage.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credit usage: %w", err)
		}

		usage.RunID = runID.String
		usage.NodeID = nodeID.String
		records = append(records, &usage)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credit usages: %w", err)
	}

	return records, nil
}
