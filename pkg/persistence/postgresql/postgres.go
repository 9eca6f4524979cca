// Package postgresql provides the PostgreSQL persistence implementation.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/lib/pq" // postgres driver

	"github.com/skillweave/skillweave/pkg/persistence"
	"github.com/skillweave/skillweave/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db            *sql.DB
	logger        *slog.Logger
	workflowRepo  *WorkflowRepository
	runRepo       *RunRepository
	executionRepo *NodeExecutionRepository
	creditRepo    *CreditUsageRepository
	scheduleRepo  *ScheduleRepository
}

// NewPersistence creates a new PostgreSQL persistence layer and runs pending
// schema migrations.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		db:            database,
		logger:        logger,
		workflowRepo:  NewWorkflowRepository(database, logger),
		runRepo:       NewRunRepository(database, logger),
		executionRepo: NewNodeExecutionRepository(database, logger),
		creditRepo:    NewCreditUsageRepository(database, logger),
		scheduleRepo:  NewScheduleRepository(database, logger),
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return p.workflowRepo
}

func (p *Persistence) RunRepository() persistence.RunRepository {
	return p.runRepo
}

func (p *Persistence) NodeExecutionRepository() persistence.NodeExecutionRepository {
	return p.executionRepo
}

func (p *Persistence) CreditUsageRepository() persistence.CreditUsageRepository {
	return p.creditRepo
}

func (p *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return p.scheduleRepo
}
