// Package persistence provides the data storage abstraction layer for
// workflows, runs, node execution records, credit usage, and schedules.
package persistence

import (
	"context"
	"time"

	"github.com/skillweave/skillweave/pkg/models"
)

// Persistence is the root of the storage layer. WorkflowRun and
// NodeExecutionRecord are durable: the scheduler resumes eligibility
// computation purely from what these repositories return.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	RunRepository() RunRepository
	NodeExecutionRepository() NodeExecutionRepository
	CreditUsageRepository() CreditUsageRepository
	ScheduleRepository() ScheduleRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// WorkflowRepository stores workflow definitions.
type WorkflowRepository interface {
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.Workflow, error)

	// NodesBySession returns every node carrying divergent metadata for
	// the given session, ordered by level then creation order.
	NodesBySession(ctx context.Context, sessionID string) ([]*models.Node, error)
}

// RunRepository stores workflow runs. Save is an upsert keyed by run id.
type RunRepository interface {
	Save(ctx context.Context, run *models.WorkflowRun) error
	GetByID(ctx context.Context, id string) (*models.WorkflowRun, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowRun, error)
}

// NodeExecutionRepository stores per-node execution records. Records are
// keyed by (runID, nodeID), created once per run initialization and never
// deleted.
type NodeExecutionRepository interface {
	SaveAll(ctx context.Context, records []*models.NodeExecutionRecord) error
	Save(ctx context.Context, record *models.NodeExecutionRecord) error
	Get(ctx context.Context, runID, nodeID string) (*models.NodeExecutionRecord, error)
	ListByRun(ctx context.Context, runID string) ([]*models.NodeExecutionRecord, error)

	// CompareAndSwapStatus atomically transitions a record from one
	// status to another, returning false when the current status does
	// not match. This is the fencing primitive that keeps duplicate
	// dispatches and redelivered completion callbacks idempotent.
	CompareAndSwapStatus(ctx context.Context, runID, nodeID string, from, to models.NodeExecutionStatus) (bool, error)

	// LatestOutputs returns, per node id, the output of the most recent
	// succeeded execution across all runs of the workflow. Partial runs
	// use this to reuse out-of-scope nodes' prior outputs.
	LatestOutputs(ctx context.Context, workflowID string) (map[string]map[string]any, error)
}

// CreditUsageRepository stores immutable billing records.
type CreditUsageRepository interface {
	Save(ctx context.Context, usage *models.CreditUsage) error
	ListByScope(ctx context.Context, scope models.UsageScope, scopeID string) ([]*models.CreditUsage, error)
}

// ScheduleRepository stores recurring run-start schedules.
type ScheduleRepository interface {
	Save(ctx context.Context, schedule *models.Schedule) error
	GetByID(ctx context.Context, id string) (*models.Schedule, error)
	ListDue(ctx context.Context, now time.Time) ([]*models.Schedule, error)
	Delete(ctx context.Context, id string) error
}
