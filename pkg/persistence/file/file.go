// Package file provides file-based persistence backed by JSON documents on disk.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/skillweave/skillweave/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
type Persistence struct {
	root          string
	workflowRepo  *WorkflowRepository
	runRepo       *RunRepository
	executionRepo *NodeExecutionRepository
	creditRepo    *CreditUsageRepository
	scheduleRepo  *ScheduleRepository
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	runRepo := NewRunRepository(cleanRoot)

	return &Persistence{
		root:          cleanRoot,
		workflowRepo:  NewWorkflowRepository(cleanRoot),
		runRepo:       runRepo,
		executionRepo: NewNodeExecutionRepository(cleanRoot, runRepo),
		creditRepo:    NewCreditUsageRepository(cleanRoot),
		scheduleRepo:  NewScheduleRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) RunRepository() persistence.RunRepository {
	return fp.runRepo
}

func (fp *Persistence) NodeExecutionRepository() persistence.NodeExecutionRepository {
	return fp.executionRepo
}

func (fp *Persistence) CreditUsageRepository() persistence.CreditUsageRepository {
	return fp.creditRepo
}

func (fp *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return fp.scheduleRepo
}
