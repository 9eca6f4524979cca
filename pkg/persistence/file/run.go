package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/skillweave/skillweave/pkg/models"
	"github.com/skillweave/skillweave/pkg/persistence"
)

// RunRepository handles workflow run file operations.
type RunRepository struct {
	root string
}

// NewRunRepository creates a new run repository.
func NewRunRepository(root string) *RunRepository {
	return &RunRepository{root: root}
}

// Save persists a run, overwriting any previous version.
func (rr *RunRepository) Save(_ context.Context, run *models.WorkflowRun) error {
	err := os.MkdirAll(path.Join(rr.root, "runs"), 0750)
	if err != nil {
		return fmt.Errorf("failed to create runs directory: %w", err)
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return persistence.NewRunError("Save", run.ID, err)
	}

	filePath := path.Join(rr.root, "runs", run.ID+".json")

	return os.WriteFile(filePath, data, 0600)
}

// GetByID retrieves a run by its ID.
func (rr *RunRepository) GetByID(_ context.Context, id string) (*models.WorkflowRun, error) {
	filePath := filepath.Clean(path.Join(rr.root, "runs", id+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewRunError("GetByID", id, persistence.ErrRunNotFound)
		}

		return nil, persistence.NewRunError("GetByID", id, err)
	}

	var run models.WorkflowRun

	err = json.Unmarshal(body, &run)
	if err != nil {
		return nil, persistence.NewRunError("GetByID", id, err)
	}

	return &run, nil
}

// ListByWorkflow returns every run of the given workflow, oldest first.
func (rr *RunRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.WorkflowRun, error) {
	dir := path.Join(rr.root, "runs")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []*models.WorkflowRun{}, nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list run files: %w", err)
	}

	runs := make([]*models.WorkflowRun, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		run, err := rr.GetByID(ctx, file[:len(file)-5])
		if err != nil {
			return nil, err
		}

		if run.WorkflowID == workflowID {
			runs = append(runs, run)
		}
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})

	return runs, nil
}
