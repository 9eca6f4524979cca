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
	"sync"
	"time"

	"github.com/skillweave/skillweave/pkg/models"
	"github.com/skillweave/skillweave/pkg/persistence"
)

// NodeExecutionRepository stores node execution records as one JSON document
// per (run, node) pair under executions/<runID>/. A process-wide mutex stands
// in for the row lock a database would provide on status transitions.
type NodeExecutionRepository struct {
	root    string
	runRepo *RunRepository
	mu      sync.Mutex
}

// NewNodeExecutionRepository creates a new node execution repository.
func NewNodeExecutionRepository(root string, runRepo *RunRepository) *NodeExecutionRepository {
	return &NodeExecutionRepository{root: root, runRepo: runRepo}
}

func (er *NodeExecutionRepository) recordPath(runID, nodeID string) string {
	return filepath.Clean(path.Join(er.root, "executions", runID, nodeID+".json"))
}

func (er *NodeExecutionRepository) write(record *models.NodeExecutionRecord) error {
	dir := path.Join(er.root, "executions", record.RunID)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create executions directory: %w", err)
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return persistence.NewExecutionError("Save", record.RunID, record.NodeID, err)
	}

	return os.WriteFile(er.recordPath(record.RunID, record.NodeID), data, 0600)
}

func (er *NodeExecutionRepository) read(runID, nodeID string) (*models.NodeExecutionRecord, error) {
	body, err := os.ReadFile(er.recordPath(runID, nodeID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewExecutionError("Get", runID, nodeID, persistence.ErrNodeExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("Get", runID, nodeID, err)
	}

	var record models.NodeExecutionRecord

	if err := json.Unmarshal(body, &record); err != nil {
		return nil, persistence.NewExecutionError("Get", runID, nodeID, err)
	}

	return &record, nil
}

// SaveAll persists a batch of records, typically the full set materialized at
// run initialization.
func (er *NodeExecutionRepository) SaveAll(_ context.Context, records []*models.NodeExecutionRecord) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	for _, record := range records {
		if err := er.write(record); err != nil {
			return err
		}
	}

	return nil
}

// Save persists a single record, overwriting any previous version.
func (er *NodeExecutionRepository) Save(_ context.Context, record *models.NodeExecutionRecord) error {
	er.mu.Lock()
	defer er.mu.Unlock()

	return er.write(record)
}

// Get retrieves one record by run and node identifier.
func (er *NodeExecutionRepository) Get(_ context.Context, runID, nodeID string) (*models.NodeExecutionRecord, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	return er.read(runID, nodeID)
}

// ListByRun returns every record of a run, ordered by node identifier.
func (er *NodeExecutionRepository) ListByRun(_ context.Context, runID string) ([]*models.NodeExecutionRecord, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	dir := path.Join(er.root, "executions", runID)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []*models.NodeExecutionRecord{}, nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list execution files for run %s: %w", runID, err)
	}

	sort.Strings(jsonFiles)

	records := make([]*models.NodeExecutionRecord, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		record, err := er.read(runID, file[:len(file)-5])
		if err != nil {
			return nil, err
		}

		records = append(records, record)
	}

	return records, nil
}

// CompareAndSwapStatus transitions the record only when its current status
// matches the expected one, reporting whether the swap happened.
func (er *NodeExecutionRepository) CompareAndSwapStatus(_ context.Context, runID, nodeID string, from, to models.NodeExecutionStatus) (bool, error) {
	er.mu.Lock()
	defer er.mu.Unlock()

	record, err := er.read(runID, nodeID)
	if err != nil {
		return false, err
	}

	if record.Status != from {
		return false, nil
	}

	record.Status = to

	now := time.Now().UTC()

	switch to {
	case models.NodeExecutionRunning:
		record.StartedAt = &now
	case models.NodeExecutionSucceeded, models.NodeExecutionFailed, models.NodeExecutionSkipped:
		record.FinishedAt = &now
	}

	return true, er.write(record)
}

// LatestOutputs returns, per node, the output of the most recently finished
// succeeded execution across every run of the workflow.
func (er *NodeExecutionRepository) LatestOutputs(ctx context.Context, workflowID string) (map[string]map[string]any, error) {
	runs, err := er.runRepo.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	outputs := make(map[string]map[string]any)
	finished := make(map[string]time.Time)

	for _, run := range runs {
		records, err := er.ListByRun(ctx, run.ID)
		if err != nil {
			return nil, err
		}

		for _, record := range records {
			if record.Status != models.NodeExecutionSucceeded || record.FinishedAt == nil {
				continue
			}

			if last, ok := finished[record.NodeID]; ok && !record.FinishedAt.After(last) {
				continue
			}

			finished[record.NodeID] = *record.FinishedAt
			outputs[record.NodeID] = record.Output
		}
	}

	return outputs, nil
}
