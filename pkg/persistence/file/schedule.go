package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"time"

	"github.com/skillweave/skillweave/pkg/models"
	"github.com/skillweave/skillweave/pkg/persistence"
)

// ScheduleRepository stores recurring run schedules as JSON documents.
type ScheduleRepository struct {
	root string
}

// NewScheduleRepository creates a new schedule repository.
func NewScheduleRepository(root string) *ScheduleRepository {
	return &ScheduleRepository{root: root}
}

// Save persists a schedule, overwriting any previous version.
func (sr *ScheduleRepository) Save(_ context.Context, schedule *models.Schedule) error {
	dir := path.Join(sr.root, "schedules")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create schedules directory: %w", err)
	}

	data, err := json.MarshalIndent(schedule, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schedule %s: %w", schedule.ID, err)
	}

	return os.WriteFile(path.Join(dir, schedule.ID+".json"), data, 0600)
}

// GetByID retrieves a schedule by its ID.
func (sr *ScheduleRepository) GetByID(_ context.Context, id string) (*models.Schedule, error) {
	body, err := os.ReadFile(path.Join(sr.root, "schedules", id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.ErrScheduleNotFound
		}

		return nil, fmt.Errorf("failed to read schedule %s: %w", id, err)
	}

	var schedule models.Schedule

	if err := json.Unmarshal(body, &schedule); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schedule %s: %w", id, err)
	}

	return &schedule, nil
}

// ListDue returns active schedules whose next execution time has passed,
// soonest first.
func (sr *ScheduleRepository) ListDue(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	dir := path.Join(sr.root, "schedules")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []*models.Schedule{}, nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list schedule files: %w", err)
	}

	due := make([]*models.Schedule, 0)

	for _, file := range jsonFiles {
		schedule, err := sr.GetByID(ctx, file[:len(file)-5])
		if err != nil {
			return nil, err
		}

		if schedule.IsDue(now) {
			due = append(due, schedule)
		}
	}

	sort.Slice(due, func(i, j int) bool {
		return due[i].NextDueAt.Before(due[j].NextDueAt)
	})

	return due, nil
}

// Delete removes a schedule by its ID. Deleting a missing schedule is a no-op.
func (sr *ScheduleRepository) Delete(_ context.Context, id string) error {
	err := os.Remove(path.Join(sr.root, "schedules", id+".json"))
	if err != nil && os.IsNotExist(err) {
		return nil
	}

	return err
}
