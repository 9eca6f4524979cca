package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"

	"github.com/skillweave/skillweave/pkg/models"
)

// CreditUsageRepository stores immutable billing records as JSON documents.
type CreditUsageRepository struct {
	root string
}

// NewCreditUsageRepository creates a new credit usage repository.
func NewCreditUsageRepository(root string) *CreditUsageRepository {
	return &CreditUsageRepository{root: root}
}

// Save persists a billing record. Records are write-once; overwriting an
// existing ID is treated as a caller bug but not detected here.
func (cr *CreditUsageRepository) Save(_ context.Context, usage *models.CreditUsage) error {
	dir := path.Join(cr.root, "credits")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create credits directory: %w", err)
	}

	data, err := json.MarshalIndent(usage, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credit usage %s: %w", usage.ID, err)
	}

	return os.WriteFile(path.Join(dir, usage.ID+".json"), data, 0600)
}

// ListByScope returns every record billed against the given scope, oldest first.
func (cr *CreditUsageRepository) ListByScope(_ context.Context, scope models.UsageScope, scopeID string) ([]*models.CreditUsage, error) {
	dir := path.Join(cr.root, "credits")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return []*models.CreditUsage{}, nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(dir), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list credit files: %w", err)
	}

	records := make([]*models.CreditUsage, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		body, err := os.ReadFile(path.Join(dir, file))
		if err != nil {
			return nil, fmt.Errorf("failed to read credit file %s: %w", file, err)
		}

		var usage models.CreditUsage

		if err := json.Unmarshal(body, &usage); err != nil {
			return nil, fmt.Errorf("failed to unmarshal credit file %s: %w", file, err)
		}

		if usage.Scope == scope && usage.ScopeID == scopeID {
			records = append(records, &usage)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})

	return records, nil
}
