package services

import (
	"context"
	"fmt"

	"github.com/skillweave/skillweave/pkg/credits"
	"github.com/skillweave/skillweave/pkg/models"
	"github.com/skillweave/skillweave/pkg/persistence"
)

// CreditCostResponse is a cost preview for one usage report.
type CreditCostResponse struct {
	Modality  string  `json:"modality"`
	Amount    float64 `json:"amount"`
	DueAmount float64 `json:"due_amount"`
}

// Credits answers billing queries: cost previews and per-scope aggregates.
type Credits struct {
	persistence persistence.Persistence
	meter       *credits.Meter
}

// NewCredits creates a new credits service.
func NewCredits(p persistence.Persistence, meter *credits.Meter) *Credits {
	return &Credits{
		persistence: p,
		meter:       meter,
	}
}

// GetCreditCost prices a usage report against the rate table without
// recording anything.
func (c *Credits) GetCreditCost(usage *models.UsageReport) (*CreditCostResponse, error) {
	if usage == nil {
		return nil, fmt.Errorf("%w: usage report required", ErrInvalidRequest)
	}

	amount, dueAmount := c.meter.Cost(usage)

	return &CreditCostResponse{
		Modality:  usage.Modality,
		Amount:    amount,
		DueAmount: dueAmount,
	}, nil
}

// AggregateUsage sums the credit usage recorded within one scope.
func (c *Credits) AggregateUsage(ctx context.Context, scope models.UsageScope, scopeID string) (*models.UsageAggregate, error) {
	switch scope {
	case models.UsageScopeResult, models.UsageScopeExecution, models.UsageScopeCanvas:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}

	if scopeID == "" {
		return nil, fmt.Errorf("%w: scope id required", ErrInvalidRequest)
	}

	records, err := c.persistence.CreditUsageRepository().ListByScope(ctx, scope, scopeID)
	if err != nil {
		return nil, err
	}

	return credits.Aggregate(scope, scopeID, records), nil
}
