package services

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillweave/skillweave/pkg/credits"
	"github.com/skillweave/skillweave/pkg/models"
)

func newCreditsService(t *testing.T) (*Credits, *models.CreditUsage) {
	t.Helper()

	p := newTestPersistence(t)

	meter := credits.NewMeter(credits.RateTable{
		"text": {Modality: "text", InputCost: 0.5, OutputCost: 2.0},
	}, slog.Default())

	record := meter.Record("run-1", "n1", &models.UsageReport{
		Modality:    "text",
		PromptUnits: 2000,
		OutputUnits: 500,
	})
	require.NotNil(t, record)
	require.NoError(t, p.CreditUsageRepository().Save(context.Background(), record))

	return NewCredits(p, meter), record
}

func TestCredits_GetCreditCost(t *testing.T) {
	svc, _ := newCreditsService(t)

	resp, err := svc.GetCreditCost(&models.UsageReport{
		Modality:    "text",
		PromptUnits: 2000,
		OutputUnits: 500,
	})
	require.NoError(t, err)

	// (2000/1000)*0.5 + (500/1000)*2.0
	assert.InDelta(t, 2.0, resp.Amount, 1e-9)
	assert.InDelta(t, 2.0, resp.DueAmount, 1e-9)
}

func TestCredits_GetCreditCostUnknownModality(t *testing.T) {
	svc, _ := newCreditsService(t)

	resp, err := svc.GetCreditCost(&models.UsageReport{Modality: "hologram", PromptUnits: 100})
	require.NoError(t, err)
	assert.Zero(t, resp.Amount)
}

func TestCredits_GetCreditCostNilUsage(t *testing.T) {
	svc, _ := newCreditsService(t)

	_, err := svc.GetCreditCost(nil)
	assert.True(t, IsValidationError(err))
}

func TestCredits_AggregateUsage(t *testing.T) {
	ctx := context.Background()
	svc, record := newCreditsService(t)

	agg, err := svc.AggregateUsage(ctx, models.UsageScopeExecution, record.ScopeID)
	require.NoError(t, err)

	assert.Equal(t, 1, agg.RecordCount)
	assert.InDelta(t, 2.0, agg.TotalAmount, 1e-9)
	assert.Empty(t, agg.UnbilledNodeIDs)
}

func TestCredits_AggregateUsageInvalidScope(t *testing.T) {
	svc, _ := newCreditsService(t)

	_, err := svc.AggregateUsage(context.Background(), "galaxy", "x")
	assert.True(t, IsValidationError(err))

	_, err = svc.AggregateUsage(context.Background(), models.UsageScopeExecution, "")
	assert.True(t, IsValidationError(err))
}
