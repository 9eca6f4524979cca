// Package credits converts reported resource usage into billable credit
// amounts using per-modality rate tables.
package credits

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/skillweave/skillweave/pkg/models"
)

// Rate defines how one modality category is priced. Costs are credits per
// 1000 units after character conversion, if any.
type Rate struct {
	Modality   string  `json:"modality"`
	InputCost  float64 `json:"input_cost"`
	OutputCost float64 `json:"output_cost"`

	// CacheDiscount is the fraction of the input rate waived for cached
	// input units. Zero means the category defines no discount.
	CacheDiscount float64 `json:"cache_discount,omitempty"`

	// MinCharge floors the computed cost. Zero means no floor.
	MinCharge float64 `json:"min_charge,omitempty"`

	// CharsPerUnit converts reported units to characters before rate
	// application, for character-counted categories. Zero means the
	// reported units are billed directly.
	CharsPerUnit float64 `json:"chars_per_unit,omitempty"`
}

// RateTable maps modality categories to their rates. Supplied externally;
// the meter never mutates it.
type RateTable map[string]Rate

// DefaultRates is the built-in rate table the binaries fall back to when no
// table is configured.
var DefaultRates = RateTable{
	"text": {
		Modality:      "text",
		InputCost:     0.5,
		OutputCost:    2.0,
		CacheDiscount: 0.9,
	},
	"image": {
		Modality:   "image",
		InputCost:  4.0,
		OutputCost: 16.0,
		MinCharge:  0.1,
	},
	"audio": {
		Modality:     "audio",
		InputCost:    1.0,
		OutputCost:   4.0,
		CharsPerUnit: 4,
	},
}

// NonBillableSkills are built-in capabilities that are intentionally free.
// Usage they report produces no credit records.
var NonBillableSkills = map[string]struct{}{
	"get_time":               {},
	"read_file":              {},
	"list_files":             {},
	"read_agent_result":      {},
	"read_tool_result":       {},
	"generate_doc":           {},
	"generate_code_artifact": {},
	"execute_code":           {},
}

// Meter computes credit costs from usage reports. Billing must never block
// functional completion: unknown modalities yield zero cost, not an error.
type Meter struct {
	rates  RateTable
	logger *slog.Logger
}

func NewMeter(rates RateTable, logger *slog.Logger) *Meter {
	return &Meter{
		rates:  rates,
		logger: logger.With("module", "credits"),
	}
}

// Cost computes the charged credits and the pre-discount due amount for a
// usage report.
func (m *Meter) Cost(usage *models.UsageReport) (amount, dueAmount float64) {
	if usage == nil {
		return 0, 0
	}

	rate, ok := m.rates[usage.Modality]
	if !ok {
		m.logger.Warn("unrecognized modality, charging zero", "modality", usage.Modality)

		return 0, 0
	}

	promptUnits := float64(usage.PromptUnits)
	outputUnits := float64(usage.OutputUnits)
	cachedUnits := float64(usage.CachedUnits)

	if rate.CharsPerUnit > 0 {
		promptUnits *= rate.CharsPerUnit
		outputUnits *= rate.CharsPerUnit
		cachedUnits *= rate.CharsPerUnit
	}

	dueAmount = (promptUnits/1000)*rate.InputCost + (outputUnits/1000)*rate.OutputCost

	amount = dueAmount
	if rate.CacheDiscount > 0 && cachedUnits > 0 {
		amount -= (cachedUnits / 1000) * rate.InputCost * rate.CacheDiscount
	}

	if amount < rate.MinCharge {
		amount = rate.MinCharge
	}

	return amount, dueAmount
}

// Record builds an immutable credit usage record for a completed node
// execution, or nil when nothing is billable (unknown modality, zero usage).
func (m *Meter) Record(runID, nodeID string, usage *models.UsageReport) *models.CreditUsage {
	if usage == nil {
		return nil
	}

	amount, dueAmount := m.Cost(usage)
	if amount == 0 && dueAmount == 0 {
		return nil
	}

	return &models.CreditUsage{
		ID:        "cu-" + uuid.New().String()[:8],
		Scope:     models.UsageScopeExecution,
		ScopeID:   runID,
		RunID:     runID,
		NodeID:    nodeID,
		Modality:  usage.Modality,
		Units:     usage.PromptUnits + usage.OutputUnits,
		Amount:    amount,
		DueAmount: dueAmount,
		CreatedAt: time.Now().UTC(),
	}
}

// Aggregate folds records into a per-scope summary, flagging nodes whose
// billable execution completed with zero charged credits.
func Aggregate(scope models.UsageScope, scopeID string, records []*models.CreditUsage) *models.UsageAggregate {
	agg := &models.UsageAggregate{
		Scope:   scope,
		ScopeID: scopeID,
	}

	for _, record := range records {
		agg.TotalAmount += record.Amount
		agg.TotalDue += record.DueAmount
		agg.TotalDiscount += record.Discount()
		agg.RecordCount++

		if record.Amount == 0 && record.NodeID != "" {
			agg.UnbilledNodeIDs = append(agg.UnbilledNodeIDs, record.NodeID)
		}
	}

	return agg
}
