package models

import "time"

// UsageScope identifies what a credit usage record is billed against.
type UsageScope string

const (
	UsageScopeResult    UsageScope = "result"    // One action result
	UsageScopeExecution UsageScope = "execution" // One workflow run
	UsageScopeCanvas    UsageScope = "canvas"    // A whole canvas/workspace surface
)

// CreditUsage is one immutable billing record, created once per completed
// node execution that reports usage. Amount is the charged credit cost;
// DueAmount is the pre-discount price, kept so discounts stay auditable.
type CreditUsage struct {
	ID        string     `json:"id"`
	Scope     UsageScope `json:"scope"`
	ScopeID   string     `json:"scope_id"   validate:"required"`
	RunID     string     `json:"run_id,omitempty"`
	NodeID    string     `json:"node_id,omitempty"`
	Modality  string     `json:"modality"`
	Units     int64      `json:"units"`
	Amount    float64    `json:"amount"`
	DueAmount float64    `json:"due_amount"`
	CreatedAt time.Time  `json:"created_at"`
}

// Discount returns the credits waived on this record.
func (u *CreditUsage) Discount() float64 {
	if u.DueAmount > u.Amount {
		return u.DueAmount - u.Amount
	}

	return 0
}

// UsageAggregate summarizes credit usage within one scope.
type UsageAggregate struct {
	Scope         UsageScope `json:"scope"`
	ScopeID       string     `json:"scope_id"`
	TotalAmount   float64    `json:"total_amount"`
	TotalDue      float64    `json:"total_due"`
	TotalDiscount float64    `json:"total_discount"`
	RecordCount   int        `json:"record_count"`

	// UnbilledNodeIDs flags nodes that completed a billable execution but
	// were charged zero credits, for billing diagnostics.
	UnbilledNodeIDs []string `json:"unbilled_node_ids,omitempty"`
}
