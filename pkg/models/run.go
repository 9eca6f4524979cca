package models

import "time"

// RunStatus represents the lifecycle state of a workflow run.
type RunStatus string

const (
	RunStatusInit      RunStatus = "init"      // Record created, authorization not yet confirmed
	RunStatusPending   RunStatus = "pending"   // Authorized, execution records materialized
	RunStatusRunning   RunStatus = "running"   // First eligible node dispatched
	RunStatusCompleted RunStatus = "completed" // Every in-scope node ended non-failure
	RunStatusFailed    RunStatus = "failed"    // No further eligibility, at least one failure
	RunStatusAborted   RunStatus = "aborted"   // External abort request
)

// Terminal reports whether the status is final. Terminal runs are immutable
// except for audit fields.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed || s == RunStatusAborted
}

// ToolsetBlocker names an unauthorized toolset and the nodes referencing it.
type ToolsetBlocker struct {
	ToolsetID string   `json:"toolset_id"`
	NodeIDs   []string `json:"node_ids"`
}

// WorkflowRun is one execution instance of a workflow. A non-empty
// StartNodes set means partial execution beginning only at and downstream
// of those nodes. UnauthorizedTools is populated only while the run sits
// in init.
type WorkflowRun struct {
	ID                string           `json:"id"`
	WorkflowID        string           `json:"workflow_id" validate:"required"`
	Status            RunStatus        `json:"status"`
	StartNodes        []string         `json:"start_nodes,omitempty"`
	Input             map[string]any   `json:"input,omitempty"`
	UnauthorizedTools []ToolsetBlocker `json:"unauthorized_tools,omitempty"`
	StartedAt         time.Time        `json:"started_at"`
	FinishedAt        *time.Time       `json:"finished_at,omitempty"`
	ErrorMessage      string           `json:"error_message,omitempty"`
}

// Partial reports whether the run targets a subtree instead of the full graph.
func (r *WorkflowRun) Partial() bool {
	return len(r.StartNodes) > 0
}

// NodeExecutionStatus defines the possible states of one node within a run.
type NodeExecutionStatus string

const (
	NodeExecutionPending   NodeExecutionStatus = "pending"
	NodeExecutionRunning   NodeExecutionStatus = "running"
	NodeExecutionSucceeded NodeExecutionStatus = "succeeded"
	NodeExecutionFailed    NodeExecutionStatus = "failed"
	NodeExecutionSkipped   NodeExecutionStatus = "skipped"
)

// Terminal reports whether the node execution reached a final state.
func (s NodeExecutionStatus) Terminal() bool {
	return s == NodeExecutionSucceeded || s == NodeExecutionFailed || s == NodeExecutionSkipped
}

// SkipReason distinguishes why a node was marked skipped.
type SkipReason string

const (
	SkipReasonNone           SkipReason = ""
	SkipReasonOutOfScope     SkipReason = "out_of_scope"     // Outside a partial run's execution closure
	SkipReasonUpstreamFailed SkipReason = "upstream_failed"  // Failure propagated from a predecessor
	SkipReasonRunAborted     SkipReason = "run_aborted"      // Run aborted before dispatch
)

// UsageReport is the resource consumption an executor reports for one node.
type UsageReport struct {
	Modality    string `json:"modality"`
	PromptUnits int64  `json:"prompt_units"`
	OutputUnits int64  `json:"output_units"`
	CachedUnits int64  `json:"cached_units,omitempty"`
}

// NodeExecutionRecord tracks one node's lifecycle within a run. Records are
// created for every node in scope when the run is initialized, mutated only
// by that node's own lifecycle, and never deleted; they are the durable
// state the scheduler resumes eligibility computation from.
type NodeExecutionRecord struct {
	RunID        string              `json:"run_id"`
	NodeID       string              `json:"node_id"`
	TaskID       string              `json:"task_id,omitempty"`
	Status       NodeExecutionStatus `json:"status"`
	SkipReason   SkipReason          `json:"skip_reason,omitempty"`
	Output       map[string]any      `json:"output,omitempty"`
	Usage        *UsageReport        `json:"usage,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
	StartedAt    *time.Time          `json:"started_at,omitempty"`
	FinishedAt   *time.Time          `json:"finished_at,omitempty"`
}

// Failure reports whether this record counts as a failure for run-status
// purposes: either the node itself failed or it was skipped because an
// upstream node failed.
func (r *NodeExecutionRecord) Failure() bool {
	return r.Status == NodeExecutionFailed ||
		(r.Status == NodeExecutionSkipped && r.SkipReason == SkipReasonUpstreamFailed)
}
