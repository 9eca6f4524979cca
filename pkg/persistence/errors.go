package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrWorkflowNotFound indicates a workflow was not found by the given identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrRunNotFound indicates a workflow run was not found by the given identifier.
	ErrRunNotFound = errors.New("run not found")

	// ErrNodeExecutionNotFound indicates no execution record exists for the run/node pair.
	ErrNodeExecutionNotFound = errors.New("node execution not found")

	// ErrScheduleNotFound indicates a schedule was not found by the given identifier.
	ErrScheduleNotFound = errors.New("schedule not found")

	// ErrDuplicateExecution indicates an execution record already exists for the run/node pair.
	ErrDuplicateExecution = errors.New("duplicate execution record")
)

// WorkflowError wraps workflow-related errors with additional context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	WorkflowID string
	Err        error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow %s: %v", e.Op, e.WorkflowID, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

func (e *WorkflowError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewWorkflowError creates a new workflow error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{
		Op:         op,
		WorkflowID: workflowID,
		Err:        err,
	}
}

// RunError wraps run-related errors with additional context.
type RunError struct {
	Op    string
	RunID string
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s operation failed for run %s: %v", e.Op, e.RunID, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func (e *RunError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewRunError creates a new run error with context.
func NewRunError(op, runID string, err error) *RunError {
	return &RunError{
		Op:    op,
		RunID: runID,
		Err:   err,
	}
}

// ExecutionError wraps node execution record errors with additional context.
type ExecutionError struct {
	Op     string
	RunID  string
	NodeID string
	Err    error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s operation failed for node %s in run %s: %v", e.Op, e.NodeID, e.RunID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func (e *ExecutionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewExecutionError creates a new execution record error with context.
func NewExecutionError(op, runID, nodeID string, err error) *ExecutionError {
	return &ExecutionError{
		Op:     op,
		RunID:  runID,
		NodeID: nodeID,
		Err:    err,
	}
}

// IsWorkflowNotFound checks if an error indicates a workflow was not found.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsRunNotFound checks if an error indicates a run was not found.
func IsRunNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}

// IsNodeExecutionNotFound checks if an error indicates an execution record was not found.
func IsNodeExecutionNotFound(err error) bool {
	return errors.Is(err, ErrNodeExecutionNotFound)
}

// IsScheduleNotFound checks if an error indicates a schedule was not found.
func IsScheduleNotFound(err error) bool {
	return errors.Is(err, ErrScheduleNotFound)
}
