package scheduler

import "errors"

var (
	// ErrRunNotAuthorized indicates the run still sits in init behind
	// unauthorized toolsets and cannot execute.
	ErrRunNotAuthorized = errors.New("run is not authorized to execute")

	// ErrRunNotRetryable indicates an authorization retry on a run that
	// already left init.
	ErrRunNotRetryable = errors.New("run has already left init")

	// ErrStartNodeNotFound indicates a requested start node does not exist
	// in the workflow graph.
	ErrStartNodeNotFound = errors.New("start node not found in workflow")

	// ErrStartNodeMissingTask indicates a requested start node carries no
	// task correlation and cannot be targeted for partial execution.
	ErrStartNodeMissingTask = errors.New("start node has no task correlation")

	// ErrWorkflowNotExecutable indicates the workflow is not in a runnable
	// lifecycle state.
	ErrWorkflowNotExecutable = errors.New("workflow is not executable")
)
