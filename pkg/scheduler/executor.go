package scheduler

import (
	"context"

	"github.com/skillweave/skillweave/pkg/models"
)

// ExecutionResult carries what a node produced: its output document and the
// resource usage it consumed, if any.
type ExecutionResult struct {
	Output map[string]any
	Usage  *models.UsageReport
}

// Executor performs the actual work of one node. Implementations invoke AI
// skills, call toolsets, or fold aggregate inputs; the scheduler only cares
// about the result and the error.
type Executor interface {
	ExecuteNode(ctx context.Context, run *models.WorkflowRun, node *models.Node, inputs map[string]any) (*ExecutionResult, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, run *models.WorkflowRun, node *models.Node, inputs map[string]any) (*ExecutionResult, error)

func (f ExecutorFunc) ExecuteNode(ctx context.Context, run *models.WorkflowRun, node *models.Node, inputs map[string]any) (*ExecutionResult, error) {
	return f(ctx, run, node, inputs)
}
