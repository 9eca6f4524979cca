package services

import (
	"context"
	"fmt"

	"github.com/skillweave/skillweave/pkg/graph"
	"github.com/skillweave/skillweave/pkg/persistence"
)

// NodeGraphContext lists the scheduled-work task ids reachable strictly
// upstream and strictly downstream of a node. The two sets are disjoint and
// never include the node's own task.
type NodeGraphContext struct {
	NodeID            string   `json:"node_id"`
	TaskID            string   `json:"task_id"`
	UpstreamTaskIDs   []string `json:"upstream_task_ids"`
	DownstreamTaskIDs []string `json:"downstream_task_ids"`
}

// Context answers graph-context queries for editing surfaces.
type Context struct {
	persistence persistence.Persistence
}

// NewContext creates a new graph context service.
func NewContext(p persistence.Persistence) *Context {
	return &Context{persistence: p}
}

// GetNodeGraphContext resolves the task ids upstream and downstream of the
// node, restricted to nodes carrying a task id. Nodes without a task id are
// transparent to the traversal but contribute nothing to the result.
func (c *Context) GetNodeGraphContext(ctx context.Context, workflowID, nodeID string) (*NodeGraphContext, error) {
	workflow, err := c.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow == nil {
		return nil, ErrWorkflowNotFound
	}

	node := workflow.NodeByID(nodeID)
	if node == nil {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, nodeID)
	}

	if node.TaskID == "" {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotAddressable, nodeID)
	}

	snapshot, err := graph.NewSnapshot(workflow.Nodes, workflow.Edges)
	if err != nil {
		return nil, err
	}

	upstream := taskIDs(snapshot, snapshot.Upstream(nodeID), nil)
	downstream := taskIDs(snapshot, snapshot.Downstream(nodeID), upstream)

	return &NodeGraphContext{
		NodeID:            nodeID,
		TaskID:            node.TaskID,
		UpstreamTaskIDs:   upstream,
		DownstreamTaskIDs: downstream,
	}, nil
}

// taskIDs maps node ids to their task ids, deduplicated in traversal order.
// Ids already claimed by the exclude set are dropped, which keeps the
// upstream and downstream sets disjoint even on unusual graphs.
func taskIDs(snapshot *graph.Snapshot, nodeIDs, exclude []string) []string {
	excluded := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}

	seen := make(map[string]struct{}, len(nodeIDs))
	result := make([]string, 0, len(nodeIDs))

	for _, id := range nodeIDs {
		node := snapshot.Node(id)
		if node == nil || node.TaskID == "" {
			continue
		}

		if _, ok := excluded[node.TaskID]; ok {
			continue
		}

		if _, ok := seen[node.TaskID]; ok {
			continue
		}

		seen[node.TaskID] = struct{}{}
		result = append(result, node.TaskID)
	}

	return result
}
