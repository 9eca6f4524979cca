// Package graph resolves upstream/downstream dependency context over a
// snapshot of workflow nodes and edges.
package graph

import (
	"fmt"

	"github.com/skillweave/skillweave/pkg/models"
)

// Snapshot is an immutable view of a workflow's nodes and edges. Resolver
// methods are pure functions over it; editing the workflow requires taking
// a new snapshot.
type Snapshot struct {
	nodes map[string]*models.Node
	// adjacency by direction, built once per snapshot
	outgoing map[string][]string
	incoming map[string][]string
	order    []string // node ids in definition order, for deterministic output
}

// NewSnapshot builds a snapshot from a workflow's nodes and edges. Edges
// referencing unknown nodes are a graph malformation and fail loudly.
func NewSnapshot(nodes []*models.Node, edges []*models.Edge) (*Snapshot, error) {
	s := &Snapshot{
		nodes:    make(map[string]*models.Node, len(nodes)),
		outgoing: make(map[string][]string),
		incoming: make(map[string][]string),
		order:    make([]string, 0, len(nodes)),
	}

	for _, node := range nodes {
		if _, dup := s.nodes[node.ID]; dup {
			return nil, fmt.Errorf("duplicate node id %q in snapshot", node.ID)
		}

		s.nodes[node.ID] = node
		s.order = append(s.order, node.ID)
	}

	for _, edge := range edges {
		if _, ok := s.nodes[edge.SourceNodeID]; !ok {
			return nil, models.NewEdgeError(edge.ID, edge.SourceNodeID, models.ErrUnknownNodeReference)
		}

		if _, ok := s.nodes[edge.TargetNodeID]; !ok {
			return nil, models.NewEdgeError(edge.ID, edge.TargetNodeID, models.ErrUnknownNodeReference)
		}

		s.outgoing[edge.SourceNodeID] = append(s.outgoing[edge.SourceNodeID], edge.TargetNodeID)
		s.incoming[edge.TargetNodeID] = append(s.incoming[edge.TargetNodeID], edge.SourceNodeID)
	}

	return s, nil
}

// Node returns the node with the given id, or nil.
func (s *Snapshot) Node(id string) *models.Node {
	return s.nodes[id]
}

// NodeIDs returns every node id in definition order.
func (s *Snapshot) NodeIDs() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)

	return out
}

// Predecessors returns the direct upstream neighbors of a node.
func (s *Snapshot) Predecessors(id string) []string {
	return s.incoming[id]
}

// Upstream returns the ordered, deduplicated set of node ids reachable by
// following edges strictly backward from the target, excluding the target
// itself. Each node and edge is visited at most once.
func (s *Snapshot) Upstream(target string) []string {
	return s.traverse(target, s.incoming)
}

// Downstream returns the ordered, deduplicated set of node ids reachable by
// following edges strictly forward from the target, excluding the target
// itself.
func (s *Snapshot) Downstream(target string) []string {
	return s.traverse(target, s.outgoing)
}

func (s *Snapshot) traverse(target string, adjacency map[string][]string) []string {
	visited := map[string]struct{}{target: {}}
	queue := append([]string(nil), adjacency[target]...)

	var result []string

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if _, seen := visited[id]; seen {
			continue
		}

		visited[id] = struct{}{}
		result = append(result, id)
		queue = append(queue, adjacency[id]...)
	}

	return result
}

// Closure computes the execution scope for a partial run: the start nodes
// themselves plus every node downstream of any of them, deduplicated,
// returned in breadth-first discovery order.
func (s *Snapshot) Closure(startNodes []string) []string {
	visited := make(map[string]struct{}, len(startNodes))

	var result []string

	queue := append([]string(nil), startNodes...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if _, seen := visited[id]; seen {
			continue
		}

		visited[id] = struct{}{}
		result = append(result, id)
		queue = append(queue, s.outgoing[id]...)
	}

	return result
}

// TopologicalOrder returns the given scope's node ids in dependency order,
// considering only edges between in-scope nodes. A leftover after Kahn's
// algorithm means the scope contains a cycle that can never resolve.
func (s *Snapshot) TopologicalOrder(scope []string) ([]string, error) {
	inScope := make(map[string]struct{}, len(scope))
	for _, id := range scope {
		inScope[id] = struct{}{}
	}

	indegree := make(map[string]int, len(scope))

	for _, id := range scope {
		indegree[id] = 0
	}

	for _, id := range scope {
		for _, pred := range s.incoming[id] {
			if _, ok := inScope[pred]; ok {
				indegree[id]++
			}
		}
	}

	var ready []string

	for _, id := range scope {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	ordered := make([]string, 0, len(scope))

	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		ordered = append(ordered, id)

		for _, succ := range s.outgoing[id] {
			if _, ok := inScope[succ]; !ok {
				continue
			}

			indegree[succ]--
			if indegree[succ] == 0 {
				ready = append(ready, succ)
			}
		}
	}

	if len(ordered) != len(scope) {
		return nil, fmt.Errorf("%w: %d of %d nodes unreachable", ErrCyclicDependency, len(scope)-len(ordered), len(scope))
	}

	return ordered, nil
}
