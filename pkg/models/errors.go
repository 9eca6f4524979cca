package models

import (
	"errors"
	"fmt"
)

var (
	// Graph validation errors.
	ErrUnknownNodeReference = errors.New("edge references unknown node")
	ErrUnknownNodeType      = errors.New("unknown node type")

	// Tagged-variant errors: per-type config must match the node type.
	ErrMissingVariantConfig    = errors.New("missing configuration for node type")
	ErrMismatchedVariantConfig = errors.New("configuration does not match node type")

	// Divergent metadata validation errors.
	ErrInvalidDivergentRole   = errors.New("invalid divergent role")
	ErrInvalidDivergentLevel  = errors.New("invalid divergent level")
	ErrInvalidCompletionScore = errors.New("invalid completion score")
	ErrMissingSessionID       = errors.New("divergent metadata requires a session id")

	// ErrInvalidSchedule is returned when schedule validation fails.
	ErrInvalidSchedule = errors.New("invalid schedule configuration")
)

// NodeError wraps a node-scoped validation error with the node identity.
type NodeError struct {
	NodeID string
	Err    error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.NodeID, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

func NewNodeError(nodeID string, err error) *NodeError {
	return &NodeError{NodeID: nodeID, Err: err}
}

// EdgeError wraps an edge-scoped validation error with the offending reference.
type EdgeError struct {
	EdgeID string
	NodeID string
	Err    error
}

func (e *EdgeError) Error() string {
	return fmt.Sprintf("edge %s: node %s: %v", e.EdgeID, e.NodeID, e.Err)
}

func (e *EdgeError) Unwrap() error {
	return e.Err
}

func NewEdgeError(edgeID, nodeID string, err error) *EdgeError {
	return &EdgeError{EdgeID: edgeID, NodeID: nodeID, Err: err}
}
