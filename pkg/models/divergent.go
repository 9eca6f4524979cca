package models

import "fmt"

// DivergentRole positions a node inside a recursive decomposition session.
type DivergentRole string

const (
	DivergentRoleExecution   DivergentRole = "execution"    // Produces work at a level
	DivergentRoleSummary     DivergentRole = "summary"      // Folds a level's execution outputs
	DivergentRoleFinalOutput DivergentRole = "final_output" // Marks convergence
)

// MaxDivergentLevel is the decomposition depth cap. Sessions never exceed it.
const MaxDivergentLevel = 5

// DivergentMetadata attaches recursive-decomposition position to a node.
// ParentNodeIDs are back-references for session-scoped lookups only, never
// ownership edges. Level and score are validated at construction; out of
// range values are a fatal input error, not a clamp.
type DivergentMetadata struct {
	Role            DivergentRole `json:"role"`
	Level           int           `json:"level"`
	SessionID       string        `json:"session_id"`
	ParentNodeIDs   []string      `json:"parent_node_ids,omitempty"`
	CompletionScore *float64      `json:"completion_score,omitempty"`
}

// NewDivergentMetadata constructs validated divergent metadata.
func NewDivergentMetadata(role DivergentRole, level int, sessionID string, parents []string) (*DivergentMetadata, error) {
	meta := &DivergentMetadata{
		Role:          role,
		Level:         level,
		SessionID:     sessionID,
		ParentNodeIDs: parents,
	}

	if err := meta.Validate(); err != nil {
		return nil, err
	}

	return meta, nil
}

// Validate checks that role and level jointly describe a valid position in
// the recursive loop.
func (m *DivergentMetadata) Validate() error {
	switch m.Role {
	case DivergentRoleExecution, DivergentRoleSummary, DivergentRoleFinalOutput:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDivergentRole, m.Role)
	}

	if m.Level < 0 || m.Level > MaxDivergentLevel {
		return fmt.Errorf("%w: level %d outside [0,%d]", ErrInvalidDivergentLevel, m.Level, MaxDivergentLevel)
	}

	if m.SessionID == "" {
		return ErrMissingSessionID
	}

	// Completion scores are produced by summary skill invocations; other
	// roles never carry one.
	if m.CompletionScore != nil {
		if m.Role != DivergentRoleSummary {
			return fmt.Errorf("%w: role %q cannot carry a completion score", ErrInvalidDivergentRole, m.Role)
		}

		if *m.CompletionScore < 0 || *m.CompletionScore > 1 {
			return fmt.Errorf("%w: score %v outside [0,1]", ErrInvalidCompletionScore, *m.CompletionScore)
		}
	}

	return nil
}

// SetCompletionScore records a summary node's score, rejecting out-of-range
// values.
func (m *DivergentMetadata) SetCompletionScore(score float64) error {
	if m.Role != DivergentRoleSummary {
		return fmt.Errorf("%w: role %q cannot carry a completion score", ErrInvalidDivergentRole, m.Role)
	}

	if score < 0 || score > 1 {
		return fmt.Errorf("%w: score %v outside [0,1]", ErrInvalidCompletionScore, score)
	}

	m.CompletionScore = &score

	return nil
}
