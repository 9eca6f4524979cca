package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDivergentMetadata_ValidPositions(t *testing.T) {
	testCases := []struct {
		name  string
		role  DivergentRole
		level int
	}{
		{name: "execution at level zero", role: DivergentRoleExecution, level: 0},
		{name: "summary at level zero", role: DivergentRoleSummary, level: 0},
		{name: "execution at level cap", role: DivergentRoleExecution, level: MaxDivergentLevel},
		{name: "final output at level three", role: DivergentRoleFinalOutput, level: 3},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			meta, err := NewDivergentMetadata(tc.role, tc.level, "ds-1", nil)
			require.NoError(t, err)
			assert.Equal(t, tc.role, meta.Role)
			assert.Equal(t, tc.level, meta.Level)
		})
	}
}

func TestNewDivergentMetadata_RejectsInvalidInput(t *testing.T) {
	testCases := []struct {
		name      string
		role      DivergentRole
		level     int
		sessionID string
		wantErr   error
	}{
		{name: "unknown role", role: "totalizer", level: 0, sessionID: "ds-1", wantErr: ErrInvalidDivergentRole},
		{name: "negative level", role: DivergentRoleExecution, level: -1, sessionID: "ds-1", wantErr: ErrInvalidDivergentLevel},
		{name: "level above cap", role: DivergentRoleSummary, level: MaxDivergentLevel + 1, sessionID: "ds-1", wantErr: ErrInvalidDivergentLevel},
		{name: "missing session", role: DivergentRoleExecution, level: 1, sessionID: "", wantErr: ErrMissingSessionID},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			meta, err := NewDivergentMetadata(tc.role, tc.level, tc.sessionID, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Nil(t, meta)
		})
	}
}

func TestDivergentMetadata_SetCompletionScore(t *testing.T) {
	meta, err := NewDivergentMetadata(DivergentRoleSummary, 2, "ds-1", []string{"node-1"})
	require.NoError(t, err)

	require.NoError(t, meta.SetCompletionScore(0.85))
	require.NotNil(t, meta.CompletionScore)
	assert.InDelta(t, 0.85, *meta.CompletionScore, 1e-9)
}

func TestDivergentMetadata_SetCompletionScore_OutOfRangeIsFatal(t *testing.T) {
	meta, err := NewDivergentMetadata(DivergentRoleSummary, 1, "ds-1", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, meta.SetCompletionScore(-0.1), ErrInvalidCompletionScore)
	assert.ErrorIs(t, meta.SetCompletionScore(1.5), ErrInvalidCompletionScore)
	assert.Nil(t, meta.CompletionScore, "rejected scores must not be stored")
}

func TestDivergentMetadata_ScoreOnNonSummaryRole(t *testing.T) {
	meta, err := NewDivergentMetadata(DivergentRoleExecution, 1, "ds-1", nil)
	require.NoError(t, err)

	assert.ErrorIs(t, meta.SetCompletionScore(0.5), ErrInvalidDivergentRole)

	score := 0.5
	meta.CompletionScore = &score
	assert.ErrorIs(t, meta.Validate(), ErrInvalidDivergentRole)
}
