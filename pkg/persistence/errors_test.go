package persistence

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWorkflowError_WrapsSentinel(t *testing.T) {
	err := NewWorkflowError("GetByID", "wf-1", ErrWorkflowNotFound)

	assert.True(t, IsWorkflowNotFound(err))
	assert.Contains(t, err.Error(), "wf-1")
	assert.Contains(t, err.Error(), "GetByID")
}

func TestExecutionError_WrapsSentinel(t *testing.T) {
	err := NewExecutionError("Get", "run-1", "n1", ErrNodeExecutionNotFound)

	assert.True(t, IsNodeExecutionNotFound(err))
	assert.False(t, IsRunNotFound(err))
	assert.Contains(t, err.Error(), "n1")
	assert.Contains(t, err.Error(), "run-1")
}

func TestRunError_PreservesUnderlying(t *testing.T) {
	underlying := errors.New("disk full")
	err := NewRunError("Save", "run-1", underlying)

	assert.ErrorIs(t, err, underlying)
	assert.False(t, IsRunNotFound(err))
}
