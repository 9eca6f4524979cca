// Package services provides the business operations exposed over HTTP and
// the CLI, plus standardized error types for mapping to transport codes.
package services

import (
	"errors"
	"fmt"

	"github.com/skillweave/skillweave/pkg/persistence"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	// Validation errors (400 Bad Request).
	ErrInvalidRequest       = errors.New("invalid request")
	ErrWorkflowNil          = errors.New("workflow cannot be nil")
	ErrWorkflowNameRequired = errors.New("workflow name is required")
	ErrNodesRequired        = errors.New("workflow must have at least one node")
	ErrInvalidStatus        = errors.New("invalid workflow status")
	ErrInvalidScope         = errors.New("invalid usage scope")
	ErrNodeNotAddressable   = errors.New("node carries no task id")
	ErrGoalRequired         = errors.New("session goal is required")

	// Business logic conflicts (409 Conflict).
	ErrCannotModifyPublished = errors.New("cannot modify published workflow")
	ErrWorkflowNotPublished  = errors.New("workflow is not published")

	// Not-found errors (404), shared with the persistence layer.
	ErrWorkflowNotFound = persistence.ErrWorkflowNotFound
	ErrRunNotFound      = persistence.ErrRunNotFound
	ErrNodeNotFound     = errors.New("node not found")
	ErrSessionNotFound  = errors.New("divergent session not found")

	// Service unavailability (503).
	ErrDispatchUnavailable = errors.New("no event bus configured for dispatch")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsValidationError checks if an error is a validation error that should
// return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, ErrWorkflowNameRequired) ||
		errors.Is(err, ErrNodesRequired) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidScope) ||
		errors.Is(err, ErrNodeNotAddressable) ||
		errors.Is(err, ErrGoalRequired)
}

// IsConflictError checks if an error is a business logic conflict that
// should return HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrCannotModifyPublished) ||
		errors.Is(err, ErrWorkflowNotPublished)
}

// IsNotFoundError checks if an error should return HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrRunNotFound) ||
		errors.Is(err, ErrNodeNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		persistence.IsNodeExecutionNotFound(err)
}
