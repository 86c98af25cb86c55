// Package store provides standardized error types shared by all store
// implementations.
package store

import (
	"errors"
	"fmt"
)

var (
	// ErrWorkflowNotFound indicates no workflow exists for the identifier.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrDraftNotFound indicates no pending draft exists for the workflow.
	ErrDraftNotFound = errors.New("draft not found")

	// ErrNoActiveWorkflow indicates the session has no open workflow.
	ErrNoActiveWorkflow = errors.New("no active workflow for session")

	// ErrVersionConflict indicates a concurrent writer updated the workflow
	// between read and write.
	ErrVersionConflict = errors.New("workflow version conflict")

	// ErrSessionBusy indicates the session already holds an open workflow.
	ErrSessionBusy = errors.New("session already has an active workflow")
)

// WorkflowError wraps workflow store errors with operation context.
type WorkflowError struct {
	Op         string // Operation being performed (e.g., "Put", "Get", "Delete")
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

// NewWorkflowError creates a workflow store error with context.
func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{Op: op, WorkflowID: workflowID, Err: err}
}

// IsWorkflowNotFound checks if an error indicates a missing workflow.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

// IsDraftNotFound checks if an error indicates a missing draft.
func IsDraftNotFound(err error) bool {
	return errors.Is(err, ErrDraftNotFound)
}

// IsNoActiveWorkflow checks if an error indicates an idle session.
func IsNoActiveWorkflow(err error) bool {
	return errors.Is(err, ErrNoActiveWorkflow)
}

// IsVersionConflict checks if an error indicates a lost-update conflict.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsSessionBusy checks if an error indicates the session is occupied.
func IsSessionBusy(err error) bool {
	return errors.Is(err, ErrSessionBusy)
}
