package orchestrator

import "errors"

var (
	// ErrNotAwaitingConfirmation is returned when a confirm or deny arrives
	// for a workflow that has nothing gated.
	ErrNotAwaitingConfirmation = errors.New("workflow is not awaiting confirmation")

	// ErrNotSuspended is returned when a resume arrives for a workflow that
	// is not waiting on the user.
	ErrNotSuspended = errors.New("workflow is not suspended")

	// ErrWorkflowTerminal is returned when an operation targets a workflow
	// that already reached a final state.
	ErrWorkflowTerminal = errors.New("workflow already reached a terminal state")
)

func IsNotAwaitingConfirmation(err error) bool {
	return errors.Is(err, ErrNotAwaitingConfirmation)
}

func IsNotSuspended(err error) bool {
	return errors.Is(err, ErrNotSuspended)
}

func IsWorkflowTerminal(err error) bool {
	return errors.Is(err, ErrWorkflowTerminal)
}
