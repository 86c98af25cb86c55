// Package gateway error taxonomy shared by every agent implementation.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies an agent failure for recovery decisions.
type ErrorKind string

const (
	// KindTransient covers network and rate-limit failures; retryable.
	KindTransient ErrorKind = "transient"
	// KindAuth covers invalid or expired credentials; surfaced to the user.
	KindAuth ErrorKind = "auth"
	// KindValidation covers malformed requests or parameters; triggers re-planning.
	KindValidation ErrorKind = "validation"
	// KindNotFound covers unresolvable targets such as an unknown contact.
	KindNotFound ErrorKind = "not_found"
	// KindAmbiguous covers requests the agent cannot disambiguate.
	KindAmbiguous ErrorKind = "ambiguous"
)

// Error is a classified agent failure.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Retryable reports whether the executor may retry the dispatch.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransient
}

// NewError creates a classified agent error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Classify maps a raw dispatch error onto the taxonomy. Classified agent
// errors pass through untouched; timeouts, network failures, and anything
// unrecognized are transient, since retrying an idempotent dispatch is safe.
func Classify(err error) *Error {
	var agentErr *Error
	if errors.As(err, &agentErr) {
		return agentErr
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTransient, "agent unreachable: "+err.Error())
	}

	return NewError(KindTransient, err.Error())
}
