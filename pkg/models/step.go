package models

import (
	"fmt"

	"github.com/google/uuid"
)

// Domain identifies which domain agent a step is delegated to.
type Domain string

const (
	DomainEmail     Domain = "email"
	DomainCalendar  Domain = "calendar"
	DomainContacts  Domain = "contacts"
	DomainMessaging Domain = "messaging"
)

// Domains lists every dispatchable domain.
func Domains() []Domain {
	return []Domain{DomainEmail, DomainCalendar, DomainContacts, DomainMessaging}
}

// ParseDomain validates a domain name.
func ParseDomain(s string) (Domain, error) {
	for _, d := range Domains() {
		if string(d) == s {
			return d, nil
		}
	}

	return "", fmt.Errorf("unknown domain: %q", s)
}

// RiskLevel classifies the side effects of a step, assigned at planning time.
type RiskLevel string

const (
	RiskRead        RiskLevel = "read"
	RiskWrite       RiskLevel = "write"
	RiskDestructive RiskLevel = "destructive"
)

// RequiresConfirmation reports whether the confirmation gate must intercept
// the step before dispatch.
func (r RiskLevel) RequiresConfirmation() bool {
	return r != RiskRead
}

// StepStatus represents the execution state of a single step.
type StepStatus string

const (
	StepStatusPending              StepStatus = "pending"
	StepStatusAwaitingConfirmation StepStatus = "awaiting_confirmation"
	StepStatusConfirmed            StepStatus = "confirmed"
	StepStatusExecuting            StepStatus = "executing"
	StepStatusCompleted            StepStatus = "completed"
	StepStatusFailed               StepStatus = "failed"
	StepStatusSkipped              StepStatus = "skipped"
)

// stepTransitions encodes the forward-only status machine. The only
// backward-looking edge is failed -> skipped, used for explicit recovery.
var stepTransitions = map[StepStatus][]StepStatus{
	StepStatusPending:              {StepStatusAwaitingConfirmation, StepStatusExecuting, StepStatusSkipped},
	StepStatusAwaitingConfirmation: {StepStatusConfirmed, StepStatusSkipped, StepStatusFailed},
	StepStatusConfirmed:            {StepStatusExecuting, StepStatusSkipped},
	StepStatusExecuting:            {StepStatusCompleted, StepStatusFailed},
	StepStatusFailed:               {StepStatusSkipped},
	StepStatusCompleted:            {},
	StepStatusSkipped:              {},
}

// Finished reports whether the step will never execute again.
func (s StepStatus) Finished() bool {
	return s == StepStatusCompleted || s == StepStatusFailed || s == StepStatusSkipped
}

// StepResult is the structured outcome of a completed or failed step.
type StepResult struct {
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	Summary   string         `json:"summary"`
	ToolsUsed []string       `json:"tools_used,omitempty"`
}

// Step is one delegated unit of work within a workflow.
type Step struct {
	ID             string      `json:"id"`
	SequenceNumber int         `json:"sequence_number"`
	Description    string      `json:"description"   validate:"required"`
	TargetDomain   Domain      `json:"target_domain" validate:"required"`
	Request        string      `json:"request"       validate:"required"`
	RiskLevel      RiskLevel   `json:"risk_level"    validate:"required"`
	Status         StepStatus  `json:"status"`
	Result         *StepResult `json:"result,omitempty"`

	// FailureReason holds the taxonomy value (transient, auth, validation,
	// not_found, ambiguous, confirmation_expired) when Status is failed.
	FailureReason string `json:"failure_reason,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// NewStep creates a pending step. Sequence numbers are assigned when the
// step is placed into a plan, the retry budget when it is first executed.
func NewStep(description string, domain Domain, request string, risk RiskLevel) *Step {
	return &Step{
		ID:           uuid.New().String(),
		Description:  description,
		TargetDomain: domain,
		Request:      request,
		RiskLevel:    risk,
		Status:       StepStatusPending,
	}
}

// Transition moves the step to the next status, rejecting anything the
// forward-only state machine does not permit.
func (s *Step) Transition(next StepStatus) error {
	for _, allowed := range stepTransitions[s.Status] {
		if allowed == next {
			s.Status = next

			return nil
		}
	}

	return fmt.Errorf("invalid step transition %s -> %s for step %s", s.Status, next, s.ID)
}

// Fail marks the step failed with a taxonomy reason and an explanatory
// result summary.
func (s *Step) Fail(reason, summary string) {
	s.Status = StepStatusFailed
	s.FailureReason = reason
	s.Result = &StepResult{Success: false, Summary: summary}
}
