// Package events defines event types for workflow lifecycle notifications.
package events

import (
	"time"

	"github.com/errandlabs/errand/pkg/models"
)

type EventType string

// Topic carries every workflow lifecycle event.
const Topic = "errand.workflow.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	WorkflowStartedEvent              EventType = "workflow.started"
	WorkflowStepCompletedEvent        EventType = "workflow.step.completed"
	WorkflowStepFailedEvent           EventType = "workflow.step.failed"
	WorkflowAwaitingConfirmationEvent EventType = "workflow.awaiting_confirmation"
	WorkflowAwaitingInputEvent        EventType = "workflow.awaiting_input"
	WorkflowResumedEvent              EventType = "workflow.resumed"
	WorkflowCompletedEvent            EventType = "workflow.completed"
	WorkflowCancelledEvent            EventType = "workflow.cancelled"
	WorkflowFailedEvent               EventType = "workflow.failed"
	WorkflowIterationExhaustedEvent   EventType = "workflow.iteration_exhausted"
	DraftExpiredEvent                 EventType = "draft.expired"
)

type BaseEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
	WorkflowID string    `json:"workflow_id"`
	SessionID  string    `json:"session_id,omitempty"`
}

type WorkflowStarted struct {
	BaseEvent

	OriginalRequest string `json:"original_request"`
}

func (e WorkflowStarted) GetType() EventType { return WorkflowStartedEvent }

type WorkflowStepCompleted struct {
	BaseEvent

	StepID  string        `json:"step_id"`
	Domain  models.Domain `json:"domain"`
	Summary string        `json:"summary,omitempty"`
}

func (e WorkflowStepCompleted) GetType() EventType { return WorkflowStepCompletedEvent }

type WorkflowStepFailed struct {
	BaseEvent

	StepID string        `json:"step_id"`
	Domain models.Domain `json:"domain"`
	Reason string        `json:"reason"`
}

func (e WorkflowStepFailed) GetType() EventType { return WorkflowStepFailedEvent }

type WorkflowAwaitingConfirmation struct {
	BaseEvent

	StepID      string `json:"step_id"`
	PreviewText string `json:"preview_text"`
}

func (e WorkflowAwaitingConfirmation) GetType() EventType { return WorkflowAwaitingConfirmationEvent }

type WorkflowAwaitingInput struct {
	BaseEvent

	RequiredInfo string `json:"required_info"`
}

func (e WorkflowAwaitingInput) GetType() EventType { return WorkflowAwaitingInputEvent }

type WorkflowResumed struct {
	BaseEvent
}

func (e WorkflowResumed) GetType() EventType { return WorkflowResumedEvent }

type WorkflowCompleted struct {
	BaseEvent

	Summary    string `json:"summary,omitempty"`
	Iterations int    `json:"iterations"`
}

func (e WorkflowCompleted) GetType() EventType { return WorkflowCompletedEvent }

type WorkflowCancelled struct {
	BaseEvent
}

func (e WorkflowCancelled) GetType() EventType { return WorkflowCancelledEvent }

type WorkflowFailed struct {
	BaseEvent

	Reason string `json:"reason"`
}

func (e WorkflowFailed) GetType() EventType { return WorkflowFailedEvent }

type WorkflowIterationExhausted struct {
	BaseEvent

	Iterations int `json:"iterations"`
}

func (e WorkflowIterationExhausted) GetType() EventType { return WorkflowIterationExhaustedEvent }

type DraftExpired struct {
	BaseEvent

	StepID string `json:"step_id"`
}

func (e DraftExpired) GetType() EventType { return DraftExpiredEvent }
