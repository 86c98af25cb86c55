// Package models defines the core domain models for conversational task orchestration.
package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusActive               WorkflowStatus = "active"
	WorkflowStatusAwaitingConfirmation WorkflowStatus = "awaiting_confirmation"
	WorkflowStatusAwaitingUserInput    WorkflowStatus = "awaiting_user_input"
	WorkflowStatusPaused               WorkflowStatus = "paused"
	WorkflowStatusCompleted            WorkflowStatus = "completed"
	WorkflowStatusCancelled            WorkflowStatus = "cancelled"
	WorkflowStatusFailed               WorkflowStatus = "failed"
)

// Terminal reports whether the workflow has reached a final state.
func (s WorkflowStatus) Terminal() bool {
	return s == WorkflowStatusCompleted || s == WorkflowStatusCancelled || s == WorkflowStatusFailed
}

// Open reports whether the workflow still claims its session. A session may
// hold at most one open workflow at a time.
func (s WorkflowStatus) Open() bool {
	return !s.Terminal()
}

// Workflow is one tracked multi-step task for a single user request.
type Workflow struct {
	ID              string         `json:"id"`
	SessionID       string         `json:"session_id"      validate:"required"`
	UserID          string         `json:"user_id"         validate:"required"`
	Status          WorkflowStatus `json:"status"          validate:"required"`
	OriginalRequest string         `json:"original_request" validate:"required"`
	Steps           []*Step        `json:"steps"`
	CurrentStepIndex int           `json:"current_step_index"`
	GatheredData    map[string]any `json:"gathered_data,omitempty"`
	IterationCount  int            `json:"iteration_count"`

	// Version supports optimistic concurrency in the store. Zero means
	// the workflow has never been persisted.
	Version int64 `json:"version"`

	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// NewWorkflow creates an active workflow for the given user request.
func NewWorkflow(sessionID, userID, originalRequest string) *Workflow {
	now := time.Now().UTC()

	return &Workflow{
		ID:              uuid.New().String(),
		SessionID:       sessionID,
		UserID:          userID,
		Status:          WorkflowStatusActive,
		OriginalRequest: originalRequest,
		Steps:           []*Step{},
		GatheredData:    map[string]any{},
		CreatedAt:       now,
		LastActivityAt:  now,
	}
}

// CurrentStep returns the step the orchestrator should look at next, or nil
// when the plan is exhausted.
func (w *Workflow) CurrentStep() *Step {
	if w.CurrentStepIndex < 0 || w.CurrentStepIndex >= len(w.Steps) {
		return nil
	}

	return w.Steps[w.CurrentStepIndex]
}

// RemainingSteps returns the not-yet-executed tail of the plan. Plan
// modifications may only touch this slice; everything before
// CurrentStepIndex is immutable history.
func (w *Workflow) RemainingSteps() []*Step {
	if w.CurrentStepIndex >= len(w.Steps) {
		return nil
	}

	return w.Steps[w.CurrentStepIndex:]
}

// StepByID finds a step anywhere in the plan.
func (w *Workflow) StepByID(stepID string) *Step {
	for _, step := range w.Steps {
		if step.ID == stepID {
			return step
		}
	}

	return nil
}

// Record stores a named result in GatheredData. The map is append-only: a
// key that already exists is never overwritten, the value is stored under a
// numbered variant instead.
func (w *Workflow) Record(key string, value any) string {
	if w.GatheredData == nil {
		w.GatheredData = map[string]any{}
	}

	if _, exists := w.GatheredData[key]; !exists {
		w.GatheredData[key] = value

		return key
	}

	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s#%d", key, i)
		if _, exists := w.GatheredData[candidate]; !exists {
			w.GatheredData[candidate] = value

			return candidate
		}
	}
}

// HasData reports whether any gathered entry exists for the key, including
// numbered variants.
func (w *Workflow) HasData(key string) bool {
	if _, ok := w.GatheredData[key]; ok {
		return true
	}

	_, ok := w.GatheredData[key+"#2"]

	return ok
}

// Touch updates the activity timestamp and recomputes expiry from the TTL
// appropriate for the current status.
func (w *Workflow) Touch(activeTTL, completedTTL time.Duration) {
	now := time.Now().UTC()
	w.LastActivityAt = now

	if w.Status.Terminal() {
		w.ExpiresAt = now.Add(completedTTL)
	} else {
		w.ExpiresAt = now.Add(activeTTL)
	}
}

// Expired reports whether the workflow passed its TTL.
func (w *Workflow) Expired(now time.Time) bool {
	return !w.ExpiresAt.IsZero() && now.After(w.ExpiresAt)
}

// Renumber rewrites every step's sequence number from its position. Called
// after any structural plan edit.
func (w *Workflow) Renumber() {
	for i, step := range w.Steps {
		step.SequenceNumber = i + 1
	}
}
