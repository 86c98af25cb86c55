package models

import (
	"time"

	"github.com/google/uuid"
)

// Draft is a pending, unconfirmed mutating action awaiting user approval.
// It is created by the confirmation gate and destroyed on confirm, deny, or
// expiry.
type Draft struct {
	ID          string    `json:"id"`
	WorkflowID  string    `json:"workflow_id"`
	StepID      string    `json:"step_id"`
	PreviewText string    `json:"preview_text"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// NewDraft creates a draft for a blocked step.
func NewDraft(workflowID, stepID, previewText string, ttl time.Duration) *Draft {
	now := time.Now().UTC()

	return &Draft{
		ID:          uuid.New().String(),
		WorkflowID:  workflowID,
		StepID:      stepID,
		PreviewText: previewText,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

// Expired reports whether the draft lapsed before being confirmed.
func (d *Draft) Expired(now time.Time) bool {
	return now.After(d.ExpiresAt)
}
