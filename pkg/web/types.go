package web

import "github.com/errandlabs/errand/pkg/models"

// SessionMessageRequest is the conversational entry point payload.
type SessionMessageRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Text   string `json:"text"    validate:"required,min=1,max=4000"`
}

// ResumeWorkflowRequest supplies the input a suspended workflow asked for.
type ResumeWorkflowRequest struct {
	Input string `json:"input" validate:"max=4000"`
}

// WorkflowStatusResponse is the public view of a workflow. Step structure and
// gathered data never leave the engine.
type WorkflowStatusResponse struct {
	WorkflowID        string                `json:"workflow_id"`
	Status            models.WorkflowStatus `json:"status"`
	Message           string                `json:"message"`
	NeedsConfirmation bool                  `json:"needs_confirmation,omitempty"`
	NeedsInput        bool                  `json:"needs_input,omitempty"`
}
