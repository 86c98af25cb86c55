package models

// Response is the single user-facing reply produced by the orchestrator.
// Internal step structure is never exposed through it.
type Response struct {
	Message           string `json:"message"`
	WorkflowID        string `json:"workflow_id,omitempty"`
	NeedsConfirmation bool   `json:"needs_confirmation,omitempty"`
	NeedsInput        bool   `json:"needs_input,omitempty"`
}
