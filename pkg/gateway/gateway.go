// Package gateway defines the single narrow interface through which the
// orchestrator talks to domain agents: one natural-language request in, one
// structured response out. Ambiguity is resolved by the orchestrator before
// dispatch, never by the agent.
package gateway

import (
	"context"

	"github.com/errandlabs/errand/pkg/models"
)

// Request is the envelope sent to a domain agent. The payload is
// unstructured text; everything else is routing and bookkeeping.
type Request struct {
	Domain models.Domain `json:"domain"`
	Text   string        `json:"request"`

	// AuthContext is opaque to the orchestrator and passed through to the
	// agent as-is. Credential handling lives outside this system.
	AuthContext map[string]string `json:"auth_context,omitempty"`

	// IdempotencyKey is stable per (workflowID, stepID, attempt) so a
	// duplicated send produces at most one observable side effect.
	IdempotencyKey string `json:"-"`
}

// Response is the structured result returned by a domain agent.
type Response struct {
	Success   bool           `json:"success"`
	Data      map[string]any `json:"data,omitempty"`
	Summary   string         `json:"summary"`
	ToolsUsed []string       `json:"tools_used,omitempty"`
	Err       *Error         `json:"error,omitempty"`
}

// Gateway dispatches exactly one request to a domain agent.
type Gateway interface {
	Send(ctx context.Context, req Request) (*Response, error)
}
