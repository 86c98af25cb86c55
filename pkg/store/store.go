// Package store provides the durable, TTL-bounded state store abstraction
// for workflows and drafts.
package store

import (
	"context"
	"time"

	"github.com/errandlabs/errand/pkg/models"
)

// Store is the only shared mutable resource in the system. Writes to a
// given workflow must be serialized: PutWorkflow performs an optimistic
// version check and fails with ErrVersionConflict on a lost update.
type Store interface {
	// PutWorkflow persists the workflow. Workflow.Version must match the
	// stored version (zero for a new workflow); on success the version is
	// bumped in place. Creating a second open workflow for a session fails
	// with ErrSessionBusy.
	PutWorkflow(ctx context.Context, workflow *models.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*models.Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error

	// ActiveBySession returns the session's open workflow, or
	// ErrNoActiveWorkflow.
	ActiveBySession(ctx context.Context, sessionID string) (*models.Workflow, error)

	PutDraft(ctx context.Context, draft *models.Draft) error
	DraftByWorkflow(ctx context.Context, workflowID string) (*models.Draft, error)
	DeleteDraft(ctx context.Context, workflowID string) error

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// Sweeper is implemented by stores without native key expiry. The janitor
// calls Sweep periodically to evict workflows and drafts past their TTL.
type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (int, error)
}
