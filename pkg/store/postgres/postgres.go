// Package postgres provides a SQL store implementation for deployments that
// want relational durability. Optimistic locking is a version column; the
// one-open-workflow-per-session invariant is a partial unique index.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/errandlabs/errand/pkg/models"
	"github.com/errandlabs/errand/pkg/store"
	"github.com/lib/pq"
)

const openSessionIndex = "workflows_open_session_idx"

// Store implements store.Store on top of PostgreSQL.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewStore connects, migrates, and returns a ready store.
func NewStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := newMigrationManager(logger, db, migrations()).runMigrations(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) PutWorkflow(ctx context.Context, workflow *models.Workflow) error {
	steps, err := json.Marshal(workflow.Steps)
	if err != nil {
		return store.NewWorkflowError("Put", workflow.ID, err)
	}

	gathered, err := json.Marshal(workflow.GatheredData)
	if err != nil {
		return store.NewWorkflowError("Put", workflow.ID, err)
	}

	if workflow.Version == 0 {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO workflows (
				id, session_id, user_id, status, original_request, steps,
				current_step_index, gathered_data, iteration_count, version,
				created_at, last_activity_at, expires_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, $10, $11, $12)`,
			workflow.ID, workflow.SessionID, workflow.UserID, workflow.Status,
			workflow.OriginalRequest, steps, workflow.CurrentStepIndex, gathered,
			workflow.IterationCount, workflow.CreatedAt, workflow.LastActivityAt,
			workflow.ExpiresAt,
		)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
				if pqErr.Constraint == openSessionIndex {
					return store.NewWorkflowError("Put", workflow.ID, store.ErrSessionBusy)
				}

				return store.NewWorkflowError("Put", workflow.ID, store.ErrVersionConflict)
			}

			return store.NewWorkflowError("Put", workflow.ID, err)
		}

		workflow.Version = 1

		return nil
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE workflows SET
			status = $1, steps = $2, current_step_index = $3, gathered_data = $4,
			iteration_count = $5, version = version + 1,
			last_activity_at = $6, expires_at = $7
		WHERE id = $8 AND version = $9`,
		workflow.Status, steps, workflow.CurrentStepIndex, gathered,
		workflow.IterationCount, workflow.LastActivityAt, workflow.ExpiresAt,
		workflow.ID, workflow.Version,
	)
	if err != nil {
		return store.NewWorkflowError("Put", workflow.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.NewWorkflowError("Put", workflow.ID, err)
	}

	if affected == 0 {
		return store.NewWorkflowError("Put", workflow.ID, store.ErrVersionConflict)
	}

	workflow.Version++

	return nil
}

const workflowColumns = `
	id, session_id, user_id, status, original_request, steps,
	current_step_index, gathered_data, iteration_count, version,
	created_at, last_activity_at, expires_at`

func (s *Store) scanWorkflow(row *sql.Row) (*models.Workflow, error) {
	var (
		workflow models.Workflow
		steps    []byte
		gathered []byte
	)

	err := row.Scan(
		&workflow.ID, &workflow.SessionID, &workflow.UserID, &workflow.Status,
		&workflow.OriginalRequest, &steps, &workflow.CurrentStepIndex, &gathered,
		&workflow.IterationCount, &workflow.Version,
		&workflow.CreatedAt, &workflow.LastActivityAt, &workflow.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(steps, &workflow.Steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps: %w", err)
	}

	if err := json.Unmarshal(gathered, &workflow.GatheredData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gathered data: %w", err)
	}

	return &workflow, nil
}

func (s *Store) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT"+workflowColumns+" FROM workflows WHERE id = $1 AND expires_at > NOW()", id)

	workflow, err := s.scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.NewWorkflowError("Get", id, store.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, store.NewWorkflowError("Get", id, err)
	}

	return workflow, nil
}

func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM workflows WHERE id = $1", id)
	if err != nil {
		return store.NewWorkflowError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return store.NewWorkflowError("Delete", id, err)
	}

	if affected == 0 {
		return store.NewWorkflowError("Delete", id, store.ErrWorkflowNotFound)
	}

	return nil
}

func (s *Store) ActiveBySession(ctx context.Context, sessionID string) (*models.Workflow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT`+workflowColumns+`
		FROM workflows
		WHERE session_id = $1
			AND status IN ('active', 'awaiting_confirmation', 'awaiting_user_input', 'paused')
			AND expires_at > NOW()`,
		sessionID)

	workflow, err := s.scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNoActiveWorkflow
	}

	if err != nil {
		return nil, err
	}

	return workflow, nil
}

func (s *Store) PutDraft(ctx context.Context, draft *models.Draft) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO drafts (workflow_id, id, step_id, preview_text, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (workflow_id) DO UPDATE SET
			id = EXCLUDED.id, step_id = EXCLUDED.step_id,
			preview_text = EXCLUDED.preview_text,
			created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at`,
		draft.WorkflowID, draft.ID, draft.StepID, draft.PreviewText,
		draft.CreatedAt, draft.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save draft for workflow %s: %w", draft.WorkflowID, err)
	}

	return nil
}

func (s *Store) DraftByWorkflow(ctx context.Context, workflowID string) (*models.Draft, error) {
	var draft models.Draft

	err := s.db.QueryRowContext(ctx, `
		SELECT workflow_id, id, step_id, preview_text, created_at, expires_at
		FROM drafts WHERE workflow_id = $1`,
		workflowID,
	).Scan(&draft.WorkflowID, &draft.ID, &draft.StepID, &draft.PreviewText,
		&draft.CreatedAt, &draft.ExpiresAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrDraftNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load draft for workflow %s: %w", workflowID, err)
	}

	return &draft, nil
}

func (s *Store) DeleteDraft(ctx context.Context, workflowID string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM drafts WHERE workflow_id = $1", workflowID)
	if err != nil {
		return fmt.Errorf("failed to delete draft for workflow %s: %w", workflowID, err)
	}

	return nil
}

// Sweep evicts rows past their TTL.
func (s *Store) Sweep(ctx context.Context, now time.Time) (int, error) {
	evicted := 0

	result, err := s.db.ExecContext(ctx, "DELETE FROM drafts WHERE expires_at < $1", now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep drafts: %w", err)
	}

	if affected, err := result.RowsAffected(); err == nil {
		evicted += int(affected)
	}

	result, err = s.db.ExecContext(ctx, "DELETE FROM workflows WHERE expires_at < $1", now)
	if err != nil {
		return evicted, fmt.Errorf("failed to sweep workflows: %w", err)
	}

	if affected, err := result.RowsAffected(); err == nil {
		evicted += int(affected)
	}

	return evicted, nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (s *Store) Close(_ context.Context) error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}
