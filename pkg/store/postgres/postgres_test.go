package postgres_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/errandlabs/errand/pkg/models"
	"github.com/errandlabs/errand/pkg/store"
	"github.com/errandlabs/errand/pkg/store/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

var pgContainer *tcpostgres.PostgresContainer

func setupTestStore(t *testing.T) (*postgres.Store, context.Context) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container-backed store test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	t.Cleanup(cancel)

	if pgContainer == nil || !pgContainer.IsRunning() {
		var err error

		pgContainer, err = tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("errand_test"),
			tcpostgres.WithUsername("errand"),
			tcpostgres.WithPassword("errand"),
			tcpostgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := postgres.NewStore(ctx, slog.Default(), databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		_, _ = s.Sweep(ctx, time.Now().UTC().Add(48*time.Hour))
		_ = s.Close(ctx)
	})

	return s, ctx
}

func TestStoreIntegration_WorkflowLifecycle(t *testing.T) {
	s, ctx := setupTestStore(t)

	wf := models.NewWorkflow("pg-session-1", "user-1", "email the report to John")
	wf.Steps = append(wf.Steps, models.NewStep("send the report", models.DomainEmail, "email the report to John", models.RiskWrite))
	wf.Renumber()
	wf.Touch(time.Hour, 24*time.Hour)

	require.NoError(t, s.PutWorkflow(ctx, wf))
	assert.Equal(t, int64(1), wf.Version)

	got, err := s.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, wf.OriginalRequest, got.OriginalRequest)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, models.DomainEmail, got.Steps[0].TargetDomain)

	// Session index.
	active, err := s.ActiveBySession(ctx, "pg-session-1")
	require.NoError(t, err)
	assert.Equal(t, wf.ID, active.ID)

	// Optimistic locking: a stale version must not win.
	stale, err := s.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)

	got.IterationCount = 1
	got.Touch(time.Hour, 24*time.Hour)
	require.NoError(t, s.PutWorkflow(ctx, got))

	stale.IterationCount = 99
	err = s.PutWorkflow(ctx, stale)
	require.Error(t, err)
	assert.True(t, store.IsVersionConflict(err))

	// Terminal status releases the session.
	got.Status = models.WorkflowStatusCompleted
	got.Touch(time.Hour, 24*time.Hour)
	require.NoError(t, s.PutWorkflow(ctx, got))

	_, err = s.ActiveBySession(ctx, "pg-session-1")
	assert.True(t, store.IsNoActiveWorkflow(err))

	require.NoError(t, s.DeleteWorkflow(ctx, wf.ID))
	_, err = s.GetWorkflow(ctx, wf.ID)
	assert.True(t, store.IsWorkflowNotFound(err))
}

func TestStoreIntegration_SessionExclusivity(t *testing.T) {
	s, ctx := setupTestStore(t)

	first := models.NewWorkflow("pg-session-2", "user-1", "first task")
	first.Touch(time.Hour, 24*time.Hour)
	require.NoError(t, s.PutWorkflow(ctx, first))

	second := models.NewWorkflow("pg-session-2", "user-1", "second task")
	second.Touch(time.Hour, 24*time.Hour)

	err := s.PutWorkflow(ctx, second)
	require.Error(t, err)
	assert.True(t, store.IsSessionBusy(err))

	require.NoError(t, s.DeleteWorkflow(ctx, first.ID))
}

func TestStoreIntegration_DraftsAndSweep(t *testing.T) {
	s, ctx := setupTestStore(t)

	wf := models.NewWorkflow("pg-session-3", "user-1", "email the report to John")
	wf.Touch(time.Hour, 24*time.Hour)
	require.NoError(t, s.PutWorkflow(ctx, wf))

	draft := models.NewDraft(wf.ID, "step-1", "Send 'report.pdf' to john@example.com?", 5*time.Minute)
	require.NoError(t, s.PutDraft(ctx, draft))

	got, err := s.DraftByWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, draft.PreviewText, got.PreviewText)

	// Sweeping past the draft TTL removes the draft but not the workflow.
	evicted, err := s.Sweep(ctx, time.Now().UTC().Add(10*time.Minute))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, evicted, 1)

	_, err = s.DraftByWorkflow(ctx, wf.ID)
	assert.True(t, store.IsDraftNotFound(err))

	_, err = s.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)

	require.NoError(t, s.DeleteWorkflow(ctx, wf.ID))
}
