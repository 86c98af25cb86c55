package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/errandlabs/errand/pkg/models"
	"github.com/errandlabs/errand/pkg/store"
	"github.com/errandlabs/errand/pkg/store/redis"
)

var redisContainer *tcredis.RedisContainer

func setupTestStore(t *testing.T) (*redis.Store, context.Context) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping container-backed store test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	t.Cleanup(cancel)

	if redisContainer == nil || !redisContainer.IsRunning() {
		var err error

		redisContainer, err = tcredis.Run(ctx, "redis:7-alpine")
		require.NoError(t, err)
	}

	redisURL, err := redisContainer.ConnectionString(ctx)
	require.NoError(t, err)

	s, err := redis.NewStore(ctx, redisURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = s.Close(ctx)
	})

	return s, ctx
}

func TestStoreIntegration_WorkflowLifecycle(t *testing.T) {
	s, ctx := setupTestStore(t)

	wf := models.NewWorkflow("redis-session-1", "user-1", "email the report to John")
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
	active, err := s.ActiveBySession(ctx, "redis-session-1")
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

	_, err = s.ActiveBySession(ctx, "redis-session-1")
	assert.True(t, store.IsNoActiveWorkflow(err))

	require.NoError(t, s.DeleteWorkflow(ctx, wf.ID))
	_, err = s.GetWorkflow(ctx, wf.ID)
	assert.True(t, store.IsWorkflowNotFound(err))
}

func TestStoreIntegration_SessionExclusivity(t *testing.T) {
	s, ctx := setupTestStore(t)

	first := models.NewWorkflow("redis-session-2", "user-1", "first task")
	first.Touch(time.Hour, 24*time.Hour)
	require.NoError(t, s.PutWorkflow(ctx, first))

	second := models.NewWorkflow("redis-session-2", "user-1", "second task")
	second.Touch(time.Hour, 24*time.Hour)

	err := s.PutWorkflow(ctx, second)
	require.Error(t, err)
	assert.True(t, store.IsSessionBusy(err))

	require.NoError(t, s.DeleteWorkflow(ctx, first.ID))
}

func TestStoreIntegration_Drafts(t *testing.T) {
	s, ctx := setupTestStore(t)

	wf := models.NewWorkflow("redis-session-3", "user-1", "email the report to John")
	wf.Touch(time.Hour, 24*time.Hour)
	require.NoError(t, s.PutWorkflow(ctx, wf))

	draft := models.NewDraft(wf.ID, "step-1", "Send 'report.pdf' to john@example.com?", 5*time.Minute)
	require.NoError(t, s.PutDraft(ctx, draft))

	got, err := s.DraftByWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, draft.PreviewText, got.PreviewText)

	require.NoError(t, s.DeleteDraft(ctx, wf.ID))

	_, err = s.DraftByWorkflow(ctx, wf.ID)
	assert.True(t, store.IsDraftNotFound(err))

	require.NoError(t, s.DeleteWorkflow(ctx, wf.ID))
}

func TestStoreIntegration_NativeExpiry(t *testing.T) {
	s, ctx := setupTestStore(t)

	// Redis key TTL enforces workflow expiry; the minimum TTL floor keeps a
	// workflow persisted at its expiry boundary alive for one more second.
	wf := models.NewWorkflow("redis-session-4", "user-1", "short lived task")
	wf.ExpiresAt = time.Now().UTC()
	require.NoError(t, s.PutWorkflow(ctx, wf))

	_, err := s.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)

	time.Sleep(1500 * time.Millisecond)

	_, err = s.GetWorkflow(ctx, wf.ID)
	assert.True(t, store.IsWorkflowNotFound(err))

	_, err = s.ActiveBySession(ctx, "redis-session-4")
	assert.True(t, store.IsNoActiveWorkflow(err))
}
