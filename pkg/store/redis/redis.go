// Package redis provides the production store implementation. Redis native
// key expiry carries the TTL semantics, and WATCH-based transactions provide
// the optimistic version check serializing writers per workflow.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/errandlabs/errand/pkg/models"
	"github.com/errandlabs/errand/pkg/store"
	goredis "github.com/redis/go-redis/v9"
)

const (
	workflowKeyPrefix = "errand:workflow:"
	sessionKeyPrefix  = "errand:session:"
	draftKeyPrefix    = "errand:draft:"

	// minTTL keeps SET happy when a workflow is persisted right at its
	// expiry boundary.
	minTTL = time.Second
)

// Store implements store.Store on top of Redis.
type Store struct {
	client goredis.UniversalClient
}

// NewStore connects to Redis using a redis:// URL.
func NewStore(ctx context.Context, redisURL string) (*Store, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := goredis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Store{client: client}, nil
}

func workflowKey(id string) string { return workflowKeyPrefix + id }
func sessionKey(id string) string  { return sessionKeyPrefix + id }
func draftKey(id string) string    { return draftKeyPrefix + id }

func ttlFor(expiresAt time.Time) time.Duration {
	ttl := time.Until(expiresAt)
	if ttl < minTTL {
		ttl = minTTL
	}

	return ttl
}

func (s *Store) PutWorkflow(ctx context.Context, workflow *models.Workflow) error {
	key := workflowKey(workflow.ID)
	sKey := sessionKey(workflow.SessionID)

	txn := func(tx *goredis.Tx) error {
		currentVersion := int64(0)

		payload, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, goredis.Nil):
			// New workflow: the session must not already be claimed by
			// another open workflow.
			if workflow.Status.Open() {
				openID, err := tx.Get(ctx, sKey).Result()
				if err != nil && !errors.Is(err, goredis.Nil) {
					return err
				}

				if openID != "" && openID != workflow.ID {
					return store.ErrSessionBusy
				}
			}
		case err != nil:
			return err
		default:
			var stored models.Workflow
			if err := json.Unmarshal(payload, &stored); err != nil {
				return err
			}

			currentVersion = stored.Version
		}

		if workflow.Version != currentVersion {
			return store.ErrVersionConflict
		}

		next := *workflow
		next.Version = workflow.Version + 1

		encoded, err := json.Marshal(&next)
		if err != nil {
			return err
		}

		ttl := ttlFor(workflow.ExpiresAt)

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, ttl)

			if workflow.Status.Open() {
				pipe.Set(ctx, sKey, workflow.ID, ttl)
			} else {
				pipe.Del(ctx, sKey)
			}

			return nil
		})

		return err
	}

	err := s.client.Watch(ctx, txn, key, sKey)
	if errors.Is(err, goredis.TxFailedErr) {
		// Another writer touched the key between WATCH and EXEC.
		return store.NewWorkflowError("Put", workflow.ID, store.ErrVersionConflict)
	}

	if err != nil {
		return store.NewWorkflowError("Put", workflow.ID, err)
	}

	workflow.Version++

	return nil
}

func (s *Store) GetWorkflow(ctx context.Context, id string) (*models.Workflow, error) {
	payload, err := s.client.Get(ctx, workflowKey(id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.NewWorkflowError("Get", id, store.ErrWorkflowNotFound)
	}

	if err != nil {
		return nil, store.NewWorkflowError("Get", id, err)
	}

	var workflow models.Workflow
	if err := json.Unmarshal(payload, &workflow); err != nil {
		return nil, store.NewWorkflowError("Get", id, err)
	}

	return &workflow, nil
}

func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	workflow, err := s.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, workflowKey(id))
		pipe.Del(ctx, draftKey(id))

		if workflow.Status.Open() {
			pipe.Del(ctx, sessionKey(workflow.SessionID))
		}

		return nil
	})
	if err != nil {
		return store.NewWorkflowError("Delete", id, err)
	}

	return nil
}

func (s *Store) ActiveBySession(ctx context.Context, sessionID string) (*models.Workflow, error) {
	id, err := s.client.Get(ctx, sessionKey(sessionID)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrNoActiveWorkflow
	}

	if err != nil {
		return nil, err
	}

	workflow, err := s.GetWorkflow(ctx, id)
	if store.IsWorkflowNotFound(err) {
		return nil, store.ErrNoActiveWorkflow
	}

	if err != nil {
		return nil, err
	}

	if !workflow.Status.Open() {
		return nil, store.ErrNoActiveWorkflow
	}

	return workflow, nil
}

func (s *Store) PutDraft(ctx context.Context, draft *models.Draft) error {
	payload, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("failed to marshal draft: %w", err)
	}

	return s.client.Set(ctx, draftKey(draft.WorkflowID), payload, ttlFor(draft.ExpiresAt)).Err()
}

func (s *Store) DraftByWorkflow(ctx context.Context, workflowID string) (*models.Draft, error) {
	payload, err := s.client.Get(ctx, draftKey(workflowID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, store.ErrDraftNotFound
	}

	if err != nil {
		return nil, err
	}

	var draft models.Draft
	if err := json.Unmarshal(payload, &draft); err != nil {
		return nil, err
	}

	return &draft, nil
}

func (s *Store) DeleteDraft(ctx context.Context, workflowID string) error {
	return s.client.Del(ctx, draftKey(workflowID)).Err()
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

func (s *Store) Close(_ context.Context) error {
	return s.client.Close()
}
