// Package memory provides an in-memory store implementation for development
// and tests. Expiry is enforced lazily on read and by the janitor's Sweep.
package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/errandlabs/errand/pkg/models"
	"github.com/errandlabs/errand/pkg/store"
)

// Store implements store.Store backed by process memory.
type Store struct {
	mu        sync.Mutex
	workflows map[string]*models.Workflow
	sessions  map[string]string // sessionID -> open workflow ID
	drafts    map[string]*models.Draft
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		workflows: make(map[string]*models.Workflow),
		sessions:  make(map[string]string),
		drafts:    make(map[string]*models.Draft),
	}
}

func (s *Store) PutWorkflow(_ context.Context, workflow *models.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.workflows[workflow.ID]

	switch {
	case !exists && workflow.Version != 0:
		return store.NewWorkflowError("Put", workflow.ID, store.ErrVersionConflict)
	case exists && existing.Version != workflow.Version:
		return store.NewWorkflowError("Put", workflow.ID, store.ErrVersionConflict)
	}

	if !exists && workflow.Status.Open() {
		if openID, busy := s.sessions[workflow.SessionID]; busy && openID != workflow.ID {
			if other, ok := s.workflows[openID]; ok && other.Status.Open() && !other.Expired(time.Now().UTC()) {
				return store.NewWorkflowError("Put", workflow.ID, store.ErrSessionBusy)
			}
		}
	}

	workflow.Version++

	stored, err := cloneWorkflow(workflow)
	if err != nil {
		return store.NewWorkflowError("Put", workflow.ID, err)
	}

	s.workflows[workflow.ID] = stored

	if workflow.Status.Open() {
		s.sessions[workflow.SessionID] = workflow.ID
	} else if s.sessions[workflow.SessionID] == workflow.ID {
		delete(s.sessions, workflow.SessionID)
	}

	return nil
}

func (s *Store) GetWorkflow(_ context.Context, id string) (*models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	workflow, ok := s.workflows[id]
	if !ok || workflow.Expired(time.Now().UTC()) {
		return nil, store.NewWorkflowError("Get", id, store.ErrWorkflowNotFound)
	}

	return cloneWorkflow(workflow)
}

func (s *Store) DeleteWorkflow(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	workflow, ok := s.workflows[id]
	if !ok {
		return store.NewWorkflowError("Delete", id, store.ErrWorkflowNotFound)
	}

	delete(s.workflows, id)
	delete(s.drafts, id)

	if s.sessions[workflow.SessionID] == id {
		delete(s.sessions, workflow.SessionID)
	}

	return nil
}

func (s *Store) ActiveBySession(_ context.Context, sessionID string) (*models.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.sessions[sessionID]
	if !ok {
		return nil, store.ErrNoActiveWorkflow
	}

	workflow, ok := s.workflows[id]
	if !ok || !workflow.Status.Open() || workflow.Expired(time.Now().UTC()) {
		delete(s.sessions, sessionID)

		return nil, store.ErrNoActiveWorkflow
	}

	return cloneWorkflow(workflow)
}

func (s *Store) PutDraft(_ context.Context, draft *models.Draft) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *draft
	s.drafts[draft.WorkflowID] = &copied

	return nil
}

func (s *Store) DraftByWorkflow(_ context.Context, workflowID string) (*models.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft, ok := s.drafts[workflowID]
	if !ok {
		return nil, store.ErrDraftNotFound
	}

	copied := *draft

	return &copied, nil
}

func (s *Store) DeleteDraft(_ context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.drafts, workflowID)

	return nil
}

// Sweep evicts expired workflows and drafts, returning the eviction count.
func (s *Store) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0

	for id, workflow := range s.workflows {
		if workflow.Expired(now) {
			delete(s.workflows, id)
			delete(s.drafts, id)

			if s.sessions[workflow.SessionID] == id {
				delete(s.sessions, workflow.SessionID)
			}

			evicted++
		}
	}

	for id, draft := range s.drafts {
		if draft.Expired(now) {
			delete(s.drafts, id)

			evicted++
		}
	}

	return evicted, nil
}

func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

func (s *Store) Close(_ context.Context) error {
	return nil
}

// cloneWorkflow deep-copies through JSON so callers never share step slices
// or gathered-data maps with the stored copy.
func cloneWorkflow(workflow *models.Workflow) (*models.Workflow, error) {
	payload, err := json.Marshal(workflow)
	if err != nil {
		return nil, err
	}

	var copied models.Workflow
	if err := json.Unmarshal(payload, &copied); err != nil {
		return nil, err
	}

	return &copied, nil
}
