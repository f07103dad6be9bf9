package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gatehouse-io/gatehouse/model"
)

// MemoryRequestStore is an in-memory RequestStore for tests and single-node
// embedding.
type MemoryRequestStore struct {
	mu       sync.RWMutex
	requests map[string]*model.RequestInstance
}

// NewMemoryRequestStore creates a new in-memory request store.
func NewMemoryRequestStore() *MemoryRequestStore {
	return &MemoryRequestStore{requests: make(map[string]*model.RequestInstance)}
}

// Create persists a new request.
func (s *MemoryRequestStore) Create(_ context.Context, req *model.RequestInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[req.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("request %q already exists", req.ID))
	}

	s.requests[req.ID] = cloneRequest(req)
	return nil
}

// Get retrieves a request by id.
func (s *MemoryRequestStore) Get(_ context.Context, id string) (*model.RequestInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, exists := s.requests[id]
	if !exists {
		return nil, model.NewNotFoundError(fmt.Sprintf("request %q not found", id))
	}
	return cloneRequest(req), nil
}

// Update persists a mutated request with optimistic locking.
func (s *MemoryRequestStore) Update(_ context.Context, req *model.RequestInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.requests[req.ID]
	if !exists {
		return model.NewNotFoundError(fmt.Sprintf("request %q not found", req.ID))
	}
	if existing.Version != req.Version {
		return model.NewConflictError(
			fmt.Sprintf("request %q version conflict (expected %d, got %d)", req.ID, req.Version, existing.Version),
		)
	}

	stored := cloneRequest(req)
	stored.Version++
	stored.UpdatedAt = time.Now().UTC()
	s.requests[req.ID] = stored

	// Reflect the new version back so the caller can keep writing.
	req.Version = stored.Version
	req.UpdatedAt = stored.UpdatedAt
	return nil
}

// List returns requests matching the filters, newest first.
func (s *MemoryRequestStore) List(_ context.Context, filters RequestFilters) ([]*model.RequestInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*model.RequestInstance
	for _, req := range s.requests {
		if filters.DefinitionID != "" && req.DefinitionID != filters.DefinitionID {
			continue
		}
		if filters.Status != "" && req.Status != filters.Status {
			continue
		}
		result = append(result, cloneRequest(req))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if filters.Offset > 0 {
		if filters.Offset >= len(result) {
			return nil, nil
		}
		result = result[filters.Offset:]
	}
	if filters.Limit > 0 && filters.Limit < len(result) {
		result = result[:filters.Limit]
	}
	return result, nil
}

// GetHistory returns the request's transition history in append order.
func (s *MemoryRequestStore) GetHistory(_ context.Context, id string) ([]model.Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, exists := s.requests[id]
	if !exists {
		return nil, model.NewNotFoundError(fmt.Sprintf("request %q not found", id))
	}

	history := make([]model.Transition, len(req.History))
	copy(history, req.History)
	return history, nil
}

// cloneRequest copies a request so stored state never aliases caller state.
// cloneRequest copies field by field: the instance carries a history lock
// that must not be copied, and the history is read through its snapshot so a
// background hook appending mid-save cannot tear the copy.
func cloneRequest(req *model.RequestInstance) *model.RequestInstance {
	return &model.RequestInstance{
		ID:           req.ID,
		DefinitionID: req.DefinitionID,
		CurrentState: req.CurrentState,
		Status:       req.Status,
		Payload:      model.ClonePayload(req.Payload),
		History:      req.HistorySnapshot(),
		CreatedAt:    req.CreatedAt,
		UpdatedAt:    req.UpdatedAt,
		Version:      req.Version,
	}
}
