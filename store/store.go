// Package store holds the persistence collaborator contracts for request
// instances, plus the in-memory and PostgreSQL implementations. The engine
// itself never serializes concurrent calls against one request; the store's
// optimistic version check is what prevents lost updates.
package store

import (
	"context"

	"github.com/gatehouse-io/gatehouse/model"
)

// RequestStore persists request instances and their transition history.
type RequestStore interface {
	// Create persists a new request. Returns CONFLICT if the id exists.
	Create(ctx context.Context, req *model.RequestInstance) error

	// Get retrieves a request by id. Returns NOT_FOUND if absent.
	Get(ctx context.Context, id string) (*model.RequestInstance, error)

	// Update persists a mutated request with optimistic locking. The version
	// must match the stored version; CONFLICT means a concurrent writer won.
	Update(ctx context.Context, req *model.RequestInstance) error

	// List returns requests matching the filters, newest first.
	List(ctx context.Context, filters RequestFilters) ([]*model.RequestInstance, error)

	// GetHistory returns the request's transition history in append order.
	GetHistory(ctx context.Context, id string) ([]model.Transition, error)
}

// RequestFilters are optional filters for listing requests.
type RequestFilters struct {
	DefinitionID string
	Status       string
	Limit        int
	Offset       int
}
