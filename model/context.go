package model

import (
	"context"
	"errors"
	"fmt"
)

// UserContext carries the identity, roles, and groups of the performer for
// the lifetime of an engine call. It is input to every authorization check
// and is never persisted. Immutable after construction and safe for
// concurrent reads.
type UserContext struct {
	ID     string
	Roles  []string
	Groups []string
}

// Validate checks that the mandatory fields are present.
func (uc *UserContext) Validate() error {
	var errs []error
	if uc.ID == "" {
		errs = append(errs, fmt.Errorf("ID is required"))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// HasRole returns true if the UserContext contains the given role.
func (uc *UserContext) HasRole(role string) bool {
	for _, r := range uc.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasGroup returns true if the UserContext contains the given group.
func (uc *UserContext) HasGroup(group string) bool {
	for _, g := range uc.Groups {
		if g == group {
			return true
		}
	}
	return false
}

type contextKey struct{}

// WithUserContext attaches a UserContext to the given context.
func WithUserContext(ctx context.Context, uc *UserContext) context.Context {
	return context.WithValue(ctx, contextKey{}, uc)
}

// UserContextFrom extracts the UserContext from the context, or returns nil
// if not present.
func UserContextFrom(ctx context.Context) *UserContext {
	uc, _ := ctx.Value(contextKey{}).(*UserContext)
	return uc
}

// MustUserContext extracts the UserContext from the context, panicking if it
// is not present. Safe to call in handlers guaranteed to run behind the
// authentication middleware.
func MustUserContext(ctx context.Context) *UserContext {
	uc := UserContextFrom(ctx)
	if uc == nil {
		panic("model: UserContext not found in context")
	}
	return uc
}
