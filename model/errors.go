package model

import (
	"errors"
	"fmt"
	"strings"
)

// Standard error codes.
const (
	ErrDefinition    = "DEFINITION_ERROR"
	ErrState         = "STATE_ERROR"
	ErrStateNotFound = "STATE_NOT_FOUND"
	ErrActionError   = "ACTION_ERROR"
	ErrAuthorization = "AUTHORIZATION_ERROR"
	ErrValidation    = "VALIDATION_ERROR"
	ErrHook          = "HOOK_ERROR"
	ErrCascadeLimit  = "CASCADE_LIMIT"
	ErrUnauthorized  = "UNAUTHORIZED"
	ErrNotFound      = "NOT_FOUND"
	ErrConflict      = "CONFLICT"
	ErrBadRequest    = "BAD_REQUEST"
	ErrInternal      = "INTERNAL_ERROR"
)

// ErrorEnvelope is the coded error returned by the engine and its
// collaborators. It implements the error interface.
type ErrorEnvelope struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details []FieldError `json:"details,omitempty"`

	// Authorization failures carry the performer and the assignments that
	// would have granted access.
	PerformedBy    string   `json:"performed_by,omitempty"`
	RequiredRoles  []string `json:"required_roles,omitempty"`
	RequiredGroups []string `json:"required_groups,omitempty"`
}

// Error implements the error interface.
func (e *ErrorEnvelope) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldError describes a field-level validation error.
type FieldError struct {
	Field    string `json:"field"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity,omitempty"`
}

// ErrorCode returns the envelope code of err, or ErrInternal for non-envelope
// errors.
func ErrorCode(err error) string {
	var env *ErrorEnvelope
	if errors.As(err, &env) {
		return env.Code
	}
	return ErrInternal
}

// NewDefinitionError returns a DEFINITION_ERROR. Definition errors are fatal
// and raised once at build time, never per request.
func NewDefinitionError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrDefinition, Message: msg}
}

// NewStateError returns a STATE_ERROR for a malformed state declaration.
func NewStateError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrState, Message: msg}
}

// NewStateNotFoundError returns a STATE_NOT_FOUND error.
func NewStateNotFoundError(state string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrStateNotFound,
		Message: fmt.Sprintf("state %q not found in definition", state),
	}
}

// NewActionError returns an ACTION_ERROR.
func NewActionError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrActionError, Message: msg}
}

// NewAuthorizationError returns an AUTHORIZATION_ERROR carrying the performer
// and the assignments that would have granted access.
func NewAuthorizationError(performedBy string, roles, groups []string) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:           ErrAuthorization,
		Message:        fmt.Sprintf("user %q is not authorized to perform this action", performedBy),
		PerformedBy:    performedBy,
		RequiredRoles:  roles,
		RequiredGroups: groups,
	}
}

// NewValidationError returns a VALIDATION_ERROR aggregating all collected
// field and action errors into a single failure report.
func NewValidationError(details []FieldError) *ErrorEnvelope {
	msgs := make([]string, 0, len(details))
	for _, d := range details {
		msgs = append(msgs, d.Message)
	}
	return &ErrorEnvelope{
		Code:    ErrValidation,
		Message: strings.Join(msgs, "; "),
		Details: details,
	}
}

// NewHookError returns a HOOK_ERROR wrapping a hook capability failure.
func NewHookError(hookName string, err error) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrHook,
		Message: fmt.Sprintf("hook %q failed: %v", hookName, err),
	}
}

// NewCascadeLimitError returns a CASCADE_LIMIT error.
func NewCascadeLimitError(limit int) *ErrorEnvelope {
	return &ErrorEnvelope{
		Code:    ErrCascadeLimit,
		Message: fmt.Sprintf("auto-transition cascade exceeded %d steps", limit),
	}
}

// NewUnauthorizedError returns an UNAUTHORIZED error. Used by the transport
// layer when the caller's identity cannot be established at all, as opposed
// to AUTHORIZATION_ERROR where an identified caller lacks the assignment.
func NewUnauthorizedError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrUnauthorized, Message: msg}
}

// NewNotFoundError returns a NOT_FOUND error.
func NewNotFoundError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrNotFound, Message: msg}
}

// NewConflictError returns a CONFLICT error.
func NewConflictError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrConflict, Message: msg}
}

// NewBadRequestError returns a BAD_REQUEST error.
func NewBadRequestError(msg string) *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrBadRequest, Message: msg}
}

// NewInternalError returns an INTERNAL_ERROR.
func NewInternalError() *ErrorEnvelope {
	return &ErrorEnvelope{Code: ErrInternal, Message: "An unexpected error occurred"}
}
