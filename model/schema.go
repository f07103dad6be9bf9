package model

import "context"

// Validation severity constants for named validator results.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// PayloadSchema is the statically declared manifest for a definition's
// payload type: structural validation rules, the attachment-bearing fields,
// the fields considered for audit diffing, and payload defaults. Declaring
// the manifest up front replaces runtime type scanning.
type PayloadSchema struct {
	Fields           []FieldRule
	AttachmentFields []string
	DiffFields       []string
	Defaults         map[string]any
}

// NewPayload returns a default-constructed payload from the schema defaults.
func (s *PayloadSchema) NewPayload() map[string]any {
	if s == nil {
		return map[string]any{}
	}
	return ClonePayload(s.Defaults)
}

// FieldRule is one declarative validation rule over a payload field.
type FieldRule struct {
	Field     string
	Required  bool
	MinLength *int
	MaxLength *int
	Min       *float64
	Max       *float64
	Pattern   string
	Message   string
}

// ActionValidator is the action-scoped custom validator of the legacy
// mechanism: it returns zero or more plain error strings.
type ActionValidator func(ctx context.Context, payload map[string]any) []string

// ValidationResult is the structured result returned by named validators.
type ValidationResult struct {
	Valid    bool
	Message  string
	Code     string
	Severity string
	Metadata map[string]any
}

// Valid returns a passing ValidationResult.
func Valid() ValidationResult {
	return ValidationResult{Valid: true}
}

// Invalid returns a failing ValidationResult with the given message and code.
func Invalid(message, code string) ValidationResult {
	return ValidationResult{Message: message, Code: code, Severity: SeverityError}
}

// NamedValidator is the newer validation mechanism: a named check returning
// a structured result. Both mechanisms run side by side and aggregate into
// one failure report.
type NamedValidator interface {
	Name() string
	Validate(ctx context.Context, payload map[string]any) ValidationResult
}

// NamedValidatorFunc adapts a function to the NamedValidator interface.
type NamedValidatorFunc struct {
	ValidatorName string
	Func          func(ctx context.Context, payload map[string]any) ValidationResult
}

// Name implements NamedValidator.
func (v NamedValidatorFunc) Name() string { return v.ValidatorName }

// Validate implements NamedValidator.
func (v NamedValidatorFunc) Validate(ctx context.Context, payload map[string]any) ValidationResult {
	return v.Func(ctx, payload)
}
