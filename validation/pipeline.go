// Package validation runs the two-stage input validation pipeline: a
// declarative structural pass over the payload manifest, then the
// action-scoped validators. Failures aggregate into a single
// VALIDATION_ERROR raised before any authorization check or hook dispatch.
package validation

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/gatehouse-io/gatehouse/model"
)

// Validation error codes on field details.
const (
	CodeRequired  = "REQUIRED"
	CodeMinLength = "MIN_LENGTH"
	CodeMaxLength = "MAX_LENGTH"
	CodeRange     = "RANGE"
	CodePattern   = "PATTERN"
	CodeCustom    = "CUSTOM"
)

// Pipeline validates action input. It is stateless and safe for concurrent
// use.
type Pipeline struct{}

// NewPipeline creates a validation pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Validate runs both stages for the given action and payload. The structural
// stage short-circuits: when it reports errors the action-scoped stage does
// not run. The legacy string-based validator and the named validators run
// side by side and aggregate into one failure report.
func (p *Pipeline) Validate(ctx context.Context, schema *model.PayloadSchema, action *model.Action, payload map[string]any) error {
	if action.UseAutomaticValidation {
		if details := p.structural(schema, payload); len(details) > 0 {
			return model.NewValidationError(details)
		}
	}

	var details []model.FieldError

	if action.Validator != nil {
		for _, msg := range action.Validator(ctx, payload) {
			details = append(details, model.FieldError{
				Code:     CodeCustom,
				Message:  msg,
				Severity: model.SeverityError,
			})
		}
	}

	fatal := len(details) > 0
	for _, nv := range action.NamedValidators {
		result := nv.Validate(ctx, payload)
		if result.Valid {
			continue
		}
		severity := result.Severity
		if severity == "" {
			severity = model.SeverityError
		}
		details = append(details, model.FieldError{
			Field:    nv.Name(),
			Code:     result.Code,
			Message:  result.Message,
			Severity: severity,
		})
		if severity != model.SeverityWarning {
			fatal = true
		}
	}

	if fatal {
		return model.NewValidationError(details)
	}
	return nil
}

// structural runs the declarative field rules of the payload manifest.
func (p *Pipeline) structural(schema *model.PayloadSchema, payload map[string]any) []model.FieldError {
	if schema == nil {
		return nil
	}

	var details []model.FieldError
	fail := func(rule model.FieldRule, code, msg string) {
		if rule.Message != "" {
			msg = rule.Message
		}
		details = append(details, model.FieldError{
			Field:    rule.Field,
			Code:     code,
			Message:  msg,
			Severity: model.SeverityError,
		})
	}

	for _, rule := range schema.Fields {
		val, present := payload[rule.Field]
		if !present || val == nil || fmt.Sprint(val) == "" {
			if rule.Required {
				fail(rule, CodeRequired, fmt.Sprintf("%s is required", rule.Field))
			}
			continue
		}

		str := fmt.Sprint(val)
		if rule.MinLength != nil && len(str) < *rule.MinLength {
			fail(rule, CodeMinLength, fmt.Sprintf("%s must be at least %d characters", rule.Field, *rule.MinLength))
		}
		if rule.MaxLength != nil && len(str) > *rule.MaxLength {
			fail(rule, CodeMaxLength, fmt.Sprintf("%s must be at most %d characters", rule.Field, *rule.MaxLength))
		}

		if rule.Min != nil || rule.Max != nil {
			num, ok := toFloat(val)
			if !ok {
				fail(rule, CodeRange, fmt.Sprintf("%s must be numeric", rule.Field))
			} else {
				if rule.Min != nil && num < *rule.Min {
					fail(rule, CodeRange, fmt.Sprintf("%s must be >= %v", rule.Field, *rule.Min))
				}
				if rule.Max != nil && num > *rule.Max {
					fail(rule, CodeRange, fmt.Sprintf("%s must be <= %v", rule.Field, *rule.Max))
				}
			}
		}

		if rule.Pattern != "" {
			matched, err := regexp.MatchString(rule.Pattern, str)
			if err != nil || !matched {
				fail(rule, CodePattern, fmt.Sprintf("%s has an invalid format", rule.Field))
			}
		}
	}

	return details
}

func toFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
