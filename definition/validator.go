// Package definition assembles and validates workflow definitions: a fluent
// builder, a four-pass validator, and a YAML loader with expression-string
// conditions.
package definition

import (
	"fmt"
	"strings"

	"github.com/gatehouse-io/gatehouse/model"
)

// VError describes a single problem found in a workflow definition.
type VError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Validator checks a definition graph in four ordered passes: definition
// level, state level, action level, and referential integrity. Each pass
// raises its own failure kind, so a malformed graph reports the earliest
// class of problem first.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks def and returns a coded error for the first failing pass.
// Definition errors are fatal and expected to abort application wiring.
func (v *Validator) Validate(def *model.Definition) error {
	if errs := v.definitionPass(def); len(errs) > 0 {
		return model.NewDefinitionError(joinVErrors(errs))
	}
	if errs := v.statePass(def); len(errs) > 0 {
		return model.NewStateError(joinVErrors(errs))
	}
	if errs := v.actionPass(def); len(errs) > 0 {
		return model.NewActionError(joinVErrors(errs))
	}
	if errs := v.referencePass(def); len(errs) > 0 {
		return model.NewActionError(joinVErrors(errs))
	}
	return nil
}

func (v *Validator) definitionPass(def *model.Definition) []VError {
	var errs []VError
	if def.ID == "" {
		errs = append(errs, VError{Path: "id", Code: "REQUIRED", Message: "definition id is required"})
	}
	if len(def.States) == 0 {
		errs = append(errs, VError{Path: "states", Code: "REQUIRED", Message: "at least one state is required"})
	}
	return errs
}

func (v *Validator) statePass(def *model.Definition) []VError {
	var errs []VError

	seen := make(map[string]bool, len(def.States))
	starts, completed := 0, 0
	for i, s := range def.States {
		prefix := fmt.Sprintf("states[%d]", i)
		if s.Name == "" {
			errs = append(errs, VError{Path: prefix + ".name", Code: "REQUIRED", Message: "state name is required"})
			continue
		}
		key := strings.ToLower(s.Name)
		if seen[key] {
			errs = append(errs, VError{
				Path:    prefix + ".name",
				Code:    "DUPLICATE",
				Message: fmt.Sprintf("duplicate state name %q", s.Name),
			})
		}
		seen[key] = true

		switch s.Type {
		case model.StateTypeStart:
			starts++
		case model.StateTypeCompleted:
			completed++
		}
	}

	if starts != 1 {
		errs = append(errs, VError{
			Path:    "states",
			Code:    "START_STATE",
			Message: fmt.Sprintf("exactly one start state is required, found %d", starts),
		})
	}
	if completed == 0 {
		errs = append(errs, VError{
			Path:    "states",
			Code:    "COMPLETED_STATE",
			Message: "at least one completed state is required",
		})
	}

	return errs
}

func (v *Validator) actionPass(def *model.Definition) []VError {
	var errs []VError

	for i, s := range def.States {
		seen := make(map[string]bool, len(s.Actions))
		for j, a := range s.Actions {
			prefix := fmt.Sprintf("states[%d].actions[%d]", i, j)

			if a.Name == "" {
				errs = append(errs, VError{Path: prefix + ".name", Code: "REQUIRED", Message: "action name is required"})
			} else {
				key := strings.ToLower(a.Name)
				if seen[key] {
					errs = append(errs, VError{
						Path:    prefix + ".name",
						Code:    "DUPLICATE",
						Message: fmt.Sprintf("duplicate action name %q in state %q", a.Name, s.Name),
					})
				}
				seen[key] = true
			}

			// Auto and condition are biconditional: both or neither.
			if a.IsAuto && a.Condition == nil {
				errs = append(errs, VError{
					Path:    prefix + ".condition",
					Code:    "AUTO_CONDITION",
					Message: fmt.Sprintf("auto action %q requires a condition", a.Name),
				})
			}
			if !a.IsAuto && a.Condition != nil {
				errs = append(errs, VError{
					Path:    prefix + ".condition",
					Code:    "AUTO_CONDITION",
					Message: fmt.Sprintf("non-auto action %q must not have a condition", a.Name),
				})
			}

			if a.NextState == "" {
				errs = append(errs, VError{
					Path:    prefix + ".nextState",
					Code:    "REQUIRED",
					Message: fmt.Sprintf("action %q requires a next state", a.Name),
				})
			}

			for k, r := range a.TransitionRules {
				rp := fmt.Sprintf("%s.rules[%d]", prefix, k)
				if r.Condition == nil {
					errs = append(errs, VError{Path: rp + ".condition", Code: "REQUIRED", Message: "transition rule requires a condition"})
				}
				if r.Target == "" {
					errs = append(errs, VError{Path: rp + ".target", Code: "REQUIRED", Message: "transition rule requires a target"})
				}
			}
			for k, c := range a.Conditions {
				cp := fmt.Sprintf("%s.conditions[%d]", prefix, k)
				if c.Condition == nil {
					errs = append(errs, VError{Path: cp + ".condition", Code: "REQUIRED", Message: "conditional target requires a condition"})
				}
				if c.Target == "" {
					errs = append(errs, VError{Path: cp + ".target", Code: "REQUIRED", Message: "conditional target requires a target"})
				}
			}
		}
	}

	return errs
}

func (v *Validator) referencePass(def *model.Definition) []VError {
	var errs []VError

	names := make(map[string]bool, len(def.States))
	for _, s := range def.States {
		names[strings.ToLower(s.Name)] = true
	}

	for i, s := range def.States {
		for j, a := range s.Actions {
			if a.NextState != "" && !names[strings.ToLower(a.NextState)] {
				errs = append(errs, VError{
					Path:    fmt.Sprintf("states[%d].actions[%d].nextState", i, j),
					Code:    "REF_NOT_FOUND",
					Message: fmt.Sprintf("action %q targets unknown state %q", a.Name, a.NextState),
				})
			}
		}
	}

	return errs
}

func joinVErrors(errs []VError) string {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}
