package definition

import (
	"github.com/gatehouse-io/gatehouse/model"
)

// Builder accumulates states, actions, and hooks and assembles an immutable
// Definition. Build normalizes untyped states (the first becomes the start
// state, the rest become normal) and validates eagerly: a malformed graph is
// a wiring-time failure, never a per-request one.
type Builder struct {
	def model.Definition
}

// NewBuilder starts a definition with the given id.
func NewBuilder(id string) *Builder {
	return &Builder{def: model.Definition{ID: id}}
}

// PayloadKind sets the type token checked by the engine registry.
func (b *Builder) PayloadKind(kind string) *Builder {
	b.def.PayloadKind = kind
	return b
}

// Schema attaches the payload manifest used for structural validation,
// attachment detection, and field diffing.
func (b *Builder) Schema(s *model.PayloadSchema) *Builder {
	b.def.Schema = s
	return b
}

// CreationRecord overrides fields of the synthetic transition appended when a
// request is created.
func (b *Builder) CreationRecord(t *model.Transition) *Builder {
	b.def.CreationRecord = t
	return b
}

// OnCreate appends hooks dispatched when a request is created.
func (b *Builder) OnCreate(hooks ...model.HookDescriptor) *Builder {
	b.def.OnCreateHooks = append(b.def.OnCreateHooks, hooks...)
	return b
}

// OnTransition appends hooks dispatched after every transition record.
func (b *Builder) OnTransition(hooks ...model.HookDescriptor) *Builder {
	b.def.OnTransitionHooks = append(b.def.OnTransitionHooks, hooks...)
	return b
}

// State declares a state and returns its builder. States keep declaration
// order; pass an empty type to let Build infer start/normal.
func (b *Builder) State(name string, typ model.StateType) *StateBuilder {
	b.def.States = append(b.def.States, model.State{Name: name, Type: typ})
	return &StateBuilder{b: b, idx: len(b.def.States) - 1}
}

// Build normalizes and validates the accumulated definition. The returned
// Definition is immutable; the builder must not be reused afterwards.
func (b *Builder) Build() (*model.Definition, error) {
	for i := range b.def.States {
		if b.def.States[i].Type != "" {
			continue
		}
		if i == 0 {
			b.def.States[i].Type = model.StateTypeStart
		} else {
			b.def.States[i].Type = model.StateTypeNormal
		}
	}

	if err := NewValidator().Validate(&b.def); err != nil {
		return nil, err
	}
	return &b.def, nil
}

// MustBuild is Build for static wiring; it panics on a malformed graph.
func (b *Builder) MustBuild() *model.Definition {
	def, err := b.Build()
	if err != nil {
		panic(err)
	}
	return def
}

// StateBuilder scopes action and hook declarations to one state.
type StateBuilder struct {
	b   *Builder
	idx int
}

func (s *StateBuilder) state() *model.State {
	return &s.b.def.States[s.idx]
}

// OnEnter appends hooks dispatched when a transition lands in this state.
func (s *StateBuilder) OnEnter(hooks ...model.HookDescriptor) *StateBuilder {
	st := s.state()
	st.OnEnterHooks = append(st.OnEnterHooks, hooks...)
	return s
}

// OnExit appends hooks dispatched when a transition leaves this state.
func (s *StateBuilder) OnExit(hooks ...model.HookDescriptor) *StateBuilder {
	st := s.state()
	st.OnExitHooks = append(st.OnExitHooks, hooks...)
	return s
}

// Action declares an action on this state. Options cover assignment,
// validation, routing, and auto behavior.
func (s *StateBuilder) Action(name, nextState string, opts ...ActionOption) *StateBuilder {
	a := model.Action{Name: name, NextState: nextState}
	for _, opt := range opts {
		opt(&a)
	}
	st := s.state()
	st.Actions = append(st.Actions, a)
	return s
}

// State closes this state and declares the next one.
func (s *StateBuilder) State(name string, typ model.StateType) *StateBuilder {
	return s.b.State(name, typ)
}

// Build delegates to the definition builder.
func (s *StateBuilder) Build() (*model.Definition, error) {
	return s.b.Build()
}

// MustBuild delegates to the definition builder.
func (s *StateBuilder) MustBuild() *model.Definition {
	return s.b.MustBuild()
}

// ActionOption configures an action at declaration time.
type ActionOption func(*model.Action)

// Auto marks the action as engine-fired when cond holds. Auto and condition
// travel together; the validator rejects one without the other.
func Auto(cond model.Condition) ActionOption {
	return func(a *model.Action) {
		a.IsAuto = true
		a.Condition = cond
	}
}

// AssignUsers grants the action to the listed user ids.
func AssignUsers(users ...string) ActionOption {
	return func(a *model.Action) { a.AssignedUsers = append(a.AssignedUsers, users...) }
}

// AssignRoles grants the action to holders of any listed role.
func AssignRoles(roles ...string) ActionOption {
	return func(a *model.Action) { a.AssignedRoles = append(a.AssignedRoles, roles...) }
}

// AssignGroups grants the action to members of any listed group.
func AssignGroups(groups ...string) ActionOption {
	return func(a *model.Action) { a.AssignedGroups = append(a.AssignedGroups, groups...) }
}

// AssignRule grants the action to users the composite rule authorizes.
func AssignRule(r model.Rule) ActionOption {
	return func(a *model.Action) { a.AssignmentRule = r }
}

// WithValidator sets the action-scoped validator returning plain error
// strings.
func WithValidator(v model.ActionValidator) ActionOption {
	return func(a *model.Action) { a.Validator = v }
}

// AutomaticValidation enables the structural pass over the definition's
// payload schema.
func AutomaticValidation() ActionOption {
	return func(a *model.Action) { a.UseAutomaticValidation = true }
}

// WithNamedValidators appends structured-result validators.
func WithNamedValidators(vs ...model.NamedValidator) ActionOption {
	return func(a *model.Action) { a.NamedValidators = append(a.NamedValidators, vs...) }
}

// OnExecute appends hooks dispatched when the action executes.
func OnExecute(hooks ...model.HookDescriptor) ActionOption {
	return func(a *model.Action) { a.OnExecuteHooks = append(a.OnExecuteHooks, hooks...) }
}

// When appends a legacy (condition, target) routing pair.
func When(cond model.Condition, target string) ActionOption {
	return func(a *model.Action) {
		a.Conditions = append(a.Conditions, model.ConditionalTarget{Condition: cond, Target: target})
	}
}

// RouteWhen appends a labeled transition rule. Labeled rules always win over
// the legacy pairs.
func RouteWhen(label string, cond model.Condition, target string) ActionOption {
	return func(a *model.Action) {
		a.TransitionRules = append(a.TransitionRules, model.TransitionRule{
			Condition: cond,
			Target:    target,
			Label:     label,
		})
	}
}
