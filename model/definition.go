package model

// StateType tags a state's role in the workflow graph.
type StateType string

// State types. Terminal types stop task generation and auto-cascades.
const (
	StateTypeStart     StateType = "start"
	StateTypeNormal    StateType = "normal"
	StateTypeCompleted StateType = "completed"
	StateTypeRejected  StateType = "rejected"
	StateTypeCancelled StateType = "cancelled"
)

// IsTerminal returns true for the completed, rejected, and cancelled types.
func (t StateType) IsTerminal() bool {
	return t == StateTypeCompleted || t == StateTypeRejected || t == StateTypeCancelled
}

// Condition is a predicate over a request payload snapshot. Conditions gate
// auto actions and conditional routing.
type Condition func(payload map[string]any) bool

// Rule is a composable boolean predicate over a user's identity, roles, and
// groups. Implementations live in the rule package.
type Rule interface {
	IsAuthorized(user *UserContext) bool
}

// Definition is the static graph of states, actions, and hooks describing a
// workflow type. It is built once through the definition builder, validated
// once, and immutable afterwards — safe for unsynchronized concurrent reads.
type Definition struct {
	ID                string
	States            []State
	OnCreateHooks     []HookDescriptor
	OnTransitionHooks []HookDescriptor

	// CreationRecord overrides fields of the synthetic transition appended
	// when a request is created. Zero-value fields keep their defaults.
	CreationRecord *Transition

	// Schema is the statically declared payload manifest: structural
	// validation rules, attachment-bearing fields, diffable fields, and
	// payload defaults.
	Schema *PayloadSchema

	// PayloadKind is the type token checked by the engine registry at
	// resolve time.
	PayloadKind string

	// Checksum and SourceFile identify the YAML file a loaded definition came
	// from. Empty for definitions assembled in code.
	Checksum   string
	SourceFile string
}

// StateByName looks up a state by name, case-insensitively.
func (d *Definition) StateByName(name string) (*State, bool) {
	for i := range d.States {
		if equalFold(d.States[i].Name, name) {
			return &d.States[i], true
		}
	}
	return nil, false
}

// StartState returns the definition's start state.
func (d *Definition) StartState() (*State, bool) {
	for i := range d.States {
		if d.States[i].Type == StateTypeStart {
			return &d.States[i], true
		}
	}
	return nil, false
}

// State is a named node in the workflow graph with an ordered action set and
// enter/exit hook sequences. Names are unique (case-insensitive) within a
// definition.
type State struct {
	Name         string
	Type         StateType
	Actions      []Action
	OnEnterHooks []HookDescriptor
	OnExitHooks  []HookDescriptor
}

// ActionByName looks up an action by name, case-insensitively.
func (s *State) ActionByName(name string) (*Action, bool) {
	for i := range s.Actions {
		if equalFold(s.Actions[i].Name, name) {
			return &s.Actions[i], true
		}
	}
	return nil, false
}

// Action is an operation a performer (or the engine itself, for auto
// actions) can execute from a state.
//
// IsAuto and Condition are biconditional: an auto action requires a
// condition and a non-auto action forbids one. The definition validator
// rejects both violations.
type Action struct {
	Name      string
	NextState string
	IsAuto    bool
	Condition Condition

	AssignedUsers  []string
	AssignedRoles  []string
	AssignedGroups []string
	AssignmentRule Rule

	// Validator runs after the structural pass; it returns plain error
	// strings. UseAutomaticValidation enables the structural pass over the
	// definition's payload schema.
	Validator              ActionValidator
	UseAutomaticValidation bool
	// NamedValidators is the newer mechanism returning structured results.
	NamedValidators []NamedValidator

	OnExecuteHooks []HookDescriptor

	// Conditions are the legacy (condition, target) routing pairs.
	Conditions []ConditionalTarget
	// TransitionRules are labeled routing rules. They always take precedence
	// over the legacy pairs.
	TransitionRules []TransitionRule
}

// ConditionalTarget is a legacy routing pair: the first pair whose condition
// holds wins.
type ConditionalTarget struct {
	Condition Condition
	Target    string
}

// TransitionRule is a labeled (condition, target) routing rule.
type TransitionRule struct {
	Condition Condition
	Target    string
	Label     string
}

// equalFold is a case-insensitive ASCII comparison. Definition names are
// plain identifiers, so full Unicode folding is not needed.
func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
