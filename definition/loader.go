package definition

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gatehouse-io/gatehouse/expr"
	"github.com/gatehouse-io/gatehouse/model"
)

// Loader scans directories for YAML workflow definition files, compiles their
// expression-string conditions, and assembles validated definitions through
// the builder. Hooks, named validators, and assignment rules are code, so the
// loader resolves them by name from maps registered at construction time.
type Loader struct {
	hooks      map[string]model.HookDescriptor
	validators map[string]model.NamedValidator
	rules      map[string]model.Rule
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithHooks registers hook descriptors resolvable by name from YAML.
func WithHooks(hooks map[string]model.HookDescriptor) LoaderOption {
	return func(l *Loader) {
		for name, h := range hooks {
			l.hooks[name] = h
		}
	}
}

// WithValidators registers named validators resolvable from YAML.
func WithValidators(vs ...model.NamedValidator) LoaderOption {
	return func(l *Loader) {
		for _, v := range vs {
			l.validators[v.Name()] = v
		}
	}
}

// WithRules registers assignment rules resolvable by name from YAML.
func WithRules(rules map[string]model.Rule) LoaderOption {
	return func(l *Loader) {
		for name, r := range rules {
			l.rules[name] = r
		}
	}
}

// NewLoader creates a new definition Loader.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{
		hooks:      make(map[string]model.HookDescriptor),
		validators: make(map[string]model.NamedValidator),
		rules:      make(map[string]model.Rule),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadAll recursively scans directories for *.yaml and *.yml files and loads
// each into a validated Definition.
func (l *Loader) LoadAll(directories []string) ([]*model.Definition, error) {
	var defs []*model.Definition

	for _, dir := range directories {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}

			def, err := l.LoadFile(path)
			if err != nil {
				return fmt.Errorf("loading %s: %w", path, err)
			}
			defs = append(defs, def)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning directory %s: %w", dir, err)
		}
	}

	return defs, nil
}

// LoadFile loads, compiles, and validates a single YAML definition file. The
// SHA-256 checksum and source path are recorded on the definition.
func (l *Loader) LoadFile(path string) (*model.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	def, err := l.Load(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	def.Checksum = fmt.Sprintf("%x", sha256.Sum256(data))
	def.SourceFile = path
	return def, nil
}

// Load compiles raw YAML bytes into a validated Definition.
func (l *Loader) Load(data []byte) (*model.Definition, error) {
	var doc yamlDefinition
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	b := NewBuilder(doc.ID).PayloadKind(doc.PayloadKind)

	if doc.Schema != nil {
		b.Schema(doc.Schema.toModel())
	}
	if doc.CreationRecord != nil {
		b.CreationRecord(&model.Transition{
			Action:      doc.CreationRecord.Action,
			PerformedBy: doc.CreationRecord.PerformedBy,
		})
	}

	hooks, err := l.resolveHooks(doc.OnCreate, "onCreate")
	if err != nil {
		return nil, err
	}
	b.OnCreate(hooks...)

	hooks, err = l.resolveHooks(doc.OnTransition, "onTransition")
	if err != nil {
		return nil, err
	}
	b.OnTransition(hooks...)

	for _, ys := range doc.States {
		sb := b.State(ys.Name, model.StateType(strings.ToLower(ys.Type)))

		hooks, err = l.resolveHooks(ys.OnEnter, "state "+ys.Name+" onEnter")
		if err != nil {
			return nil, err
		}
		sb.OnEnter(hooks...)

		hooks, err = l.resolveHooks(ys.OnExit, "state "+ys.Name+" onExit")
		if err != nil {
			return nil, err
		}
		sb.OnExit(hooks...)

		for _, ya := range ys.Actions {
			opts, err := l.actionOptions(ys.Name, ya)
			if err != nil {
				return nil, err
			}
			sb.Action(ya.Name, ya.NextState, opts...)
		}
	}

	return b.Build()
}

func (l *Loader) actionOptions(stateName string, ya yamlAction) ([]ActionOption, error) {
	var opts []ActionOption

	if ya.Auto {
		cond, err := expr.Compile(ya.Condition)
		if err != nil {
			return nil, fmt.Errorf("action %s.%s condition: %w", stateName, ya.Name, err)
		}
		opts = append(opts, Auto(cond))
	} else if ya.Condition != "" {
		return nil, fmt.Errorf("action %s.%s: condition requires auto: true", stateName, ya.Name)
	}

	if len(ya.AssignedUsers) > 0 {
		opts = append(opts, AssignUsers(ya.AssignedUsers...))
	}
	if len(ya.AssignedRoles) > 0 {
		opts = append(opts, AssignRoles(ya.AssignedRoles...))
	}
	if len(ya.AssignedGroups) > 0 {
		opts = append(opts, AssignGroups(ya.AssignedGroups...))
	}
	if ya.AssignmentRule != "" {
		r, ok := l.rules[ya.AssignmentRule]
		if !ok {
			return nil, fmt.Errorf("action %s.%s: unknown assignment rule %q", stateName, ya.Name, ya.AssignmentRule)
		}
		opts = append(opts, AssignRule(r))
	}

	if ya.AutomaticValidation {
		opts = append(opts, AutomaticValidation())
	}
	for _, name := range ya.Validators {
		v, ok := l.validators[name]
		if !ok {
			return nil, fmt.Errorf("action %s.%s: unknown validator %q", stateName, ya.Name, name)
		}
		opts = append(opts, WithNamedValidators(v))
	}

	hooks, err := l.resolveHooks(ya.OnExecute, "action "+stateName+"."+ya.Name)
	if err != nil {
		return nil, err
	}
	opts = append(opts, OnExecute(hooks...))

	for _, yr := range ya.Rules {
		cond, err := expr.Compile(yr.Condition)
		if err != nil {
			return nil, fmt.Errorf("action %s.%s rule %q: %w", stateName, ya.Name, yr.Label, err)
		}
		opts = append(opts, RouteWhen(yr.Label, cond, yr.Target))
	}
	for _, yc := range ya.Conditions {
		cond, err := expr.Compile(yc.Condition)
		if err != nil {
			return nil, fmt.Errorf("action %s.%s condition target: %w", stateName, ya.Name, err)
		}
		opts = append(opts, When(cond, yc.Target))
	}

	return opts, nil
}

func (l *Loader) resolveHooks(names []string, where string) ([]model.HookDescriptor, error) {
	if len(names) == 0 {
		return nil, nil
	}
	hooks := make([]model.HookDescriptor, 0, len(names))
	for _, name := range names {
		h, ok := l.hooks[name]
		if !ok {
			return nil, fmt.Errorf("%s: unknown hook %q", where, name)
		}
		hooks = append(hooks, h)
	}
	return hooks, nil
}

// YAML document shapes. Conditions are expression strings compiled against
// the payload snapshot; hooks, validators, and rules are name references.

type yamlDefinition struct {
	ID             string              `yaml:"id"`
	PayloadKind    string              `yaml:"payloadKind"`
	Schema         *yamlSchema         `yaml:"schema"`
	CreationRecord *yamlCreationRecord `yaml:"creationRecord"`
	OnCreate       []string            `yaml:"onCreate"`
	OnTransition   []string            `yaml:"onTransition"`
	States         []yamlState         `yaml:"states"`
}

type yamlCreationRecord struct {
	Action      string `yaml:"action"`
	PerformedBy string `yaml:"performedBy"`
}

type yamlSchema struct {
	Fields           []yamlField    `yaml:"fields"`
	AttachmentFields []string       `yaml:"attachmentFields"`
	DiffFields       []string       `yaml:"diffFields"`
	Defaults         map[string]any `yaml:"defaults"`
}

func (s *yamlSchema) toModel() *model.PayloadSchema {
	schema := &model.PayloadSchema{
		AttachmentFields: s.AttachmentFields,
		DiffFields:       s.DiffFields,
		Defaults:         s.Defaults,
	}
	for _, f := range s.Fields {
		schema.Fields = append(schema.Fields, model.FieldRule{
			Field:     f.Field,
			Required:  f.Required,
			MinLength: f.MinLength,
			MaxLength: f.MaxLength,
			Min:       f.Min,
			Max:       f.Max,
			Pattern:   f.Pattern,
			Message:   f.Message,
		})
	}
	return schema
}

type yamlField struct {
	Field     string   `yaml:"field"`
	Required  bool     `yaml:"required"`
	MinLength *int     `yaml:"minLength"`
	MaxLength *int     `yaml:"maxLength"`
	Min       *float64 `yaml:"min"`
	Max       *float64 `yaml:"max"`
	Pattern   string   `yaml:"pattern"`
	Message   string   `yaml:"message"`
}

type yamlState struct {
	Name    string       `yaml:"name"`
	Type    string       `yaml:"type"`
	OnEnter []string     `yaml:"onEnter"`
	OnExit  []string     `yaml:"onExit"`
	Actions []yamlAction `yaml:"actions"`
}

type yamlAction struct {
	Name                string          `yaml:"name"`
	NextState           string          `yaml:"nextState"`
	Auto                bool            `yaml:"auto"`
	Condition           string          `yaml:"condition"`
	AssignedUsers       []string        `yaml:"assignedUsers"`
	AssignedRoles       []string        `yaml:"assignedRoles"`
	AssignedGroups      []string        `yaml:"assignedGroups"`
	AssignmentRule      string          `yaml:"assignmentRule"`
	AutomaticValidation bool            `yaml:"automaticValidation"`
	Validators          []string        `yaml:"validators"`
	OnExecute           []string        `yaml:"onExecute"`
	Rules               []yamlRule      `yaml:"rules"`
	Conditions          []yamlCondition `yaml:"conditions"`
}

type yamlRule struct {
	Label     string `yaml:"label"`
	Condition string `yaml:"condition"`
	Target    string `yaml:"target"`
}

type yamlCondition struct {
	Condition string `yaml:"condition"`
	Target    string `yaml:"target"`
}
