package rule

import "github.com/gatehouse-io/gatehouse/model"

// Builder accumulates top-level rules. Build returns the single rule when
// exactly one was added, otherwise an implicit And over all of them.
type Builder struct {
	rules []model.Rule
}

// NewBuilder creates an empty rule builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Add appends a rule to the builder.
func (b *Builder) Add(r model.Rule) *Builder {
	b.rules = append(b.rules, r)
	return b
}

// User appends a user-id rule.
func (b *Builder) User(ids ...string) *Builder {
	return b.Add(User(ids...))
}

// Role appends an any-of role rule.
func (b *Builder) Role(roles ...string) *Builder {
	return b.Add(Role(roles...))
}

// Group appends an any-of group rule.
func (b *Builder) Group(groups ...string) *Builder {
	return b.Add(Group(groups...))
}

// Build assembles the accumulated rules. An empty builder yields a rule that
// denies everyone.
func (b *Builder) Build() model.Rule {
	switch len(b.rules) {
	case 0:
		// Vacuous Or: an empty rule set grants nothing.
		return Or()
	case 1:
		return b.rules[0]
	default:
		return And(b.rules...)
	}
}
