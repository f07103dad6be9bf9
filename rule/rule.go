// Package rule provides composable boolean authorization predicates over a
// user's identity, roles, and groups.
package rule

import "github.com/gatehouse-io/gatehouse/model"

// userRule authorizes when the user's id is in the list.
type userRule struct {
	users []string
}

// User returns a rule authorizing the listed user ids.
func User(ids ...string) model.Rule {
	return &userRule{users: ids}
}

// IsAuthorized implements model.Rule.
func (r *userRule) IsAuthorized(user *model.UserContext) bool {
	if user == nil {
		return false
	}
	for _, id := range r.users {
		if id == user.ID {
			return true
		}
	}
	return false
}

// roleRule authorizes when the user holds any of the listed roles.
type roleRule struct {
	roles []string
}

// Role returns a rule authorizing any of the listed roles.
func Role(roles ...string) model.Rule {
	return &roleRule{roles: roles}
}

// IsAuthorized implements model.Rule.
func (r *roleRule) IsAuthorized(user *model.UserContext) bool {
	if user == nil {
		return false
	}
	for _, role := range r.roles {
		if user.HasRole(role) {
			return true
		}
	}
	return false
}

// groupRule authorizes when the user belongs to any of the listed groups.
type groupRule struct {
	groups []string
}

// Group returns a rule authorizing any of the listed groups.
func Group(groups ...string) model.Rule {
	return &groupRule{groups: groups}
}

// IsAuthorized implements model.Rule.
func (r *groupRule) IsAuthorized(user *model.UserContext) bool {
	if user == nil {
		return false
	}
	for _, group := range r.groups {
		if user.HasGroup(group) {
			return true
		}
	}
	return false
}

// notRule inverts its inner rule.
type notRule struct {
	inner model.Rule
}

// Not returns a rule inverting the inner rule.
func Not(inner model.Rule) model.Rule {
	return &notRule{inner: inner}
}

// IsAuthorized implements model.Rule.
func (r *notRule) IsAuthorized(user *model.UserContext) bool {
	return !r.inner.IsAuthorized(user)
}

// andRule authorizes when all inner rules authorize. Short-circuits on the
// first denial.
type andRule struct {
	inner []model.Rule
}

// And returns a rule requiring all inner rules.
func And(inner ...model.Rule) model.Rule {
	return &andRule{inner: inner}
}

// IsAuthorized implements model.Rule.
func (r *andRule) IsAuthorized(user *model.UserContext) bool {
	for _, in := range r.inner {
		if !in.IsAuthorized(user) {
			return false
		}
	}
	return true
}

// orRule authorizes when any inner rule authorizes. Short-circuits on the
// first grant.
type orRule struct {
	inner []model.Rule
}

// Or returns a rule requiring any inner rule.
func Or(inner ...model.Rule) model.Rule {
	return &orRule{inner: inner}
}

// IsAuthorized implements model.Rule.
func (r *orRule) IsAuthorized(user *model.UserContext) bool {
	for _, in := range r.inner {
		if in.IsAuthorized(user) {
			return true
		}
	}
	return false
}
