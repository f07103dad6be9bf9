package rule

import (
	"testing"

	"github.com/gatehouse-io/gatehouse/model"
)

func testUser() *model.UserContext {
	return &model.UserContext{
		ID:     "alice",
		Roles:  []string{"manager", "reviewer"},
		Groups: []string{"finance"},
	}
}

func TestUser(t *testing.T) {
	user := testUser()

	if !User("bob", "alice").IsAuthorized(user) {
		t.Error("expected alice to be authorized by user rule")
	}
	if User("bob").IsAuthorized(user) {
		t.Error("expected alice to be denied by user rule for bob")
	}
	if User().IsAuthorized(user) {
		t.Error("expected empty user rule to deny")
	}
	if User("alice").IsAuthorized(nil) {
		t.Error("expected nil user to be denied")
	}
}

func TestRole(t *testing.T) {
	user := testUser()

	if !Role("admin", "manager").IsAuthorized(user) {
		t.Error("expected any-of role match to authorize")
	}
	if Role("admin").IsAuthorized(user) {
		t.Error("expected non-matching role to deny")
	}
	if Role().IsAuthorized(user) {
		t.Error("expected empty role rule to deny")
	}
}

func TestGroup(t *testing.T) {
	user := testUser()

	if !Group("finance").IsAuthorized(user) {
		t.Error("expected group match to authorize")
	}
	if Group("hr").IsAuthorized(user) {
		t.Error("expected non-matching group to deny")
	}
}

func TestNot(t *testing.T) {
	user := testUser()

	if Not(Role("manager")).IsAuthorized(user) {
		t.Error("expected Not(matching) to deny")
	}
	if !Not(Role("admin")).IsAuthorized(user) {
		t.Error("expected Not(non-matching) to authorize")
	}
}

func TestAndOr(t *testing.T) {
	user := testUser()

	cases := []struct {
		name string
		rule model.Rule
		want bool
	}{
		{"and all match", And(Role("manager"), Group("finance")), true},
		{"and one fails", And(Role("manager"), Group("hr")), false},
		{"and empty", And(), true},
		{"or one matches", Or(Role("admin"), User("alice")), true},
		{"or none match", Or(Role("admin"), User("bob")), false},
		{"or empty", Or(), false},
		{"nested", Or(And(Role("manager"), Not(Group("hr"))), User("bob")), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.rule.IsAuthorized(user); got != tc.want {
				t.Errorf("IsAuthorized = %v, want %v", got, tc.want)
			}
		})
	}
}

// countingRule records whether it was evaluated, to verify short-circuiting.
type countingRule struct {
	result bool
	called bool
}

func (r *countingRule) IsAuthorized(_ *model.UserContext) bool {
	r.called = true
	return r.result
}

func TestShortCircuit(t *testing.T) {
	user := testUser()

	tail := &countingRule{result: true}
	if And(&countingRule{result: false}, tail).IsAuthorized(user) {
		t.Error("expected And to deny")
	}
	if tail.called {
		t.Error("expected And to short-circuit after first denial")
	}

	tail = &countingRule{result: false}
	if !Or(&countingRule{result: true}, tail).IsAuthorized(user) {
		t.Error("expected Or to authorize")
	}
	if tail.called {
		t.Error("expected Or to short-circuit after first grant")
	}
}

func TestBuilder(t *testing.T) {
	user := testUser()

	// Exactly one rule: Build returns it as-is.
	single := NewBuilder().Role("manager").Build()
	if !single.IsAuthorized(user) {
		t.Error("expected single-rule build to authorize")
	}

	// Multiple rules: implicit And.
	all := NewBuilder().Role("manager").Group("finance").Build()
	if !all.IsAuthorized(user) {
		t.Error("expected all-matching build to authorize")
	}
	some := NewBuilder().Role("manager").Group("hr").Build()
	if some.IsAuthorized(user) {
		t.Error("expected partially matching build to deny (implicit And)")
	}

	// Empty builder grants nothing.
	if NewBuilder().Build().IsAuthorized(user) {
		t.Error("expected empty build to deny")
	}
}
