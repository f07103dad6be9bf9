package engine

import "github.com/gatehouse-io/gatehouse/model"

// ResolveNextState returns the routing target for an action against a payload
// snapshot. Labeled transition rules are tried first, in insertion order;
// then the legacy conditional targets, in insertion order; when nothing
// matches, the action's static next state wins. Labeled rules always take
// precedence over the legacy pairs, regardless of declaration order between
// the two mechanisms.
func ResolveNextState(action *model.Action, payload map[string]any) string {
	for _, r := range action.TransitionRules {
		if r.Condition != nil && r.Condition(payload) {
			return r.Target
		}
	}
	for _, c := range action.Conditions {
		if c.Condition != nil && c.Condition(payload) {
			return c.Target
		}
	}
	return action.NextState
}
