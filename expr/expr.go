// Package expr compiles the small condition expressions used by declarative
// workflow definitions into payload predicates.
//
// Supported forms:
//
//	field == 'value'     string equality
//	field != 'value'     string inequality
//	field > 100          numeric comparison (also >=, <, <=)
//	nested.field == 'x'  dotted path access into nested maps
package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gatehouse-io/gatehouse/model"
)

// operators in trial order. Two-character operators come first so that
// ">=" is not parsed as ">".
var operators = []string{"==", "!=", ">=", "<=", ">", "<"}

// Compile parses a condition expression and returns a payload predicate.
func Compile(expression string) (model.Condition, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, fmt.Errorf("empty condition expression")
	}

	for _, op := range operators {
		left, right, ok := splitOnce(expression, op)
		if !ok {
			continue
		}
		field := strings.TrimSpace(left)
		operand := strings.TrimSpace(right)
		if field == "" || operand == "" {
			return nil, fmt.Errorf("invalid condition %q: missing operand", expression)
		}
		return compileComparison(field, op, operand)
	}

	return nil, fmt.Errorf("invalid condition %q: no operator found", expression)
}

// MustCompile is like Compile but panics on error. Intended for statically
// declared conditions in code.
func MustCompile(expression string) model.Condition {
	cond, err := Compile(expression)
	if err != nil {
		panic("expr: " + err.Error())
	}
	return cond
}

func compileComparison(field, op, operand string) (model.Condition, error) {
	// Quoted operand: string comparison. Only == and != apply.
	if quoted, ok := unquote(operand); ok {
		switch op {
		case "==":
			return func(payload map[string]any) bool {
				return stringValue(payload, field) == quoted
			}, nil
		case "!=":
			return func(payload map[string]any) bool {
				return stringValue(payload, field) != quoted
			}, nil
		default:
			return nil, fmt.Errorf("operator %q does not apply to string operand %q", op, operand)
		}
	}

	// Boolean literal.
	if operand == "true" || operand == "false" {
		want := operand == "true"
		switch op {
		case "==":
			return func(payload map[string]any) bool {
				b, ok := boolValue(payload, field)
				return ok && b == want
			}, nil
		case "!=":
			return func(payload map[string]any) bool {
				b, ok := boolValue(payload, field)
				return ok && b != want
			}, nil
		default:
			return nil, fmt.Errorf("operator %q does not apply to boolean operand", op)
		}
	}

	// Numeric operand.
	threshold, err := strconv.ParseFloat(operand, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid operand %q: expected quoted string, boolean, or number", operand)
	}
	return func(payload map[string]any) bool {
		val, ok := numericValue(payload, field)
		if !ok {
			return false
		}
		switch op {
		case "==":
			return val == threshold
		case "!=":
			return val != threshold
		case ">":
			return val > threshold
		case ">=":
			return val >= threshold
		case "<":
			return val < threshold
		case "<=":
			return val <= threshold
		}
		return false
	}, nil
}

// splitOnce splits s on the first occurrence of op that is not part of a
// longer operator.
func splitOnce(s, op string) (left, right string, ok bool) {
	for i := 0; i <= len(s)-len(op); i++ {
		if s[i:i+len(op)] != op {
			continue
		}
		// "==" preceded by '!', '<', or '>' belongs to the longer operator.
		if op == "==" && i > 0 && (s[i-1] == '!' || s[i-1] == '<' || s[i-1] == '>') {
			continue
		}
		// ">" or "<" followed by '=' is ">=" or "<=".
		if (op == ">" || op == "<") && i+1 < len(s) && s[i+1] == '=' {
			continue
		}
		return s[:i], s[i+len(op):], true
	}
	return "", "", false
}

func unquote(s string) (string, bool) {
	if len(s) >= 2 && ((s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"')) {
		return s[1 : len(s)-1], true
	}
	return "", false
}

// lookup resolves a dotted path into nested maps.
func lookup(payload map[string]any, path string) (any, bool) {
	if payload == nil {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var current any = payload
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func stringValue(payload map[string]any, field string) string {
	val, ok := lookup(payload, field)
	if !ok {
		return ""
	}
	return fmt.Sprint(val)
}

func boolValue(payload map[string]any, field string) (bool, bool) {
	val, ok := lookup(payload, field)
	if !ok {
		return false, false
	}
	b, ok := val.(bool)
	return b, ok
}

// numericValue coerces the common numeric representations a JSON or YAML
// payload may carry.
func numericValue(payload map[string]any, field string) (float64, bool) {
	val, ok := lookup(payload, field)
	if !ok {
		return 0, false
	}
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
