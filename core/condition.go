package core

import (
	"fmt"
	"strings"
)

// Condition is a pure predicate over the previous step's output payload,
// used by the conditional strategy to decide whether a step executes.
//
// Grammar:
//
//	""                 always run
//	"field"            run when field is present and truthy
//	"!field"           run when field is absent or falsy
//	"field == value"   run when fmt.Sprint(output[field]) equals value
//	"field != value"   run when the field is absent or differs from value
//
// A value is compared as a plain string; surrounding single or double quotes
// are stripped. Falsy values are nil, false, empty strings and numeric zero.
type Condition string

// Evaluate applies the condition to the given payload. Evaluation never
// fails: a malformed expression evaluates to false so a misdeclared step is
// skipped rather than executed on garbage input.
func (c Condition) Evaluate(prev Payload) bool {
	expr := strings.TrimSpace(string(c))
	if expr == "" {
		return true
	}

	if idx := strings.Index(expr, "=="); idx >= 0 {
		field := strings.TrimSpace(expr[:idx])
		want := unquote(strings.TrimSpace(expr[idx+2:]))
		if field == "" {
			return false
		}
		v, ok := prev[field]
		return ok && fmt.Sprint(v) == want
	}

	if idx := strings.Index(expr, "!="); idx >= 0 {
		field := strings.TrimSpace(expr[:idx])
		want := unquote(strings.TrimSpace(expr[idx+2:]))
		if field == "" {
			return false
		}
		v, ok := prev[field]
		return !ok || fmt.Sprint(v) != want
	}

	if rest, negated := strings.CutPrefix(expr, "!"); negated {
		field := strings.TrimSpace(rest)
		if field == "" {
			return false
		}
		v, ok := prev[field]
		return !ok || !truthy(v)
	}

	v, ok := prev[expr]
	return ok && truthy(v)
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}
