package eval

import (
	"fmt"
	"strings"
)

// Filter restricts evaluation to matching rows. Non-matching rows receive
// null output and are excluded from the result statistics.
type Filter struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value any    `json:"value,omitempty"`
}

// FilterOps lists the supported filter operators.
var FilterOps = []string{"=", "!=", ">", ">=", "<", "<=", "in", "not_in", "between", "like", "is_null", "is_not_null"}

// ValidFilterOp reports whether op is a recognized filter operator.
func ValidFilterOp(op string) bool {
	for _, o := range FilterOps {
		if o == op {
			return true
		}
	}
	return false
}

// MatchOp applies one comparison operator to a cell value. It is shared
// between expression-evaluation filters and the DSL's filter/having
// handling.
func MatchOp(v any, op string, operand any) (bool, error) {
	switch op {
	case "is_null":
		return v == nil, nil
	case "is_not_null":
		return v != nil, nil
	case "=":
		return Equal(v, operand), nil
	case "!=":
		return v != nil && !Equal(v, operand), nil
	case ">", ">=", "<", "<=":
		c, ok := Compare(v, operand)
		if !ok {
			return false, nil
		}
		switch op {
		case ">":
			return c > 0, nil
		case ">=":
			return c >= 0, nil
		case "<":
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	case "in", "not_in":
		list, ok := operand.([]any)
		if !ok {
			return false, fmt.Errorf("operator %s requires an array value", op)
		}
		found := false
		for _, cand := range list {
			if Equal(v, cand) {
				found = true
				break
			}
		}
		if op == "in" {
			return found, nil
		}
		return !found, nil
	case "between":
		pair, ok := operand.([]any)
		if !ok || len(pair) != 2 {
			return false, fmt.Errorf("operator between requires a two-element array value")
		}
		lo, lok := Compare(v, pair[0])
		hi, hok := Compare(v, pair[1])
		return lok && hok && lo >= 0 && hi <= 0, nil
	case "like":
		s, sok := Text(v)
		pat, pok := Text(operand)
		if !sok || !pok {
			return false, nil
		}
		return matchLike(s, pat), nil
	}
	return false, fmt.Errorf("unsupported operator %q (supported: %s)", op, strings.Join(FilterOps, ", "))
}

// matchLike implements SQL LIKE with % and _ wildcards, case-insensitive.
func matchLike(s, pattern string) bool {
	s = strings.ToLower(s)
	pattern = strings.ToLower(pattern)
	return likeMatch(s, pattern)
}

func likeMatch(s, p string) bool {
	if p == "" {
		return s == ""
	}
	switch p[0] {
	case '%':
		for i := 0; i <= len(s); i++ {
			if likeMatch(s[i:], p[1:]) {
				return true
			}
		}
		return false
	case '_':
		return s != "" && likeMatch(s[1:], p[1:])
	default:
		return s != "" && s[0] == p[0] && likeMatch(s[1:], p[1:])
	}
}

// matches evaluates all filters against a row (AND semantics).
func matches(row map[string]any, filters []Filter) (bool, error) {
	for _, f := range filters {
		ok, err := MatchOp(row[f.Field], f.Op, f.Value)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
