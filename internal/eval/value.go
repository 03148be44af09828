// Package eval implements two-phase evaluation of derived-column
// expressions: a precompute pass that resolves column-wise functions into
// per-row lookup tables, then a row loop that evaluates the AST against
// each row. All functions propagate null on invalid input instead of
// failing.
package eval

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// IsNull reports whether v is the null value. An empty string is a value,
// not null.
func IsNull(v any) bool {
	return v == nil
}

// Number converts v to a float64. The second return is false when v is null
// or not numeric. Strings are parsed so that text-backed storage round-trips.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case []byte:
		f, err := strconv.ParseFloat(strings.TrimSpace(string(n)), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// Text converts v to its string form. Null converts to ("", false).
func Text(v any) (string, bool) {
	switch s := v.(type) {
	case nil:
		return "", false
	case string:
		return s, true
	case []byte:
		return string(s), true
	case bool:
		if s {
			return "true", true
		}
		return "false", true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(s, 10), true
	case int:
		return strconv.Itoa(s), true
	}
	return fmt.Sprint(v), true
}

// Truthy converts v to a boolean. Null converts to (false, false).
func Truthy(v any) (bool, bool) {
	switch b := v.(type) {
	case nil:
		return false, false
	case bool:
		return b, true
	case float64:
		return b != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "1", "yes":
			return true, true
		case "false", "0", "no":
			return false, true
		}
		return b != "", true
	}
	if f, ok := Number(v); ok {
		return f != 0, true
	}
	return false, false
}

// Equal compares two values the way the expression language does: numeric
// when both sides are numeric, string compare otherwise. Null equals only
// null.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	an, aok := Number(a)
	bn, bok := Number(b)
	if aok && bok {
		return an == bn
	}
	as, _ := Text(a)
	bs, _ := Text(b)
	return as == bs
}

// Compare orders a against b: -1, 0, or 1. The second return is false when
// either side is null. Numeric compare applies when both sides parse as
// numbers, string compare otherwise.
func Compare(a, b any) (int, bool) {
	if a == nil || b == nil {
		return 0, false
	}
	an, aok := Number(a)
	bn, bok := Number(b)
	if aok && bok {
		switch {
		case an < bn:
			return -1, true
		case an > bn:
			return 1, true
		}
		return 0, true
	}
	as, _ := Text(a)
	bs, _ := Text(b)
	return strings.Compare(as, bs), true
}

var dateLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"2006-01",
	"01/02/2006",
}

// Date parses v into a time.Time using the recognized layouts.
func Date(v any) (time.Time, bool) {
	s, ok := Text(v)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
