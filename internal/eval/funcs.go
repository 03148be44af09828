package eval

import (
	"fmt"
	"math"
	"strings"
)

// rowFunc is a pure per-row function. Args arrive already evaluated; the
// function returns null for out-of-domain input and never fails.
type rowFunc struct {
	name    string
	minArgs int
	maxArgs int // -1 means variadic
	call    func(args []any) any
}

var rowFuncs = map[string]rowFunc{}

func register(f rowFunc) {
	rowFuncs[f.name] = f
}

func init() {
	// Math. log/log10/log2 of x <= 0 and sqrt of x < 0 produce null.
	register(rowFunc{name: "log", minArgs: 1, maxArgs: 1, call: mathFunc(func(x float64) (float64, bool) {
		if x <= 0 {
			return 0, false
		}
		return math.Log(x), true
	})})
	register(rowFunc{name: "log10", minArgs: 1, maxArgs: 1, call: mathFunc(func(x float64) (float64, bool) {
		if x <= 0 {
			return 0, false
		}
		return math.Log10(x), true
	})})
	register(rowFunc{name: "log2", minArgs: 1, maxArgs: 1, call: mathFunc(func(x float64) (float64, bool) {
		if x <= 0 {
			return 0, false
		}
		return math.Log2(x), true
	})})
	register(rowFunc{name: "sqrt", minArgs: 1, maxArgs: 1, call: mathFunc(func(x float64) (float64, bool) {
		if x < 0 {
			return 0, false
		}
		return math.Sqrt(x), true
	})})
	register(rowFunc{name: "abs", minArgs: 1, maxArgs: 1, call: mathFunc(func(x float64) (float64, bool) {
		return math.Abs(x), true
	})})
	register(rowFunc{name: "exp", minArgs: 1, maxArgs: 1, call: mathFunc(func(x float64) (float64, bool) {
		return math.Exp(x), true
	})})
	register(rowFunc{name: "ceil", minArgs: 1, maxArgs: 1, call: mathFunc(func(x float64) (float64, bool) {
		return math.Ceil(x), true
	})})
	register(rowFunc{name: "floor", minArgs: 1, maxArgs: 1, call: mathFunc(func(x float64) (float64, bool) {
		return math.Floor(x), true
	})})
	register(rowFunc{name: "round", minArgs: 1, maxArgs: 2, call: callRound})

	// String.
	register(rowFunc{name: "upper", minArgs: 1, maxArgs: 1, call: stringFunc(strings.ToUpper)})
	register(rowFunc{name: "lower", minArgs: 1, maxArgs: 1, call: stringFunc(strings.ToLower)})
	register(rowFunc{name: "trim", minArgs: 1, maxArgs: 1, call: stringFunc(strings.TrimSpace)})
	register(rowFunc{name: "concat", minArgs: 1, maxArgs: -1, call: callConcat})
	register(rowFunc{name: "substr", minArgs: 2, maxArgs: 3, call: callSubstr})
	register(rowFunc{name: "len", minArgs: 1, maxArgs: 1, call: callLen})

	// Date.
	register(rowFunc{name: "date_part", minArgs: 2, maxArgs: 2, call: callDatePart})

	// Row aggregations over the argument list, ignoring nulls.
	register(rowFunc{name: "row_mean", minArgs: 1, maxArgs: -1, call: rowAgg(func(vals []float64) float64 {
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		return sum / float64(len(vals))
	})})
	register(rowFunc{name: "row_sum", minArgs: 1, maxArgs: -1, call: rowAgg(func(vals []float64) float64 {
		sum := 0.0
		for _, v := range vals {
			sum += v
		}
		return sum
	})})
	register(rowFunc{name: "row_min", minArgs: 1, maxArgs: -1, call: rowAgg(func(vals []float64) float64 {
		m := vals[0]
		for _, v := range vals[1:] {
			m = math.Min(m, v)
		}
		return m
	})})
	register(rowFunc{name: "row_max", minArgs: 1, maxArgs: -1, call: rowAgg(func(vals []float64) float64 {
		m := vals[0]
		for _, v := range vals[1:] {
			m = math.Max(m, v)
		}
		return m
	})})

	// Conditional.
	register(rowFunc{name: "if_else", minArgs: 3, maxArgs: 3, call: callIfElse})
	register(rowFunc{name: "recode", minArgs: 3, maxArgs: -1, call: callRecode})
	register(rowFunc{name: "cut", minArgs: 3, maxArgs: 3, call: callCut})
}

func mathFunc(fn func(float64) (float64, bool)) func([]any) any {
	return func(args []any) any {
		x, ok := Number(args[0])
		if !ok {
			return nil
		}
		out, ok := fn(x)
		if !ok || math.IsNaN(out) || math.IsInf(out, 0) {
			return nil
		}
		return out
	}
}

func stringFunc(fn func(string) string) func([]any) any {
	return func(args []any) any {
		s, ok := Text(args[0])
		if !ok {
			return nil
		}
		return fn(s)
	}
}

func callRound(args []any) any {
	x, ok := Number(args[0])
	if !ok {
		return nil
	}
	digits := 0.0
	if len(args) == 2 {
		d, ok := Number(args[1])
		if !ok {
			return nil
		}
		digits = math.Trunc(d)
	}
	scale := math.Pow(10, digits)
	return math.Round(x*scale) / scale
}

func callConcat(args []any) any {
	var sb strings.Builder
	for _, a := range args {
		if a == nil {
			return nil
		}
		s, _ := Text(a)
		sb.WriteString(s)
	}
	return sb.String()
}

func callSubstr(args []any) any {
	s, ok := Text(args[0])
	if !ok {
		return nil
	}
	start, ok := Number(args[1])
	if !ok {
		return nil
	}
	runes := []rune(s)
	// 1-based start offset.
	from := int(start) - 1
	if from < 0 {
		from = 0
	}
	if from >= len(runes) {
		return ""
	}
	to := len(runes)
	if len(args) == 3 {
		n, ok := Number(args[2])
		if !ok {
			return nil
		}
		if int(n) < 0 {
			return nil
		}
		if from+int(n) < to {
			to = from + int(n)
		}
	}
	return string(runes[from:to])
}

func callLen(args []any) any {
	s, ok := Text(args[0])
	if !ok {
		return nil
	}
	return float64(len([]rune(s)))
}

func callDatePart(args []any) any {
	t, ok := Date(args[0])
	if !ok {
		return nil
	}
	unit, ok := Text(args[1])
	if !ok {
		return nil
	}
	switch strings.ToLower(unit) {
	case "year":
		return float64(t.Year())
	case "month":
		return float64(int(t.Month()))
	case "day":
		return float64(t.Day())
	case "hour":
		return float64(t.Hour())
	case "minute":
		return float64(t.Minute())
	case "second":
		return float64(t.Second())
	case "weekday":
		return float64(int(t.Weekday()))
	}
	return nil
}

func rowAgg(fn func([]float64) float64) func([]any) any {
	return func(args []any) any {
		vals := make([]float64, 0, len(args))
		for _, a := range args {
			// Array arguments contribute each element.
			if arr, ok := a.([]any); ok {
				for _, e := range arr {
					if n, ok := Number(e); ok {
						vals = append(vals, n)
					}
				}
				continue
			}
			if n, ok := Number(a); ok {
				vals = append(vals, n)
			}
		}
		if len(vals) == 0 {
			return nil
		}
		return fn(vals)
	}
}

func callIfElse(args []any) any {
	cond, ok := Truthy(args[0])
	if !ok {
		return nil
	}
	if cond {
		return args[1]
	}
	return args[2]
}

// callRecode maps x through (k1, v1, k2, v2, …[, default]) pairs.
func callRecode(args []any) any {
	x := args[0]
	rest := args[1:]
	var def any
	hasDefault := len(rest)%2 == 1
	if hasDefault {
		def = rest[len(rest)-1]
		rest = rest[:len(rest)-1]
	}
	for i := 0; i+1 < len(rest); i += 2 {
		if Equal(x, rest[i]) {
			return rest[i+1]
		}
	}
	if hasDefault {
		return def
	}
	return nil
}

// callCut bins x into half-open intervals [b_i, b_i+1) labeled by labels.
func callCut(args []any) any {
	x, ok := Number(args[0])
	if !ok {
		return nil
	}
	breaks, ok := args[1].([]any)
	if !ok {
		return nil
	}
	labels, ok := args[2].([]any)
	if !ok {
		return nil
	}
	if len(labels) != len(breaks)-1 {
		return nil
	}
	for i := 0; i+1 < len(breaks); i++ {
		lo, lok := Number(breaks[i])
		hi, hok := Number(breaks[i+1])
		if !lok || !hok {
			return nil
		}
		if x >= lo && x < hi {
			return labels[i]
		}
	}
	return nil
}

// CheckCall validates the function name and arity at parse-resolution time
// so the row loop never has to.
func CheckCall(name string, argc int) error {
	if f, ok := rowFuncs[name]; ok {
		if argc < f.minArgs || (f.maxArgs >= 0 && argc > f.maxArgs) {
			return fmt.Errorf("function %s expects %s, got %d", name, arityString(f.minArgs, f.maxArgs), argc)
		}
		return nil
	}
	if spec, ok := colFuncs[name]; ok {
		if argc < spec.minArgs || argc > spec.maxArgs {
			return fmt.Errorf("function %s expects %s, got %d", name, arityString(spec.minArgs, spec.maxArgs), argc)
		}
		return nil
	}
	return fmt.Errorf("unknown function %q", name)
}

func arityString(minArgs, maxArgs int) string {
	switch {
	case maxArgs < 0:
		return fmt.Sprintf("at least %d argument(s)", minArgs)
	case minArgs == maxArgs:
		return fmt.Sprintf("%d argument(s)", minArgs)
	default:
		return fmt.Sprintf("%d to %d arguments", minArgs, maxArgs)
	}
}
