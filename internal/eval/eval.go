package eval

import (
	"context"
	"fmt"
	"math"

	"dolex/internal/core"
	"dolex/internal/expr"
)

// cancelCheckEvery is how many row-loop iterations run between context
// checks.
const cancelCheckEvery = 1024

// Options configure a single evaluation.
type Options struct {
	// PartitionBy names a column whose groups bound the column-wise
	// functions: each group is computed independently and stitched back.
	PartitionBy string
	// Filter restricts evaluation; non-matching rows produce null.
	Filter []Filter
}

// Stats summarizes the non-null outputs of an evaluation.
type Stats struct {
	Count int      `json:"count"`
	Nulls int      `json:"nulls"`
	Min   *float64 `json:"min,omitempty"`
	Max   *float64 `json:"max,omitempty"`
	Mean  *float64 `json:"mean,omitempty"`
}

// Result is the typed outcome of evaluating an expression over all rows.
type Result struct {
	Values   []any             `json:"values"`
	Type     core.SemanticType `json:"type"`
	Stats    Stats             `json:"stats"`
	Warnings []string          `json:"warnings,omitempty"`
}

// Evaluate runs the two evaluation phases over rows: precompute every
// column-wise call, then the per-row loop. inputType is the semantic type of
// the expression's primary input column (used when the output preserves it);
// pass "" when unknown.
func Evaluate(ctx context.Context, node expr.Node, rows []core.Row, inputType core.SemanticType, opts Options) (*Result, error) {
	if err := validateCalls(node); err != nil {
		return nil, err
	}

	// Row mask from the filter.
	var include []bool
	if len(opts.Filter) > 0 {
		include = make([]bool, len(rows))
		for i, row := range rows {
			ok, err := matches(row, opts.Filter)
			if err != nil {
				return nil, err
			}
			include[i] = ok
		}
	}

	pre, err := precompute(node, rows, include, opts.PartitionBy)
	if err != nil {
		return nil, err
	}

	values := make([]any, len(rows))
	for i, row := range rows {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if include != nil && !include[i] {
			values[i] = nil
			continue
		}
		values[i] = evalNode(node, row, i, pre)
	}

	res := &Result{Values: values, Type: outputType(node, values, inputType)}
	res.finalize(include)
	return res, nil
}

func validateCalls(node expr.Node) error {
	var err error
	expr.Walk(node, func(n expr.Node) {
		if err != nil {
			return
		}
		if c, ok := n.(*expr.Call); ok {
			err = CheckCall(c.Name, len(c.Args))
		}
	})
	return err
}

func evalNode(node expr.Node, row core.Row, rowIndex int, pre map[string][]any) any {
	switch n := node.(type) {
	case *expr.Number:
		return n.Value
	case *expr.String:
		return n.Value
	case *expr.Bool:
		return n.Value
	case *expr.Null:
		return nil
	case *expr.Column:
		return row[n.Name]
	case *expr.Array:
		elems := make([]any, len(n.Elems))
		for i, e := range n.Elems {
			elems[i] = evalNode(e, row, rowIndex, pre)
		}
		return elems
	case *expr.Unary:
		return evalUnary(n, row, rowIndex, pre)
	case *expr.Binary:
		return evalBinary(n, row, rowIndex, pre)
	case *expr.Call:
		return evalCall(n, row, rowIndex, pre)
	}
	return nil
}

func evalUnary(n *expr.Unary, row core.Row, rowIndex int, pre map[string][]any) any {
	v := evalNode(n.Operand, row, rowIndex, pre)
	switch n.Op {
	case "-":
		if f, ok := Number(v); ok {
			return -f
		}
	case "not":
		if b, ok := Truthy(v); ok {
			return !b
		}
	}
	return nil
}

func evalBinary(n *expr.Binary, row core.Row, rowIndex int, pre map[string][]any) any {
	switch n.Op {
	case "and":
		l, lok := Truthy(evalNode(n.Left, row, rowIndex, pre))
		if lok && !l {
			return false
		}
		r, rok := Truthy(evalNode(n.Right, row, rowIndex, pre))
		if !lok || !rok {
			return nil
		}
		return l && r
	case "or":
		l, lok := Truthy(evalNode(n.Left, row, rowIndex, pre))
		if lok && l {
			return true
		}
		r, rok := Truthy(evalNode(n.Right, row, rowIndex, pre))
		if !lok || !rok {
			return nil
		}
		return l || r
	}

	left := evalNode(n.Left, row, rowIndex, pre)
	right := evalNode(n.Right, row, rowIndex, pre)

	switch n.Op {
	case "=", "!=":
		if left == nil || right == nil {
			return nil
		}
		eq := Equal(left, right)
		if n.Op == "!=" {
			return !eq
		}
		return eq
	case "<", "<=", ">", ">=":
		c, ok := Compare(left, right)
		if !ok {
			return nil
		}
		switch n.Op {
		case "<":
			return c < 0
		case "<=":
			return c <= 0
		case ">":
			return c > 0
		default:
			return c >= 0
		}
	}

	// Arithmetic. String + string concatenates, anything else is numeric.
	if n.Op == "+" {
		if ls, lok := left.(string); lok {
			if rs, rok := right.(string); rok {
				return ls + rs
			}
		}
	}
	l, lok := Number(left)
	r, rok := Number(right)
	if !lok || !rok {
		return nil
	}
	var out float64
	switch n.Op {
	case "+":
		out = l + r
	case "-":
		out = l - r
	case "*":
		out = l * r
	case "/":
		if r == 0 {
			return nil
		}
		out = l / r
	case "%":
		if r == 0 {
			return nil
		}
		out = math.Mod(l, r)
	case "**":
		out = math.Pow(l, r)
	default:
		return nil
	}
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return nil
	}
	return out
}

func evalCall(n *expr.Call, row core.Row, rowIndex int, pre map[string][]any) any {
	if IsColumnWise(n.Name) {
		col, ok := n.Args[0].(*expr.Column)
		if !ok {
			return nil
		}
		extra := 0.0
		if n.Name == "ntile" {
			if num, ok := n.Args[1].(*expr.Number); ok {
				extra = math.Trunc(num.Value)
			}
		}
		vals := pre[colKey(n.Name, col.Name, extra)]
		if rowIndex < len(vals) {
			return vals[rowIndex]
		}
		return nil
	}
	f := rowFuncs[n.Name]
	args := make([]any, len(n.Args))
	for i, a := range n.Args {
		args[i] = evalNode(a, row, rowIndex, pre)
	}
	return f.call(args)
}

// outputType infers the semantic type of the output per the typing rules:
// arithmetic produces numeric, comparison and logical produce boolean,
// string functions and cut and the string-producing conditionals produce
// categorical, and everything else preserves the input type.
func outputType(node expr.Node, values []any, inputType core.SemanticType) core.SemanticType {
	switch n := node.(type) {
	case *expr.Binary:
		switch n.Op {
		case "and", "or", "=", "!=", "<", "<=", ">", ">=":
			return core.TypeBoolean
		default:
			return core.TypeNumeric
		}
	case *expr.Unary:
		if n.Op == "not" {
			return core.TypeBoolean
		}
		return core.TypeNumeric
	case *expr.Number:
		return core.TypeNumeric
	case *expr.String:
		return core.TypeCategorical
	case *expr.Bool:
		return core.TypeBoolean
	case *expr.Call:
		switch n.Name {
		case "upper", "lower", "trim", "concat", "substr", "cut":
			return core.TypeCategorical
		case "len", "date_part", "row_mean", "row_sum", "row_min", "row_max",
			"log", "log10", "log2", "sqrt", "abs", "exp", "round", "ceil", "floor",
			"col_mean", "col_sd", "col_min", "col_max", "col_median",
			"zscore", "center", "rank", "percentile_rank", "ntile":
			return core.TypeNumeric
		case "if_else", "recode":
			return scanOutputType(values, inputType)
		}
	}
	return scanOutputType(values, inputType)
}

// scanOutputType classifies by the produced values when the AST alone does
// not decide.
func scanOutputType(values []any, inputType core.SemanticType) core.SemanticType {
	numeric, boolean, str := 0, 0, 0
	nonNull := 0
	for _, v := range values {
		if v == nil {
			continue
		}
		nonNull++
		switch v.(type) {
		case float64, int, int64:
			numeric++
		case bool:
			boolean++
		case string:
			str++
		}
	}
	switch {
	case nonNull == 0:
		if inputType != "" {
			return inputType
		}
		return core.TypeCategorical
	case numeric == nonNull:
		if inputType != "" && numeric == 0 {
			return inputType
		}
		return core.TypeNumeric
	case boolean == nonNull:
		return core.TypeBoolean
	case str == nonNull:
		return core.TypeCategorical
	}
	if inputType != "" {
		return inputType
	}
	return core.TypeCategorical
}

// finalize computes output statistics over rows that passed the filter and
// attaches quality warnings.
func (r *Result) finalize(include []bool) {
	var nums []float64
	considered := 0
	for i, v := range r.Values {
		if include != nil && !include[i] {
			continue
		}
		considered++
		if v == nil {
			r.Stats.Nulls++
			continue
		}
		r.Stats.Count++
		if f, ok := Number(v); ok {
			nums = append(nums, f)
		}
	}
	if r.Type == core.TypeNumeric && len(nums) > 0 {
		mn, mx := nums[0], nums[0]
		sum := 0.0
		for _, v := range nums {
			mn = math.Min(mn, v)
			mx = math.Max(mx, v)
			sum += v
		}
		mean := sum / float64(len(nums))
		r.Stats.Min, r.Stats.Max, r.Stats.Mean = &mn, &mx, &mean
	}

	switch {
	case considered > 0 && r.Stats.Count == 0:
		r.Warnings = append(r.Warnings, "all output values are null")
	case considered > 0 && float64(r.Stats.Nulls)/float64(considered) >= 0.2:
		r.Warnings = append(r.Warnings, fmt.Sprintf("%d of %d output values are null", r.Stats.Nulls, considered))
	}
	if r.Stats.Count > 1 && isConstant(r.Values, include) {
		r.Warnings = append(r.Warnings, "output is constant across all rows")
	}
}

func isConstant(values []any, include []bool) bool {
	var first any
	seen := false
	for i, v := range values {
		if include != nil && !include[i] {
			continue
		}
		if v == nil {
			continue
		}
		if !seen {
			first, seen = v, true
			continue
		}
		if !Equal(first, v) {
			return false
		}
	}
	return seen
}
