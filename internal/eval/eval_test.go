package eval

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dolex/internal/core"
	"dolex/internal/expr"
)

func evalExpr(t *testing.T, expression string, rows []core.Row, opts Options) *Result {
	t.Helper()
	node, err := expr.Parse(expression)
	require.NoError(t, err)
	res, err := Evaluate(context.Background(), node, rows, "", opts)
	require.NoError(t, err)
	return res
}

func numRows(vals ...any) []core.Row {
	rows := make([]core.Row, len(vals))
	for i, v := range vals {
		rows[i] = core.Row{"x": v}
	}
	return rows
}

func TestArithmeticAndNullPropagation(t *testing.T) {
	res := evalExpr(t, "x * 2 + 1", numRows(1.0, 2.0, nil), Options{})
	assert.Equal(t, []any{3.0, 5.0, nil}, res.Values)
	assert.Equal(t, core.TypeNumeric, res.Type)

	res = evalExpr(t, "x / 0", numRows(1.0), Options{})
	assert.Equal(t, []any{nil}, res.Values)

	res = evalExpr(t, "10 % 3", numRows(1.0), Options{})
	assert.Equal(t, 1.0, res.Values[0])

	res = evalExpr(t, "2 ** 10", numRows(1.0), Options{})
	assert.Equal(t, 1024.0, res.Values[0])
}

func TestStringCoercionInArithmetic(t *testing.T) {
	// Text-backed storage hands back numeric strings.
	res := evalExpr(t, "x + 1", numRows("100", "2.5"), Options{})
	assert.Equal(t, []any{101.0, 3.5}, res.Values)
}

func TestMathFunctionDomains(t *testing.T) {
	res := evalExpr(t, "log(x)", numRows(1.0, 0.0, -5.0), Options{})
	assert.NotNil(t, res.Values[0])
	assert.Nil(t, res.Values[1])
	assert.Nil(t, res.Values[2])

	res = evalExpr(t, "sqrt(x)", numRows(4.0, -1.0), Options{})
	assert.Equal(t, 2.0, res.Values[0])
	assert.Nil(t, res.Values[1])

	res = evalExpr(t, "round(x, 1)", numRows(1.25), Options{})
	assert.InDelta(t, 1.3, res.Values[0].(float64), 1e-9)
}

func TestStringFunctions(t *testing.T) {
	rows := []core.Row{{"s": "  Hello  "}}
	res := evalExpr(t, "upper(trim(s))", rows, Options{})
	assert.Equal(t, "HELLO", res.Values[0])
	assert.Equal(t, core.TypeCategorical, res.Type)

	res = evalExpr(t, "substr(trim(s), 2, 3)", rows, Options{})
	assert.Equal(t, "ell", res.Values[0])

	res = evalExpr(t, "len(trim(s))", rows, Options{})
	assert.Equal(t, 5.0, res.Values[0])

	res = evalExpr(t, "concat(s, null)", rows, Options{})
	assert.Nil(t, res.Values[0])
}

func TestDatePart(t *testing.T) {
	rows := []core.Row{{"d": "2024-03-15"}, {"d": "not a date"}}
	res := evalExpr(t, "date_part(d, 'year')", rows, Options{})
	assert.Equal(t, 2024.0, res.Values[0])
	assert.Nil(t, res.Values[1])

	res = evalExpr(t, "date_part(d, 'month')", rows, Options{})
	assert.Equal(t, 3.0, res.Values[0])
}

func TestRowAggregationsIgnoreNulls(t *testing.T) {
	rows := []core.Row{{"a": 1.0, "b": nil, "c": 5.0}}
	res := evalExpr(t, "row_mean(a, b, c)", rows, Options{})
	assert.Equal(t, 3.0, res.Values[0])

	res = evalExpr(t, "row_sum(a, b, c)", rows, Options{})
	assert.Equal(t, 6.0, res.Values[0])

	res = evalExpr(t, "row_min(a, c)", rows, Options{})
	assert.Equal(t, 1.0, res.Values[0])

	res = evalExpr(t, "row_max(a, c)", rows, Options{})
	assert.Equal(t, 5.0, res.Values[0])
}

func TestConditionals(t *testing.T) {
	res := evalExpr(t, "if_else(x > 1, 'big', 'small')", numRows(2.0, 0.0, nil), Options{})
	assert.Equal(t, "big", res.Values[0])
	assert.Equal(t, "small", res.Values[1])
	assert.Nil(t, res.Values[2])

	res = evalExpr(t, "recode(x, 1, 'one', 2, 'two', 'other')", numRows(1.0, 2.0, 3.0), Options{})
	assert.Equal(t, []any{"one", "two", "other"}, res.Values)

	res = evalExpr(t, "recode(x, 1, 'one')", numRows(9.0), Options{})
	assert.Nil(t, res.Values[0])

	res = evalExpr(t, "cut(x, [0, 10, 20], ['low', 'high'])", numRows(5.0, 10.0, 25.0), Options{})
	assert.Equal(t, "low", res.Values[0])
	assert.Equal(t, "high", res.Values[1]) // half-open bins: 10 lands in [10, 20)
	assert.Nil(t, res.Values[2])
}

func TestColumnWiseFunctions(t *testing.T) {
	rows := numRows(10.0, 20.0, 30.0, 40.0)

	res := evalExpr(t, "col_mean(x)", rows, Options{})
	assert.Equal(t, 25.0, res.Values[0])

	res = evalExpr(t, "center(x)", rows, Options{})
	assert.Equal(t, -15.0, res.Values[0])
	assert.Equal(t, 15.0, res.Values[3])

	res = evalExpr(t, "col_median(x)", rows, Options{})
	assert.Equal(t, 25.0, res.Values[0])

	res = evalExpr(t, "rank(x)", numRows(30.0, 10.0, 10.0, 20.0), Options{})
	assert.Equal(t, []any{3.0, 1.0, 1.0, 2.0}, res.Values)

	res = evalExpr(t, "percentile_rank(x)", numRows(10.0, 20.0, 30.0), Options{})
	assert.Equal(t, []any{0.0, 0.5, 1.0}, res.Values)

	res = evalExpr(t, "ntile(x, 2)", numRows(1.0, 2.0, 3.0, 4.0), Options{})
	assert.Equal(t, []any{1.0, 1.0, 2.0, 2.0}, res.Values)
}

func TestZScorePartitioned(t *testing.T) {
	rows := []core.Row{
		{"x": 1.0, "g": "a"},
		{"x": 3.0, "g": "a"},
		{"x": 10.0, "g": "b"},
		{"x": 30.0, "g": "b"},
	}
	res := evalExpr(t, "zscore(x)", rows, Options{PartitionBy: "g"})
	// Each group is centered on its own mean.
	assert.InDelta(t, -0.7071, res.Values[0].(float64), 1e-3)
	assert.InDelta(t, 0.7071, res.Values[1].(float64), 1e-3)
	assert.InDelta(t, -0.7071, res.Values[2].(float64), 1e-3)
}

func TestFilterRestrictsEvaluation(t *testing.T) {
	rows := []core.Row{
		{"x": 1.0, "keep": "yes"},
		{"x": 2.0, "keep": "no"},
		{"x": 3.0, "keep": "yes"},
	}
	res := evalExpr(t, "x * 10", rows, Options{Filter: []Filter{{Field: "keep", Op: "=", Value: "yes"}}})
	assert.Equal(t, []any{10.0, nil, 30.0}, res.Values)
	// Filtered-out rows do not count as nulls in the statistics.
	assert.Equal(t, 2, res.Stats.Count)
	assert.Equal(t, 0, res.Stats.Nulls)
}

func TestFilterOperators(t *testing.T) {
	cases := []struct {
		op    string
		value any
		want  bool
	}{
		{"=", 5.0, true},
		{"!=", 5.0, false},
		{">", 4.0, true},
		{">=", 5.0, true},
		{"<", 5.0, false},
		{"<=", 5.0, true},
		{"in", []any{1.0, 5.0}, true},
		{"not_in", []any{1.0, 5.0}, false},
		{"between", []any{1.0, 10.0}, true},
		{"is_not_null", nil, true},
	}
	for _, tc := range cases {
		ok, err := MatchOp(5.0, tc.op, tc.value)
		require.NoError(t, err, tc.op)
		assert.Equal(t, tc.want, ok, tc.op)
	}

	ok, err := MatchOp(nil, "is_null", nil)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = MatchOp("widget", "like", "wid%")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWarnings(t *testing.T) {
	res := evalExpr(t, "log(x)", numRows(-1.0, -2.0, -3.0), Options{})
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "null")

	res = evalExpr(t, "x * 0", numRows(1.0, 2.0, 3.0), Options{})
	requireContains(t, res.Warnings, "constant")
}

func TestBooleanOutputType(t *testing.T) {
	res := evalExpr(t, "x > 1", numRows(0.0, 2.0), Options{})
	assert.Equal(t, core.TypeBoolean, res.Type)
	assert.Equal(t, []any{false, true}, res.Values)

	res = evalExpr(t, "not (x > 1)", numRows(2.0), Options{})
	assert.Equal(t, []any{false}, res.Values)
}

func TestUnknownFunctionFails(t *testing.T) {
	node, err := expr.Parse("frobnicate(x)")
	require.NoError(t, err)
	_, err = Evaluate(context.Background(), node, numRows(1.0), "", Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown function")
}

func TestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	node, err := expr.Parse("x + 1")
	require.NoError(t, err)
	_, err = Evaluate(ctx, node, numRows(1.0), "", Options{})
	require.Error(t, err)
}

func requireContains(t *testing.T, haystack []string, needle string) {
	t.Helper()
	for _, s := range haystack {
		if strings.Contains(s, needle) {
			return
		}
	}
	t.Fatalf("no element of %v contains %q", haystack, needle)
}
