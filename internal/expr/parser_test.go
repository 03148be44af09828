package expr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLiterals(t *testing.T) {
	node, err := Parse("42")
	require.NoError(t, err)
	require.IsType(t, &Number{}, node)
	assert.Equal(t, 42.0, node.(*Number).Value)

	node, err = Parse("1.5e3")
	require.NoError(t, err)
	assert.Equal(t, 1500.0, node.(*Number).Value)

	node, err = Parse(`'hello'`)
	require.NoError(t, err)
	assert.Equal(t, "hello", node.(*String).Value)

	node, err = Parse(`"double"`)
	require.NoError(t, err)
	assert.Equal(t, "double", node.(*String).Value)

	node, err = Parse("true")
	require.NoError(t, err)
	assert.True(t, node.(*Bool).Value)

	node, err = Parse("null")
	require.NoError(t, err)
	require.IsType(t, &Null{}, node)
}

func TestParsePrecedence(t *testing.T) {
	// 1 + 2 * 3 parses as 1 + (2 * 3).
	node, err := Parse("1 + 2 * 3")
	require.NoError(t, err)
	bin := node.(*Binary)
	assert.Equal(t, "+", bin.Op)
	assert.Equal(t, "*", bin.Right.(*Binary).Op)

	// Comparison binds looser than arithmetic.
	node, err = Parse("a + 1 > b * 2")
	require.NoError(t, err)
	assert.Equal(t, ">", node.(*Binary).Op)

	// and binds tighter than or.
	node, err = Parse("a or b and c")
	require.NoError(t, err)
	bin = node.(*Binary)
	assert.Equal(t, "or", bin.Op)
	assert.Equal(t, "and", bin.Right.(*Binary).Op)

	// Power binds tighter than unary minus.
	node, err = Parse("-2 ** 2")
	require.NoError(t, err)
	un := node.(*Unary)
	assert.Equal(t, "-", un.Op)
	assert.Equal(t, "**", un.Operand.(*Binary).Op)
}

func TestParseCallsAndArrays(t *testing.T) {
	node, err := Parse("if_else(score > 50, 'pass', 'fail')")
	require.NoError(t, err)
	call := node.(*Call)
	assert.Equal(t, "if_else", call.Name)
	require.Len(t, call.Args, 3)

	node, err = Parse("cut(x, [0, 10, 20], ['low', 'high'])")
	require.NoError(t, err)
	call = node.(*Call)
	require.Len(t, call.Args, 3)
	assert.Len(t, call.Args[1].(*Array).Elems, 3)

	node, err = Parse("concat()")
	require.NoError(t, err)
	assert.Empty(t, node.(*Call).Args)
}

func TestParseBacktickIdentifier(t *testing.T) {
	node, err := Parse("`total sales` * 2")
	require.NoError(t, err)
	col := node.(*Binary).Left.(*Column)
	assert.Equal(t, "total sales", col.Name)
	assert.True(t, col.Quoted)
}

func TestParseErrorsCarryPosition(t *testing.T) {
	cases := []string{
		"1 +",
		"(a",
		"foo(a,",
		"'unterminated",
		"`unterminated",
		"a ^ b",
		"[1, 2",
		"and",
	}
	for _, input := range cases {
		_, err := Parse(input)
		require.Error(t, err, "input %q", input)
		var pe *ParseError
		require.ErrorAs(t, err, &pe, "input %q", input)
		assert.GreaterOrEqual(t, pe.Position, 0)
	}
}

func TestParseRejectsTrailingInput(t *testing.T) {
	_, err := Parse("1 + 2 extra")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected")
}

func TestColumnRefs(t *testing.T) {
	node, err := Parse("zscore(price) + `unit cost` * quantity + price")
	require.NoError(t, err)
	assert.Equal(t, []string{"price", "quantity", "unit cost"}, ColumnRefs(node))
}

func TestCallNames(t *testing.T) {
	node, err := Parse("log(abs(x)) + col_mean(y)")
	require.NoError(t, err)
	names := CallNames(node)
	assert.True(t, names["log"])
	assert.True(t, names["abs"])
	assert.True(t, names["col_mean"])
}
