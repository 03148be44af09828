package dsl

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "dolex/internal/connect/csv"
	"dolex/internal/core"
	"dolex/internal/source"
)

func setupShop(t *testing.T) (*Executor, string) {
	t.Helper()
	dir := t.TempDir()
	orders := "order_id,product_id,price,order_date\n" +
		"1,10,5,2024-01-05\n" +
		"2,10,15,2024-01-20\n" +
		"3,11,20,2024-02-03\n" +
		"4,12,8,2024-02-10\n" +
		"5,11,30,2024-03-01\n"
	products := "product_id,product_category_name\n10,food\n11,tools\n12,toys\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orders.csv"), []byte(orders), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "products.csv"), []byte(products), 0o644))

	mgr := source.NewManager(source.Options{})
	t.Cleanup(mgr.Shutdown)
	_, err := mgr.Add(context.Background(), "shop", core.SourceCSV, core.SourceConfig{Path: dir})
	require.NoError(t, err)
	return NewExecutor(mgr, 0), "shop"
}

func parseQuery(t *testing.T, jsonText string) *Query {
	t.Helper()
	var q Query
	require.NoError(t, json.Unmarshal([]byte(jsonText), &q))
	return &q
}

func TestSelectItemUnmarshalForms(t *testing.T) {
	q := parseQuery(t, `{
		"select": [
			"region",
			{"field": "price", "aggregate": "sum", "as": "revenue"},
			{"window": "lag", "field": "revenue", "as": "prev"}
		],
		"groupBy": ["region", {"field": "order_date", "bucket": "month"}]
	}`)
	require.Len(t, q.Select, 3)
	assert.Equal(t, "region", q.Select[0].Field)
	assert.True(t, q.Select[1].IsAggregate())
	assert.Equal(t, "revenue", q.Select[1].OutputName())
	assert.True(t, q.Select[2].IsWindow())
	require.Len(t, q.GroupBy, 2)
	assert.Equal(t, "month", q.GroupBy[1].Bucket)
}

func TestValidateRejectsUnknownPieces(t *testing.T) {
	cases := []string{
		`{"select": []}`,
		`{"select": [{"field": "x", "aggregate": "frobnicate"}]}`,
		`{"select": [{"window": "wat", "field": "x"}]}`,
		`{"select": ["x"], "groupBy": [{"field": "d", "bucket": "fortnight"}]}`,
		`{"select": ["x"], "filter": [{"field": "x", "op": "~="}]}`,
		`{"select": ["x"], "orderBy": [{"field": "x", "direction": "sideways"}]}`,
		`{"select": ["x"], "join": [{"table": "y", "on": {"left": "a"}}]}`,
	}
	for _, c := range cases {
		require.Error(t, parseQuery(t, c).Validate(), c)
	}
}

// S3: join + aggregate + order + limit.
func TestJoinAggregation(t *testing.T) {
	exec, id := setupShop(t)
	q := parseQuery(t, `{
		"join": [{"table": "products", "on": {"left": "product_id", "right": "product_id"}}],
		"select": [
			"products.product_category_name",
			{"field": "price", "aggregate": "sum", "as": "revenue"}
		],
		"groupBy": ["products.product_category_name"],
		"orderBy": [{"field": "revenue", "direction": "desc"}],
		"limit": 3
	}`)

	res, err := exec.Execute(context.Background(), id, "orders", q)
	require.NoError(t, err)
	assert.Equal(t, []string{"product_category_name", "revenue"}, res.Columns)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, "tools", res.Rows[0]["product_category_name"])
	assert.Equal(t, 50.0, res.Rows[0]["revenue"])
	assert.Equal(t, "food", res.Rows[1]["product_category_name"])
	assert.Equal(t, 20.0, res.Rows[1]["revenue"])
	assert.Equal(t, "toys", res.Rows[2]["product_category_name"])
}

// Median forces the hybrid path on the embedded dialect.
func TestHybridMedian(t *testing.T) {
	exec, id := setupShop(t)
	q := parseQuery(t, `{
		"select": [{"field": "price", "aggregate": "median", "as": "mid"}]
	}`)
	res, err := exec.Execute(context.Background(), id, "orders", q)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, 15.0, res.Rows[0]["mid"])

	assert.False(t, Pushdown(q, core.DialectSQLite))
}

func TestHybridPercentileAndStddev(t *testing.T) {
	exec, id := setupShop(t)
	q := parseQuery(t, `{
		"select": [
			{"field": "price", "aggregate": "p25", "as": "q1"},
			{"field": "price", "aggregate": "percentile", "percentile": 50, "as": "p50"},
			{"field": "price", "aggregate": "stddev", "as": "sd"}
		]
	}`)
	res, err := exec.Execute(context.Background(), id, "orders", q)
	require.NoError(t, err)
	row := res.Rows[0]
	assert.Equal(t, 8.0, row["q1"])
	assert.Equal(t, 15.0, row["p50"])
	// Population formula over 5, 15, 20, 8, 30.
	assert.InDelta(t, 8.913, row["sd"].(float64), 1e-3)
}

func TestTimeBucketingMonthNative(t *testing.T) {
	exec, id := setupShop(t)
	// month is native on the embedded dialect, so this exercises the
	// bucket rendering in the select list.
	q := parseQuery(t, `{
		"select": ["order_date", {"field": "price", "aggregate": "sum", "as": "total"}],
		"groupBy": [{"field": "order_date", "bucket": "month"}],
		"orderBy": [{"field": "order_date", "direction": "asc"}]
	}`)
	res, err := exec.Execute(context.Background(), id, "orders", q)
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, "2024-01", res.Rows[0]["order_date"])
	assert.Equal(t, 20.0, res.Rows[0]["total"])
	assert.Equal(t, "2024-02", res.Rows[1]["order_date"])
	assert.Equal(t, 28.0, res.Rows[1]["total"])
}

func TestWeekBucketISO(t *testing.T) {
	assert.Equal(t, "2024-W01", bucketValue("2024-01-05", "week"))
	assert.Equal(t, "2024-Q1", bucketValue("2024-02-03", "quarter"))
	assert.Equal(t, "2024", bucketValue("2024-02-03", "year"))
	// Unparseable values pass through.
	assert.Equal(t, "banana", bucketValue("banana", "week"))
}

func TestHaving(t *testing.T) {
	exec, id := setupShop(t)
	q := parseQuery(t, `{
		"join": [{"table": "products", "on": {"left": "product_id", "right": "product_id"}}],
		"select": [
			"products.product_category_name",
			{"field": "price", "aggregate": "median", "as": "mid"}
		],
		"groupBy": ["products.product_category_name"],
		"having": [{"field": "mid", "op": ">", "value": 9}]
	}`)
	res, err := exec.Execute(context.Background(), id, "orders", q)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
}

func TestWindowFunctions(t *testing.T) {
	exec, id := setupShop(t)
	q := parseQuery(t, `{
		"select": [
			"order_id",
			"price",
			{"window": "running_sum", "field": "price", "as": "cum", "orderBy": "order_id"},
			{"window": "lag", "field": "price", "as": "prev", "orderBy": "order_id", "default": 0},
			{"window": "rank", "as": "rnk", "orderBy": "price"},
			{"window": "pct_of_total", "field": "price", "as": "pct"}
		],
		"orderBy": [{"field": "order_id", "direction": "asc"}],
		"limit": 100
	}`)
	res, err := exec.Execute(context.Background(), id, "orders", q)
	require.NoError(t, err)
	require.Len(t, res.Rows, 5)

	assert.Equal(t, 5.0, res.Rows[0]["cum"])
	assert.Equal(t, 20.0, res.Rows[1]["cum"])
	assert.Equal(t, 0.0, res.Rows[0]["prev"])
	assert.Equal(t, 5.0, res.Rows[1]["prev"])
	// price 5 is the smallest: rank 1.
	assert.Equal(t, 1.0, res.Rows[0]["rnk"])
	// 5 of 78 total.
	assert.InDelta(t, 6.41, res.Rows[0]["pct"].(float64), 0.01)
}

func TestAmbiguousFieldFailsWithCandidates(t *testing.T) {
	exec, id := setupShop(t)
	q := parseQuery(t, `{
		"join": [{"table": "products", "on": {"left": "product_id", "right": "product_id"}}],
		"select": ["product_id"]
	}`)
	_, err := exec.Execute(context.Background(), id, "orders", q)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")
	assert.Contains(t, err.Error(), "orders.product_id")
	assert.Contains(t, err.Error(), "products.product_id")
}

func TestUnknownFieldListsAvailable(t *testing.T) {
	exec, id := setupShop(t)
	q := parseQuery(t, `{"select": ["wat"]}`)
	_, err := exec.Execute(context.Background(), id, "orders", q)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "price")
}

func TestFilterPushdown(t *testing.T) {
	exec, id := setupShop(t)
	q := parseQuery(t, `{
		"select": ["order_id", "price"],
		"filter": [
			{"field": "price", "op": "between", "value": [6, 25]},
			{"field": "product_id", "op": "in", "value": [10, 11]}
		],
		"orderBy": [{"field": "price", "direction": "asc"}]
	}`)
	res, err := exec.Execute(context.Background(), id, "orders", q)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, 15.0, res.Rows[0]["price"])
	assert.Equal(t, 20.0, res.Rows[1]["price"])
}

// Pushdown-safe queries must agree with the in-process pipeline after
// normalization.
func TestPushdownAndHybridAgree(t *testing.T) {
	exec, id := setupShop(t)
	ctx := context.Background()

	pushable := parseQuery(t, `{
		"select": ["product_id", {"field": "price", "aggregate": "sum", "as": "total"}],
		"groupBy": ["product_id"],
		"orderBy": [{"field": "total", "direction": "desc"}]
	}`)
	require.True(t, Pushdown(pushable, core.DialectSQLite))

	native, err := exec.Execute(ctx, id, "orders", pushable)
	require.NoError(t, err)

	// Force the in-process pipeline over the same reduced fetch.
	schema, err := exec.mgr.Schema(ctx, id)
	require.NoError(t, err)
	base := schema.FindTable("orders")
	compiler := &Compiler{Dialect: core.DialectSQLite, Base: base.Name, Columns: map[string][]string{base.Name: base.ColumnNames()}}
	reduced, err := compiler.CompileReduced(pushable)
	require.NoError(t, err)
	raw, err := exec.mgr.ExecuteCompiled(ctx, id, reduced)
	require.NoError(t, err)
	hybrid, err := exec.finish(ctx, pushable, raw.Rows, 10000)
	require.NoError(t, err)

	assert.Equal(t, native.Columns, hybrid.Columns)
	require.Equal(t, len(native.Rows), len(hybrid.Rows))
	for i := range native.Rows {
		assert.Equal(t, native.Rows[i]["product_id"], hybrid.Rows[i]["product_id"])
		assert.InDelta(t, native.Rows[i]["total"].(float64), hybrid.Rows[i]["total"].(float64), 1e-9)
	}
}

func TestLimitCapAndTruncation(t *testing.T) {
	exec, id := setupShop(t)
	q := parseQuery(t, `{"select": ["order_id"], "limit": 2}`)
	res, err := exec.Execute(context.Background(), id, "orders", q)
	require.NoError(t, err)
	assert.Len(t, res.Rows, 2)
	assert.True(t, res.Truncated)
}

func TestSortSemanticsNullsAndNumbers(t *testing.T) {
	rows := []core.Row{
		{"v": nil},
		{"v": 10.0},
		{"v": 2.0},
	}
	sortRows(rows, []OrderItem{{Field: "v", Direction: "asc"}})
	assert.Equal(t, 2.0, rows[0]["v"])
	assert.Equal(t, 10.0, rows[1]["v"])
	assert.Nil(t, rows[2]["v"]) // nulls last ascending

	sortRows(rows, []OrderItem{{Field: "v", Direction: "desc"}})
	assert.Nil(t, rows[0]["v"]) // nulls first descending
	assert.Equal(t, 10.0, rows[1]["v"])
}
