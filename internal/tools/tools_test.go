package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	_ "dolex/internal/connect/csv"
	"dolex/internal/core"
	"dolex/internal/dsl"
	"dolex/internal/oplog"
	"dolex/internal/source"
	"dolex/internal/store"
)

func testDeps(t *testing.T) *Deps {
	t.Helper()
	mgr := source.NewManager(source.Options{})
	t.Cleanup(mgr.Shutdown)
	return &Deps{
		Manager: mgr,
		Exec:    dsl.NewExecutor(mgr, 0),
		Results: store.New[CachedResult]("qr", 20),
		Specs:   store.New[StoredSpec]("spec", 20),
		Ops:     oplog.New(oplog.DefaultSize),
		Log:     zap.NewNop().Sugar(),
		Start:   time.Now(),
		Version: "test",
	}
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func addSource(t *testing.T, d *Deps, name, path string) string {
	t.Helper()
	payload, err := handleAddSource(context.Background(), d, args{m: map[string]any{
		"name": name, "path": path,
	}})
	require.NoError(t, err)
	return payload.SourceID
}

// S1: load and describe, then reconnect.
func TestAddSourceAndReconnect(t *testing.T) {
	d := testDeps(t)
	path := writeCSV(t, "name,value\nAlice,100\nBob,200\nCarol,150\n")

	payload, err := handleAddSource(context.Background(), d, args{m: map[string]any{
		"name": "t", "path": path, "detail": "compact",
	}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(payload.SourceID, "src-"))
	assert.Equal(t, "Loaded", payload.Message)
	require.Len(t, payload.Tables, 1)
	assert.Equal(t, 3, payload.Tables[0].RowCount)
	require.Len(t, payload.Tables[0].Columns, 2)
	assert.Equal(t, "name", payload.Tables[0].Columns[0].Name)
	assert.Equal(t, core.TypeCategorical, payload.Tables[0].Columns[0].Type)
	assert.Equal(t, core.TypeNumeric, payload.Tables[0].Columns[1].Type)
	// Compact detail omits the profile.
	assert.Nil(t, payload.Tables[0].Columns[1].Stats)

	again, err := handleAddSource(context.Background(), d, args{m: map[string]any{
		"name": "t", "path": path,
	}})
	require.NoError(t, err)
	assert.Equal(t, "Reconnected", again.Message)
	assert.Equal(t, payload.SourceID, again.SourceID)
}

func TestAddSourceTypeInference(t *testing.T) {
	typ, err := resolveSourceType("", core.SourceConfig{DSN: "user:pass@/db"})
	require.NoError(t, err)
	assert.Equal(t, core.SourceMySQL, typ)

	_, err = resolveSourceType("", core.SourceConfig{Path: "/no/such/place.csv"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Path not found")

	_, err = resolveSourceType("oracle", core.SourceConfig{Path: "x.csv"})
	require.Error(t, err)
}

// S2: safe SQL, result caching, and the cache round-trip.
func TestQuerySourceCachesResult(t *testing.T) {
	d := testDeps(t)
	path := writeCSV(t, "name,value\nAlice,100\nBob,200\nCarol,150\n")
	addSource(t, d, "t", path)

	payload, err := handleQuerySQL(context.Background(), d, args{m: map[string]any{
		"sourceId": "t", "sql": "SELECT name, value FROM data",
	}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(payload.ResultID, "qr-"))
	assert.False(t, payload.Truncated)
	require.Len(t, payload.Rows, 3)
	assert.Equal(t, "Alice", payload.Rows[0]["name"])
	assert.Equal(t, 100.0, payload.Rows[0]["value"])

	entry, ok := d.Results.Get(payload.ResultID)
	require.True(t, ok)
	assert.Equal(t, payload.Rows, entry.Value.Rows)

	_, err = handleQuerySQL(context.Background(), d, args{m: map[string]any{
		"sourceId": "t", "sql": "SELECT name FROM data; DROP TABLE data",
	}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Only SELECT")
}

func TestQueryDSLThroughHandler(t *testing.T) {
	d := testDeps(t)
	path := writeCSV(t, "region,sales\nN,100\nS,200\nN,50\n")
	addSource(t, d, "t", path)

	payload, err := handleQueryDSL(context.Background(), d, args{m: map[string]any{
		"sourceId": "t",
		"table":    "data",
		"query": map[string]any{
			"select":  []any{"region", map[string]any{"field": "sales", "aggregate": "sum", "as": "total"}},
			"groupBy": []any{"region"},
			"orderBy": []any{map[string]any{"field": "total", "direction": "desc"}},
		},
	}})
	require.NoError(t, err)
	require.Len(t, payload.Rows, 2)
	assert.Equal(t, "S", payload.Rows[0]["region"])
	assert.Equal(t, 200.0, payload.Rows[0]["total"])
	assert.Equal(t, 150.0, payload.Rows[1]["total"])
}

func TestVisualizeInlineData(t *testing.T) {
	d := testDeps(t)
	payload, err := handleVisualize(context.Background(), d, args{m: map[string]any{
		"data": []any{
			map[string]any{"region": "N", "sales": 100.0},
			map[string]any{"region": "S", "sales": 200.0},
			map[string]any{"region": "E", "sales": 150.0},
			map[string]any{"region": "W", "sales": 180.0},
		},
		"intent": "compare sales by region",
	}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(payload.SpecID, "spec-"))
	assert.Equal(t, "comparison", payload.Recommended.Category)
	assert.Equal(t, "bar", payload.Recommended.Pattern)
	assert.Equal(t, 4, payload.DataShape.RowCount)
	assert.Equal(t, "comparison", payload.DataShape.Intent)
	assert.Contains(t, payload.HTML, "<table>")
	assert.Contains(t, payload.HTML, "dolex-spec")

	entry, ok := d.Specs.Get(payload.SpecID)
	require.True(t, ok)
	assert.Equal(t, "bar", entry.Value.Spec.Pattern)
}

func TestVisualizeFromResultID(t *testing.T) {
	d := testDeps(t)
	path := writeCSV(t, "region,sales\nN,100\nS,200\nE,150\n")
	addSource(t, d, "t", path)

	q, err := handleQuerySQL(context.Background(), d, args{m: map[string]any{
		"sourceId": "t", "sql": "SELECT region, sales FROM data",
	}})
	require.NoError(t, err)

	payload, err := handleVisualize(context.Background(), d, args{m: map[string]any{
		"resultId": q.ResultID,
		"intent":   "compare sales by region",
	}})
	require.NoError(t, err)
	assert.Equal(t, q.ResultID, payload.ResultID)

	_, err = handleVisualize(context.Background(), d, args{m: map[string]any{
		"resultId": "qr-00000000",
		"intent":   "compare",
	}})
	require.Error(t, err)
}

func TestRefineVisualization(t *testing.T) {
	d := testDeps(t)
	vis, err := handleVisualize(context.Background(), d, args{m: map[string]any{
		"data": []any{
			map[string]any{"step": "b", "amount": 1.0},
			map[string]any{"step": "a", "amount": 3.0},
			map[string]any{"step": "c", "amount": 2.0},
		},
		"intent": "compare amounts",
	}})
	require.NoError(t, err)

	refined, err := handleRefine(d, args{m: map[string]any{
		"specId": vis.SpecID,
		"sortBy": "amount", "sortDirection": "desc",
		"palette": "diverging",
	}})
	require.NoError(t, err)
	assert.NotEqual(t, vis.SpecID, refined.SpecID)
	assert.NotEmpty(t, refined.Changes)

	entry, ok := d.Specs.Get(refined.SpecID)
	require.True(t, ok)
	assert.Equal(t, 3.0, entry.Value.Spec.Data[0]["amount"])
	assert.Equal(t, "diverging", entry.Value.Spec.Config["palette"])

	// The original spec is untouched.
	orig, ok := d.Specs.Get(vis.SpecID)
	require.True(t, ok)
	assert.NotEqual(t, 3.0, orig.Value.Spec.Data[0]["amount"])

	_, err = handleRefine(d, args{m: map[string]any{"specId": "spec-00000000", "sortBy": "x"}})
	require.Error(t, err)
}

// S4 driven through the tool handlers.
func TestTransformPromoteShadowDropCycle(t *testing.T) {
	d := testDeps(t)
	ctx := context.Background()
	path := writeCSV(t, "name,score\nAlice,80\nBob,90\n")
	addSource(t, d, "t", path)

	_, err := handleTransform(ctx, d, args{m: map[string]any{
		"sourceId": "t", "table": "data", "create": "extra", "expr": "score + 1",
	}})
	require.NoError(t, err)

	promo, err := handlePromote(ctx, d, args{m: map[string]any{
		"sourceId": "t", "table": "data", "columns": []any{"extra"},
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"extra"}, promo.Promoted)

	_, err = handleTransform(ctx, d, args{m: map[string]any{
		"sourceId": "t", "table": "data", "create": "extra", "expr": "score + 100",
	}})
	require.NoError(t, err)

	drop, err := handleDrop(ctx, d, args{m: map[string]any{
		"sourceId": "t", "table": "data", "columns": []any{"extra"}, "layer": "working",
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"extra"}, drop.Dropped)
	assert.Equal(t, []string{"extra"}, drop.Restored)

	list, err := handleListTransforms(ctx, d, args{m: map[string]any{
		"sourceId": "t", "table": "data", "layer": "derived",
	}})
	require.NoError(t, err)
	require.Len(t, list.Transforms, 1)
	assert.Equal(t, "score + 1", list.Transforms[0].Expr)
	assert.Zero(t, list.Working)
}

func TestTrackRecordsOperations(t *testing.T) {
	d := testDeps(t)
	d.track("query_source", time.Now(), nil)
	d.track("add_source", time.Now(), &core.ValidationError{Entity: "source", Message: "x"})

	tail := d.Ops.Tail()
	require.Len(t, tail, 2)
	assert.True(t, tail[0].OK)
	assert.False(t, tail[1].OK)
	// Sanitized: the entity only, no message content.
	assert.Equal(t, "validation: source", tail[1].Error)
}
