// Package tests holds end-to-end scenarios wiring the source manager, DSL
// executor, transform pipeline, and pattern selector together the way the
// tool surface does.
package tests

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "dolex/internal/connect/csv"
	_ "dolex/internal/connect/sqlite"
	"dolex/internal/core"
	"dolex/internal/dsl"
	"dolex/internal/infer"
	"dolex/internal/patterns"
	"dolex/internal/source"
	"dolex/internal/store"
	"dolex/internal/transform"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// Load, query, cache, transform, promote, reopen, replay: the whole source
// lifecycle over one CSV file.
func TestSourceLifecycleWithManifestReplay(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := writeFile(t, dir, "scores.csv", "name,score\nAlice,80\nBob,90\nCarol,70\n")

	mgr := source.NewManager(source.Options{})
	res, err := mgr.Add(ctx, "scores", core.SourceCSV, core.SourceConfig{Path: path})
	require.NoError(t, err)

	p, meta, err := mgr.Pipeline(ctx, "scores", "scores")
	require.NoError(t, err)
	_, err = p.Apply(ctx, []transform.Spec{{Create: "curved", Expr: "score + 5"}})
	require.NoError(t, err)
	_, err = p.Promote(ctx, []string{"curved"})
	require.NoError(t, err)
	require.Len(t, meta.List("scores", core.LayerDerived), 1)

	// The manifest landed next to the CSV.
	manifest := strings.TrimSuffix(path, ".csv") + transform.ManifestSuffix
	_, err = os.Stat(manifest)
	require.NoError(t, err)

	queryRes, err := mgr.QuerySQL(ctx, "scores", "SELECT name, curved FROM scores ORDER BY curved", 0)
	require.NoError(t, err)
	require.Len(t, queryRes.Rows, 3)
	assert.Equal(t, 75.0, queryRes.Rows[0]["curved"])
	mgr.Shutdown()

	// A new process reopens the source: the derived column replays.
	mgr2 := source.NewManager(source.Options{})
	defer mgr2.Shutdown()
	res2, err := mgr2.Add(ctx, "scores", core.SourceCSV, core.SourceConfig{Path: path})
	require.NoError(t, err)
	assert.Equal(t, res.Source.ID, res2.Source.ID)
	assert.Empty(t, res2.ReplayNotes)

	queryRes, err = mgr2.QuerySQL(ctx, "scores", "SELECT name, curved FROM scores ORDER BY curved", 0)
	require.NoError(t, err)
	assert.Equal(t, 75.0, queryRes.Rows[0]["curved"])
}

// S5: a circular dependency is rejected with the offending path and leaves
// the table untouched.
func TestCircularDependencyScenario(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "data.csv", "a_base\n1\n2\n")

	mgr := source.NewManager(source.Options{})
	defer mgr.Shutdown()
	_, err := mgr.Add(ctx, "d", core.SourceCSV, core.SourceConfig{Path: filepath.Join(dir, "data.csv")})
	require.NoError(t, err)

	p, _, err := mgr.Pipeline(ctx, "d", "data")
	require.NoError(t, err)
	_, err = p.Apply(ctx, []transform.Spec{{Create: "b", Expr: "a + 1"}})
	require.Error(t, err) // a does not exist yet

	_, err = p.Apply(ctx, []transform.Spec{{Create: "b", Expr: "a_base + 1"}})
	require.NoError(t, err)
	_, err = p.Promote(ctx, []string{"b"})
	require.NoError(t, err)

	mgr.InvalidateSchema("d")
	schemaBefore, err := mgr.Schema(ctx, "d")
	require.NoError(t, err)
	colsBefore := schemaBefore.FindTable("data").ColumnNames()

	// Rewire b's derived record to reference a, then try to create a from
	// b: the metadata check rejects the cycle a -> b -> a.
	_, meta, err := mgr.Pipeline(ctx, "d", "data")
	require.NoError(t, err)
	meta.Get("data", "b", core.LayerDerived).Expr = "a + 1"
	p2, _, err := mgr.Pipeline(ctx, "d", "data")
	require.NoError(t, err)
	_, err = p2.Apply(ctx, []transform.Spec{{Create: "a", Expr: "b + 1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a -> b -> a")

	mgr.InvalidateSchema("d")
	schemaAfter, err := mgr.Schema(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, colsBefore, schemaAfter.FindTable("data").ColumnNames())
}

// A query result feeds the selector; FIFO stores mint resolvable handles.
func TestQueryToVisualizationFlow(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "sales.csv", "region,sales\nN,100\nS,200\nE,150\nW,180\n")

	mgr := source.NewManager(source.Options{})
	defer mgr.Shutdown()
	_, err := mgr.Add(ctx, "sales", core.SourceCSV, core.SourceConfig{Path: filepath.Join(dir, "sales.csv")})
	require.NoError(t, err)

	exec := dsl.NewExecutor(mgr, 0)
	q := &dsl.Query{
		Select: []dsl.SelectItem{
			{Field: "region"},
			{Field: "sales", Aggregate: "sum", As: "total"},
		},
		GroupBy: []dsl.GroupItem{{Field: "region"}},
		OrderBy: []dsl.OrderItem{{Field: "total", Direction: "desc"}},
	}
	res, err := exec.Execute(ctx, "sales", "sales", q)
	require.NoError(t, err)
	require.Len(t, res.Rows, 4)

	results := store.New[*core.QueryResult]("qr", 20)
	resultID := results.Put(res)
	assert.True(t, strings.HasPrefix(resultID, "qr-"))

	entry, ok := results.Get(resultID)
	require.True(t, ok)

	cols := infer.FromRows(entry.Value.Rows)
	sel, err := patterns.Select(entry.Value.Rows, cols, "compare sales by region", patterns.Options{})
	require.NoError(t, err)
	assert.Equal(t, patterns.Comparison, sel.Recommended.Pattern.Category)

	specs := store.New[*core.VisualizationSpec]("spec", 20)
	specID := specs.Put(sel.Recommended.Spec)
	assert.True(t, strings.HasPrefix(specID, "spec-"))
}

// SQLite files work through the same manager polymorphically.
func TestSQLiteSourceRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	csvPath := writeFile(t, dir, "seed.csv", "id,label\n1,alpha\n2,beta\n")

	// Build a SQLite file by staging a CSV and dumping it back out via
	// the sqlite driver would be circular; instead create the database
	// directly.
	dbPath := filepath.Join(dir, "data.sqlite")
	createSQLiteFixture(t, dbPath)

	mgr := source.NewManager(source.Options{})
	defer mgr.Shutdown()

	_, err := mgr.Add(ctx, "csv-side", core.SourceCSV, core.SourceConfig{Path: csvPath})
	require.NoError(t, err)
	_, err = mgr.Add(ctx, "db-side", core.SourceSQLite, core.SourceConfig{Path: dbPath})
	require.NoError(t, err)

	schema, err := mgr.Schema(ctx, "db-side")
	require.NoError(t, err)
	table := schema.FindTable("events")
	require.NotNil(t, table)
	assert.Equal(t, 3, table.RowCount)

	res, err := mgr.QuerySQL(ctx, "db-side", "SELECT kind, amount FROM events ORDER BY amount", 0)
	require.NoError(t, err)
	require.Len(t, res.Rows, 3)
	assert.Equal(t, 5.0, res.Rows[0]["amount"])

	// Transforms are rejected for read-only sources.
	_, _, err = mgr.Pipeline(ctx, "db-side", "events")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only")
}
