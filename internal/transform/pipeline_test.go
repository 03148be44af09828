package transform

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"dolex/internal/columns"
	"dolex/internal/core"
)

func stagingTable(t *testing.T) (*sql.DB, *columns.Manager) {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`CREATE TABLE scores (name TEXT, score TEXT)`)
	require.NoError(t, err)
	for _, row := range [][2]string{{"Alice", "80"}, {"Bob", "90"}, {"Carol", "70"}} {
		_, err = db.Exec(`INSERT INTO scores VALUES (?, ?)`, row[0], row[1])
		require.NoError(t, err)
	}
	return db, columns.New(db, "scores")
}

func newPipeline(t *testing.T, db *sql.DB, cols *columns.Manager) (*Pipeline, *Metadata) {
	t.Helper()
	meta := NewMetadata()
	manifest := filepath.Join(t.TempDir(), "scores.dolex.json")
	p := NewPipeline(cols, meta, "scores", manifest, []string{"name", "score"})
	return p, meta
}

func TestApplyCreatesWorkingColumn(t *testing.T) {
	ctx := context.Background()
	db, cols := stagingTable(t)
	p, meta := newPipeline(t, db, cols)

	results, err := p.Apply(ctx, []Spec{{Create: "extra", Expr: "score + 1"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "created", results[0].Action)
	assert.Equal(t, core.TypeNumeric, results[0].Type)

	vals, err := cols.ReadColumn(ctx, "extra")
	require.NoError(t, err)
	assert.Equal(t, []any{81.0, 91.0, 71.0}, vals)

	require.NotNil(t, meta.Get("scores", "extra", core.LayerWorking))
	assert.Nil(t, meta.Get("scores", "extra", core.LayerDerived))
}

func TestApplyRejectsBadNames(t *testing.T) {
	ctx := context.Background()
	db, cols := stagingTable(t)
	p, _ := newPipeline(t, db, cols)

	for _, name := range []string{"", "has space", "1digit", "dot.ted", "score"} {
		_, err := p.Apply(ctx, []Spec{{Create: name, Expr: "score + 1"}})
		require.Error(t, err, "name %q", name)
	}
}

func TestApplySuggestsColumnName(t *testing.T) {
	ctx := context.Background()
	db, cols := stagingTable(t)
	p, _ := newPipeline(t, db, cols)

	_, err := p.Apply(ctx, []Spec{{Create: "extra", Expr: "scroe + 1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did you mean")
	assert.Contains(t, err.Error(), "score")
}

func TestShadowAndRestore(t *testing.T) {
	ctx := context.Background()
	db, cols := stagingTable(t)
	p, meta := newPipeline(t, db, cols)

	// working -> derived.
	_, err := p.Apply(ctx, []Spec{{Create: "extra", Expr: "score + 1"}})
	require.NoError(t, err)
	promoted, err := p.Promote(ctx, []string{"extra"})
	require.NoError(t, err)
	assert.Equal(t, []string{"extra"}, promoted)
	require.NotNil(t, meta.Get("scores", "extra", core.LayerDerived))
	require.Nil(t, meta.Get("scores", "extra", core.LayerWorking))

	// New transform with the same name shadows the derived record.
	results, err := p.Apply(ctx, []Spec{{Create: "extra", Expr: "score + 100"}})
	require.NoError(t, err)
	assert.Equal(t, "shadowed", results[0].Action)
	require.NotNil(t, meta.Get("scores", "extra", core.LayerWorking))
	require.NotNil(t, meta.Get("scores", "extra", core.LayerDerived))

	vals, err := cols.ReadColumn(ctx, "extra")
	require.NoError(t, err)
	assert.Equal(t, []any{180.0, 190.0, 170.0}, vals)

	// Dropping the shadow restores the derived values.
	res, err := p.Drop(ctx, []string{"extra"}, core.LayerWorking)
	require.NoError(t, err)
	assert.Equal(t, []string{"extra"}, res.Dropped)
	assert.Equal(t, []string{"extra"}, res.Restored)

	vals, err = cols.ReadColumn(ctx, "extra")
	require.NoError(t, err)
	assert.Equal(t, []any{81.0, 91.0, 71.0}, vals)

	derived := meta.Get("scores", "extra", core.LayerDerived)
	require.NotNil(t, derived)
	assert.Equal(t, "score + 1", derived.Expr)
	assert.Nil(t, meta.Get("scores", "extra", core.LayerWorking))
}

func TestCircularDependencyLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	db, cols := stagingTable(t)
	p, meta := newPipeline(t, db, cols)

	_, err := p.Apply(ctx, []Spec{{Create: "b", Expr: "score + 1"}})
	require.NoError(t, err)
	_, err = p.Promote(ctx, []string{"b"})
	require.NoError(t, err)

	// Rewire b to reference a not-yet-existing column a, then try to
	// create a from b: the second step closes the cycle.
	meta.Get("scores", "b", core.LayerDerived).Expr = "a + 1"
	_, err = p.Apply(ctx, []Spec{{Create: "a", Expr: "b + 1"}})
	require.Error(t, err)
	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "a -> b -> a")

	// No column a was created and no record kept.
	names, err := cols.Names(ctx)
	require.NoError(t, err)
	assert.NotContains(t, names, "a")
	assert.Nil(t, meta.Get("scores", "a", core.LayerWorking))
}

func TestBatchRollbackRestoresPriorState(t *testing.T) {
	ctx := context.Background()
	db, cols := stagingTable(t)
	p, meta := newPipeline(t, db, cols)

	before, err := cols.ReadAll(ctx)
	require.NoError(t, err)

	// First spec succeeds, second fails on an unknown column: the batch
	// must roll back completely.
	_, err = p.Apply(ctx, []Spec{
		{Create: "good", Expr: "score * 2"},
		{Create: "bad", Expr: "nonexistent + 1"},
	})
	require.Error(t, err)

	after, err := cols.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	names, err := cols.Names(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "score"}, names)
	assert.Empty(t, meta.List("scores", ""))
}

func TestDropDerivedRejectsWithDependents(t *testing.T) {
	ctx := context.Background()
	db, cols := stagingTable(t)
	p, _ := newPipeline(t, db, cols)

	_, err := p.Apply(ctx, []Spec{{Create: "double", Expr: "score * 2"}})
	require.NoError(t, err)
	_, err = p.Promote(ctx, []string{"double"})
	require.NoError(t, err)
	_, err = p.Apply(ctx, []Spec{{Create: "quad", Expr: "double * 2"}})
	require.NoError(t, err)
	_, err = p.Promote(ctx, []string{"quad"})
	require.NoError(t, err)

	_, err = p.Drop(ctx, []string{"double"}, core.LayerDerived)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quad")

	// Dropping the dependent first unblocks it.
	_, err = p.Drop(ctx, []string{"quad"}, core.LayerDerived)
	require.NoError(t, err)
	_, err = p.Drop(ctx, []string{"double"}, core.LayerDerived)
	require.NoError(t, err)
}

func TestDropRejectsSourceColumns(t *testing.T) {
	ctx := context.Background()
	db, cols := stagingTable(t)
	p, _ := newPipeline(t, db, cols)

	_, err := p.Drop(ctx, []string{"score"}, core.LayerWorking)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source columns")
}

func TestManifestReplayEquivalence(t *testing.T) {
	ctx := context.Background()
	manifestDir := t.TempDir()
	manifest := filepath.Join(manifestDir, "scores.dolex.json")

	// Session one: create, promote, snapshot the derived values.
	db1, cols1 := stagingTable(t)
	meta1 := NewMetadata()
	p1 := NewPipeline(cols1, meta1, "scores", manifest, []string{"name", "score"})
	_, err := p1.Apply(ctx, []Spec{
		{Create: "bonus", Expr: "score * 0.1"},
		{Create: "total", Expr: "score + bonus"},
	})
	require.NoError(t, err)
	_, err = p1.Promote(ctx, []string{"bonus", "total"})
	require.NoError(t, err)
	want, err := cols1.ReadAll(ctx)
	require.NoError(t, err)
	_ = db1.Close()

	// Session two: fresh staging, load the manifest, replay.
	db2, cols2 := stagingTable(t)
	meta2, err := LoadManifest(manifest)
	require.NoError(t, err)
	p2 := NewPipeline(cols2, meta2, "scores", manifest, []string{"name", "score"})
	warnings := p2.Replay(ctx)
	assert.Empty(t, warnings)

	got, err := cols2.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	_ = db2.Close()
}

func TestReplaySkipsBrokenColumnAndDependents(t *testing.T) {
	ctx := context.Background()
	manifest := filepath.Join(t.TempDir(), "scores.dolex.json")

	db, cols := stagingTable(t)
	meta := NewMetadata()
	require.NoError(t, meta.Add(rec("scores", "broken", "missing_column + 1", core.LayerDerived)))
	require.NoError(t, meta.Add(rec("scores", "child", "broken * 2", core.LayerDerived)))
	require.NoError(t, meta.Add(rec("scores", "fine", "score + 1", core.LayerDerived)))

	p := NewPipeline(cols, meta, "scores", manifest, []string{"name", "score"})
	warnings := p.Replay(ctx)
	require.Len(t, warnings, 2)

	names, err := cols.Names(ctx)
	require.NoError(t, err)
	assert.Contains(t, names, "fine")
	assert.NotContains(t, names, "broken")
	assert.NotContains(t, names, "child")
	_ = db.Close()
}

func TestWriteManifestAtomicAndFiltered(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "data.dolex.json")
	m := NewMetadata()
	require.NoError(t, m.Add(rec("t", "keep", "x + 1", core.LayerDerived)))
	require.NoError(t, m.Add(rec("t", "ephemeral", "x + 2", core.LayerWorking)))

	require.NoError(t, WriteManifest(manifest, m))

	loaded, err := LoadManifest(manifest)
	require.NoError(t, err)
	assert.NotNil(t, loaded.Get("t", "keep", core.LayerDerived))
	// The working layer is never persisted.
	assert.Nil(t, loaded.Get("t", "ephemeral", core.LayerWorking))
}

func TestManifestPath(t *testing.T) {
	assert.Equal(t, "/data/sales.dolex.json", ManifestPath("/data/sales.csv"))
	assert.Equal(t, "/data/db.dolex.json", ManifestPath("/data/db.sqlite"))
}
