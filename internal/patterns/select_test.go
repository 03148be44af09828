package patterns

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dolex/internal/core"
	"dolex/internal/infer"
)

func regionSales() ([]core.Row, []*core.DataColumn) {
	rows := []core.Row{
		{"region": "N", "sales": 100.0},
		{"region": "S", "sales": 200.0},
		{"region": "E", "sales": 150.0},
		{"region": "W", "sales": 180.0},
	}
	return rows, infer.FromRows(rows)
}

func TestRegistryHolds43Patterns(t *testing.T) {
	all := All()
	assert.Len(t, all, 43)

	seen := make(map[string]bool)
	for _, p := range all {
		require.NotEmpty(t, p.ID)
		require.False(t, seen[p.ID], p.ID)
		seen[p.ID] = true
		require.NotNil(t, p.GenerateSpec, p.ID)
		require.NotEmpty(t, p.Rules, p.ID)
	}
}

func TestParseIntent(t *testing.T) {
	intent, scores := ParseIntent("compare sales by region")
	assert.Equal(t, "comparison", intent)
	assert.Positive(t, scores["comparison"])

	intent, _ = ParseIntent("show the trend of revenue over time")
	assert.Equal(t, "time", intent)

	intent, _ = ParseIntent("distribution of ages with outliers")
	assert.Equal(t, "distribution", intent)

	intent, _ = ParseIntent("share of budget per department")
	assert.Equal(t, "composition", intent)

	intent, _ = ParseIntent("correlation of height against weight")
	assert.Equal(t, "relationship", intent)

	intent, _ = ParseIntent("conversion funnel drop-off by stage")
	assert.Equal(t, "flow", intent)

	intent, scores = ParseIntent("zzz")
	assert.Equal(t, "unknown", intent)
	for _, v := range scores {
		assert.Zero(t, v)
	}
}

func TestBuildContext(t *testing.T) {
	rows, cols := regionSales()
	ctx := BuildContext(rows, cols, "compare")
	assert.Equal(t, 4, ctx.RowCount)
	assert.Equal(t, 1, ctx.NumericCols)
	assert.Equal(t, 1, ctx.CategoricalCols)
	assert.Equal(t, 4, ctx.CategoryCount)
	assert.Equal(t, 4, ctx.SeriesCount)
	assert.False(t, ctx.HasTimeSeries)
	assert.False(t, ctx.HasNegative)
	assert.Equal(t, 100.0, ctx.ValueRange)

	negRows := []core.Row{{"delta": -5.0, "step": "a"}, {"delta": 3.0, "step": "b"}}
	ctx = BuildContext(negRows, infer.FromRows(negRows), "")
	assert.True(t, ctx.HasNegative)
}

// S6: comparison data and intent recommend a comparison pattern.
func TestSelectComparison(t *testing.T) {
	rows, cols := regionSales()
	sel, err := Select(rows, cols, "compare sales by region", Options{})
	require.NoError(t, err)
	require.NotNil(t, sel.Recommended)
	assert.Equal(t, Comparison, sel.Recommended.Pattern.Category)
	assert.Equal(t, "bar", sel.Recommended.Pattern.ID)
	assert.Equal(t, "comparison", sel.Intent)
	assert.NotEmpty(t, sel.Recommended.Reasoning)

	for _, alt := range sel.Alternatives {
		assert.NotEqual(t, sel.Recommended.Pattern.ID, alt.Pattern.ID)
		assert.Positive(t, alt.Score)
		assert.NotNil(t, alt.Spec)
	}
}

func TestSelectDeterministic(t *testing.T) {
	rows, cols := regionSales()
	first, err := Select(rows, cols, "compare sales by region", Options{})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Select(rows, cols, "compare sales by region", Options{})
		require.NoError(t, err)
		assert.Equal(t, first.Recommended.Pattern.ID, again.Recommended.Pattern.ID)
		require.Equal(t, len(first.Alternatives), len(again.Alternatives))
		for j := range first.Alternatives {
			assert.Equal(t, first.Alternatives[j].Pattern.ID, again.Alternatives[j].Pattern.ID)
		}
	}
}

func TestGenerateSpecDoesNotMutateInput(t *testing.T) {
	rows := []core.Row{
		{"state": "CA", "population": 39.0},
		{"state": "TX", "population": 30.0},
		{"state": "NY", "population": 19.0},
	}
	cols := infer.FromRows(rows)

	for _, p := range All() {
		spec, err := p.GenerateSpec(SpecInput{Data: rows, Columns: cols})
		if err != nil {
			continue
		}
		require.NotNil(t, spec)
		// The generator may normalize its copy, never the input.
		assert.Equal(t, "CA", rows[0]["state"], p.ID)
		assert.Equal(t, 39.0, rows[0]["population"], p.ID)
	}
}

func TestChoroplethExpandsStateAbbreviations(t *testing.T) {
	rows := []core.Row{
		{"state": "CA", "population": 39.0},
		{"state": "TX", "population": 30.0},
		{"state": "Oregon", "population": 4.2},
	}
	cols := infer.FromRows(rows)
	p, ok := Lookup("choropleth")
	require.True(t, ok)

	spec, err := p.GenerateSpec(SpecInput{Data: rows, Columns: cols})
	require.NoError(t, err)
	assert.Equal(t, "California", spec.Data[0]["state"])
	assert.Equal(t, "Texas", spec.Data[1]["state"])
	assert.Equal(t, "Oregon", spec.Data[2]["state"])
	// The input keeps its abbreviations.
	assert.Equal(t, "CA", rows[0]["state"])
}

func TestForcePatternFallback(t *testing.T) {
	// This data has no geographic column name and no state values, so
	// forcing choropleth must fall back with a note.
	rows := []core.Row{
		{"category": "a", "amount": 1.0},
		{"category": "b", "amount": 2.0},
		{"category": "c", "amount": 3.0},
	}
	cols := infer.FromRows(rows)

	sel, err := Select(rows, cols, "compare amounts", Options{ForcePattern: "choropleth"})
	require.NoError(t, err)
	assert.NotEqual(t, "choropleth", sel.Recommended.Pattern.ID)
	require.NotEmpty(t, sel.Notes)
	assert.Contains(t, sel.Notes[0], "choropleth")

	sel, err = Select(rows, cols, "compare amounts", Options{ForcePattern: "no_such_pattern"})
	require.NoError(t, err)
	require.NotEmpty(t, sel.Notes)
	assert.Contains(t, sel.Notes[0], "unknown pattern")
}

func TestForcePatternPromotes(t *testing.T) {
	rows, cols := regionSales()
	sel, err := Select(rows, cols, "compare sales by region", Options{ForcePattern: "lollipop"})
	require.NoError(t, err)
	assert.Equal(t, "lollipop", sel.Recommended.Pattern.ID)
	assert.Contains(t, sel.Recommended.Reasoning, "explicitly requested")
}

func TestFilterCategoriesAndExcludes(t *testing.T) {
	rows, cols := regionSales()

	sel, err := Select(rows, cols, "compare sales by region", Options{FilterCategories: []string{"composition"}})
	require.NoError(t, err)
	assert.Equal(t, Composition, sel.Recommended.Pattern.Category)

	sel, err = Select(rows, cols, "compare sales by region", Options{ExcludePatterns: []string{"bar"}})
	require.NoError(t, err)
	assert.NotEqual(t, "bar", sel.Recommended.Pattern.ID)
}

func TestQuickRecommendNeverFails(t *testing.T) {
	assert.NotEmpty(t, QuickRecommend(nil, nil, ""))
	rows, cols := regionSales()
	assert.Equal(t, "bar", QuickRecommend(rows, cols, "compare sales by region"))
}

func TestCompatibleGatesRequirements(t *testing.T) {
	bar, ok := Lookup("bar")
	require.True(t, ok)

	ctx := &MatchContext{RowCount: 4, NumericCols: 1, CategoricalCols: 1, CategoryCount: 4}
	assert.True(t, bar.Compatible(ctx))

	// No numeric column.
	assert.False(t, bar.Compatible(&MatchContext{RowCount: 4, CategoricalCols: 1, CategoryCount: 4}))
	// Row count beyond twice the stated maximum.
	assert.False(t, bar.Compatible(&MatchContext{RowCount: 500, NumericCols: 1, CategoricalCols: 1, CategoryCount: 4}))
	// Time-series requirement.
	line, ok := Lookup("line")
	require.True(t, ok)
	assert.False(t, line.Compatible(&MatchContext{RowCount: 10, NumericCols: 1}))
	assert.True(t, line.Compatible(&MatchContext{RowCount: 10, NumericCols: 1, HasTimeSeries: true}))
}
