package patterns

import "dolex/internal/core"

// Time patterns: change over an ordered axis.

func init() {
	register(&Pattern{
		ID:          "line",
		Name:        "Line Chart",
		Category:    Time,
		Description: "A single series over time.",
		BestFor:     "Trends of one measure.",
		NotFor:      "Unordered categories.",
		Requirements: DataRequirements{
			MinRows: 3, MinNumeric: 1,
			RequiresTimeSeries: true,
		},
		Rules: []Rule{
			{Condition: "time series present", Weight: 3, Matches: func(c *MatchContext) bool { return c.HasTimeSeries }},
			{Condition: "single series", Weight: 2, Matches: func(c *MatchContext) bool { return c.SeriesCount <= 1 }},
			{Condition: "trend intent", Weight: 2, Matches: func(c *MatchContext) bool { return containsAny(c.Intent, "trend", "over time", "growth") }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			x, y := firstTemporal(in.Columns), firstNumeric(in.Columns)
			if err := need("x", x); err != nil {
				return nil, err
			}
			if err := need("y", y); err != nil {
				return nil, err
			}
			return buildSpec("line", in.Title, in, map[string]string{"x": x, "y": y}, nil), nil
		},
	})

	register(&Pattern{
		ID:          "multi_line",
		Name:        "Multi-Line Chart",
		Category:    Time,
		Description: "One line per category over time.",
		BestFor:     "Comparing a few series' trends.",
		NotFor:      "More than ~8 series (spaghetti).",
		Requirements: DataRequirements{
			MinRows: 6, MinNumeric: 1, MinCategorical: 1,
			RequiresTimeSeries: true,
			MaxCategories:      16,
		},
		Rules: []Rule{
			{Condition: "a few series", Weight: 3, Matches: func(c *MatchContext) bool { return c.SeriesCount >= 2 && c.SeriesCount <= 8 }},
			{Condition: "time series present", Weight: 2, Matches: func(c *MatchContext) bool { return c.HasTimeSeries }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			x, series, y := firstTemporal(in.Columns), firstCategorical(in.Columns), firstNumeric(in.Columns)
			if err := need("x", x); err != nil {
				return nil, err
			}
			if err := need("series", series); err != nil {
				return nil, err
			}
			if err := need("y", y); err != nil {
				return nil, err
			}
			return buildSpec("multi_line", in.Title, in, map[string]string{"x": x, "y": y, "color": series}, nil), nil
		},
	})

	register(&Pattern{
		ID:          "area",
		Name:        "Area Chart",
		Category:    Time,
		Description: "A filled line emphasizing cumulative magnitude.",
		BestFor:     "Volume over time.",
		NotFor:      "Series crossing zero.",
		Requirements: DataRequirements{
			MinRows: 3, MinNumeric: 1,
			RequiresTimeSeries: true,
		},
		Rules: []Rule{
			{Condition: "non-negative values", Weight: 2, Matches: func(c *MatchContext) bool { return !c.HasNegative }},
			{Condition: "volume intent", Weight: 1, Matches: func(c *MatchContext) bool { return containsAny(c.Intent, "volume", "total", "cumulative") }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			x, y := firstTemporal(in.Columns), firstNumeric(in.Columns)
			if err := need("x", x); err != nil {
				return nil, err
			}
			if err := need("y", y); err != nil {
				return nil, err
			}
			return buildSpec("area", in.Title, in, map[string]string{"x": x, "y": y}, nil), nil
		},
	})

	register(&Pattern{
		ID:          "stacked_area",
		Name:        "Stacked Area Chart",
		Category:    Time,
		Description: "Series stacked over time showing total and parts.",
		BestFor:     "Totals and their breakdown over time.",
		NotFor:      "Reading individual middle series.",
		Requirements: DataRequirements{
			MinRows: 6, MinNumeric: 1, MinCategorical: 1,
			RequiresTimeSeries: true,
			MaxCategories:      10,
		},
		Rules: []Rule{
			{Condition: "series over time", Weight: 3, Matches: func(c *MatchContext) bool { return c.HasTimeSeries && c.SeriesCount >= 2 }},
			{Condition: "non-negative values", Weight: 1, Matches: func(c *MatchContext) bool { return !c.HasNegative }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			x, series, y := firstTemporal(in.Columns), firstCategorical(in.Columns), firstNumeric(in.Columns)
			if err := need("x", x); err != nil {
				return nil, err
			}
			if err := need("series", series); err != nil {
				return nil, err
			}
			if err := need("y", y); err != nil {
				return nil, err
			}
			return buildSpec("stacked_area", in.Title, in, map[string]string{"x": x, "y": y, "color": series}, map[string]any{"stacked": true}), nil
		},
	})

	register(&Pattern{
		ID:          "stream_graph",
		Name:        "Stream Graph",
		Category:    Time,
		Description: "A stacked area flowing around a central baseline.",
		BestFor:     "Organic views of many series over long ranges.",
		NotFor:      "Exact values.",
		Requirements: DataRequirements{
			MinRows: 20, MinNumeric: 1, MinCategorical: 1,
			RequiresTimeSeries: true,
			MinCategories:      3,
		},
		Rules: []Rule{
			{Condition: "many periods", Weight: 2, Matches: func(c *MatchContext) bool { return c.RowCount >= 50 }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			x, series, y := firstTemporal(in.Columns), firstCategorical(in.Columns), firstNumeric(in.Columns)
			if err := need("x", x); err != nil {
				return nil, err
			}
			if err := need("series", series); err != nil {
				return nil, err
			}
			if err := need("y", y); err != nil {
				return nil, err
			}
			return buildSpec("stream_graph", in.Title, in, map[string]string{"x": x, "y": y, "color": series}, map[string]any{"offset": "wiggle"}), nil
		},
	})

	register(&Pattern{
		ID:          "calendar_heatmap",
		Name:        "Calendar Heatmap",
		Category:    Time,
		Description: "Daily values as colored calendar cells.",
		BestFor:     "Daily activity patterns across months.",
		NotFor:      "Non-daily granularity.",
		Requirements: DataRequirements{
			MinRows: 30, MinNumeric: 1, MinDate: 1,
			RequiresTimeSeries: true,
		},
		Rules: []Rule{
			{Condition: "daily-scale data", Weight: 3, Matches: func(c *MatchContext) bool { return c.RowCount >= 60 }},
			{Condition: "seasonality intent", Weight: 1, Matches: func(c *MatchContext) bool { return containsAny(c.Intent, "daily", "weekday", "seasonal") }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			date := columnOfType(in.Columns, core.TypeDate, 0)
			value := firstNumeric(in.Columns)
			if err := need("date", date); err != nil {
				return nil, err
			}
			if err := need("value", value); err != nil {
				return nil, err
			}
			return buildSpec("calendar_heatmap", in.Title, in, map[string]string{"x": date, "color": value}, nil), nil
		},
	})

	register(&Pattern{
		ID:          "sparkline",
		Name:        "Sparkline",
		Category:    Time,
		Description: "A tiny inline trend line without axes.",
		BestFor:     "Compact trend summaries in tables.",
		NotFor:      "Standalone analysis.",
		Requirements: DataRequirements{
			MinRows: 5, MaxRows: 200,
			MinNumeric: 1, RequiresTimeSeries: true,
		},
		Rules: []Rule{
			{Condition: "compact context", Weight: 1, Matches: func(c *MatchContext) bool { return c.RowCount <= 60 }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			x, y := firstTemporal(in.Columns), firstNumeric(in.Columns)
			if err := need("x", x); err != nil {
				return nil, err
			}
			if err := need("y", y); err != nil {
				return nil, err
			}
			return buildSpec("sparkline", in.Title, in, map[string]string{"x": x, "y": y}, map[string]any{"minimal": true}), nil
		},
	})

	register(&Pattern{
		ID:          "slope",
		Name:        "Slope Chart",
		Category:    Time,
		Description: "Two time points joined by lines per category.",
		BestFor:     "Before/after changes across categories.",
		NotFor:      "More than two periods.",
		Requirements: DataRequirements{
			MinRows: 2, MaxRows: 60,
			MinNumeric: 1, MinCategorical: 1,
		},
		Rules: []Rule{
			{Condition: "change intent", Weight: 2, Matches: func(c *MatchContext) bool { return containsAny(c.Intent, "change", "before", "after", "shift") }},
			{Condition: "few categories", Weight: 1, Matches: func(c *MatchContext) bool { return c.CategoryCount <= 20 }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			series, y := firstCategorical(in.Columns), firstNumeric(in.Columns)
			if err := need("series", series); err != nil {
				return nil, err
			}
			if err := need("y", y); err != nil {
				return nil, err
			}
			enc := map[string]string{"color": series, "y": y}
			if y2 := secondNumeric(in.Columns); y2 != "" {
				enc["y2"] = y2
			} else if x := firstTemporal(in.Columns); x != "" {
				enc["x"] = x
			}
			return buildSpec("slope", in.Title, in, enc, nil), nil
		},
	})
}
