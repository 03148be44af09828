package patterns

import "dolex/internal/core"

// Distribution patterns: the shape of a numeric variable.

func init() {
	register(&Pattern{
		ID:          "histogram",
		Name:        "Histogram",
		Category:    Distribution,
		Description: "Binned counts of a numeric variable.",
		BestFor:     "Seeing the overall shape of one numeric column.",
		NotFor:      "Small samples where bins mislead.",
		Requirements: DataRequirements{
			MinRows: 10, MinNumeric: 1,
		},
		Rules: []Rule{
			{Condition: "enough rows to bin", Weight: 3, Matches: func(c *MatchContext) bool { return c.RowCount >= 30 }},
			{Condition: "single numeric focus", Weight: 2, Matches: func(c *MatchContext) bool { return c.NumericCols == 1 }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			x := firstNumeric(in.Columns)
			if err := need("x", x); err != nil {
				return nil, err
			}
			return buildSpec("histogram", in.Title, in, map[string]string{"x": x}, map[string]any{"bins": 20}), nil
		},
	})

	register(&Pattern{
		ID:          "box_plot",
		Name:        "Box Plot",
		Category:    Distribution,
		Description: "Quartile boxes with whiskers and outliers per group.",
		BestFor:     "Comparing distributions across groups compactly.",
		NotFor:      "Audiences unfamiliar with quartiles.",
		Requirements: DataRequirements{
			MinRows: 10, MinNumeric: 1, MinCategorical: 1,
			MaxCategories: 20,
		},
		Rules: []Rule{
			{Condition: "groups to compare", Weight: 3, Matches: func(c *MatchContext) bool { return c.CategoryCount >= 2 && c.CategoryCount <= 12 }},
			{Condition: "outlier intent", Weight: 2, Matches: func(c *MatchContext) bool { return containsAny(c.Intent, "outlier", "quartile", "spread") }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			x, y := firstCategorical(in.Columns), firstNumeric(in.Columns)
			if err := need("x", x); err != nil {
				return nil, err
			}
			if err := need("y", y); err != nil {
				return nil, err
			}
			return buildSpec("box_plot", in.Title, in, map[string]string{"x": x, "y": y}, nil), nil
		},
	})

	register(&Pattern{
		ID:          "violin",
		Name:        "Violin Plot",
		Category:    Distribution,
		Description: "Mirrored density curves per group.",
		BestFor:     "Distribution shape plus summary per group.",
		NotFor:      "Few data points per group.",
		Requirements: DataRequirements{
			MinRows: 30, MinNumeric: 1, MinCategorical: 1,
			MaxCategories: 10,
		},
		Rules: []Rule{
			{Condition: "large sample per group", Weight: 2, Matches: func(c *MatchContext) bool { return c.CategoryCount > 0 && c.RowCount/max(c.CategoryCount, 1) >= 20 }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			x, y := firstCategorical(in.Columns), firstNumeric(in.Columns)
			if err := need("x", x); err != nil {
				return nil, err
			}
			if err := need("y", y); err != nil {
				return nil, err
			}
			return buildSpec("violin", in.Title, in, map[string]string{"x": x, "y": y}, nil), nil
		},
	})

	register(&Pattern{
		ID:          "density",
		Name:        "Density Plot",
		Category:    Distribution,
		Description: "A smoothed curve over a numeric variable.",
		BestFor:     "Continuous shape without bin artifacts.",
		NotFor:      "Small samples.",
		Requirements: DataRequirements{
			MinRows: 30, MinNumeric: 1,
		},
		Rules: []Rule{
			{Condition: "large continuous sample", Weight: 2, Matches: func(c *MatchContext) bool { return c.RowCount >= 100 }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			x := firstNumeric(in.Columns)
			if err := need("x", x); err != nil {
				return nil, err
			}
			return buildSpec("density", in.Title, in, map[string]string{"x": x}, nil), nil
		},
	})

	register(&Pattern{
		ID:          "strip_plot",
		Name:        "Strip Plot",
		Category:    Distribution,
		Description: "Individual points jittered along one axis per group.",
		BestFor:     "Small samples where every point matters.",
		NotFor:      "Thousands of points.",
		Requirements: DataRequirements{
			MinRows: 5, MaxRows: 500,
			MinNumeric: 1, MinCategorical: 1,
		},
		Rules: []Rule{
			{Condition: "small sample", Weight: 2, Matches: func(c *MatchContext) bool { return c.RowCount <= 200 }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			x, y := firstCategorical(in.Columns), firstNumeric(in.Columns)
			if err := need("x", x); err != nil {
				return nil, err
			}
			if err := need("y", y); err != nil {
				return nil, err
			}
			return buildSpec("strip_plot", in.Title, in, map[string]string{"x": x, "y": y}, map[string]any{"jitter": true}), nil
		},
	})

	register(&Pattern{
		ID:          "ridgeline",
		Name:        "Ridgeline Plot",
		Category:    Distribution,
		Description: "Overlapping density curves stacked per group.",
		BestFor:     "Comparing many distributions at once.",
		NotFor:      "Fewer than three groups.",
		Requirements: DataRequirements{
			MinRows: 60, MinNumeric: 1, MinCategorical: 1,
			MinCategories: 3, MaxCategories: 30,
		},
		Rules: []Rule{
			{Condition: "many groups", Weight: 3, Matches: func(c *MatchContext) bool { return c.CategoryCount >= 5 }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			group, x := firstCategorical(in.Columns), firstNumeric(in.Columns)
			if err := need("group", group); err != nil {
				return nil, err
			}
			if err := need("x", x); err != nil {
				return nil, err
			}
			return buildSpec("ridgeline", in.Title, in, map[string]string{"x": x, "y": group}, nil), nil
		},
	})

	register(&Pattern{
		ID:          "beeswarm",
		Name:        "Beeswarm Plot",
		Category:    Distribution,
		Description: "Non-overlapping dots packed along an axis.",
		BestFor:     "Small-to-medium samples with exact point placement.",
		NotFor:      "More than a few hundred points.",
		Requirements: DataRequirements{
			MinRows: 5, MaxRows: 300,
			MinNumeric: 1,
		},
		Rules: []Rule{
			{Condition: "modest point count", Weight: 2, Matches: func(c *MatchContext) bool { return c.RowCount <= 150 }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			x := firstNumeric(in.Columns)
			if err := need("x", x); err != nil {
				return nil, err
			}
			enc := map[string]string{"x": x}
			if g := firstCategorical(in.Columns); g != "" {
				enc["color"] = g
			}
			return buildSpec("beeswarm", in.Title, in, enc, nil), nil
		},
	})
}
