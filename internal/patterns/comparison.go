package patterns

import "dolex/internal/core"

// Comparison patterns: magnitudes across categories.

func init() {
	register(&Pattern{
		ID:          "bar",
		Name:        "Bar Chart",
		Category:    Comparison,
		Description: "Vertical bars comparing a value across categories.",
		BestFor:     "Comparing magnitudes across a handful of categories.",
		NotFor:      "Many categories or long labels; use horizontal_bar.",
		Requirements: DataRequirements{
			MinRows: 1, MaxRows: 100,
			MinNumeric: 1, MinCategorical: 1,
			MinCategories: 2, MaxCategories: 30,
		},
		Rules: []Rule{
			{Condition: "few categories", Weight: 3, Matches: func(c *MatchContext) bool { return c.CategoryCount >= 2 && c.CategoryCount <= 12 }},
			{Condition: "single numeric measure", Weight: 2, Matches: func(c *MatchContext) bool { return c.NumericCols == 1 }},
			{Condition: "not a time series", Weight: 1, Matches: func(c *MatchContext) bool { return !c.HasTimeSeries }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			x, y := firstCategorical(in.Columns), firstNumeric(in.Columns)
			if err := need("x", x); err != nil {
				return nil, err
			}
			if err := need("y", y); err != nil {
				return nil, err
			}
			return buildSpec("bar", in.Title, in, map[string]string{"x": x, "y": y}, nil), nil
		},
	})

	register(&Pattern{
		ID:          "grouped_bar",
		Name:        "Grouped Bar Chart",
		Category:    Comparison,
		Description: "Bars grouped by a second category for side-by-side comparison.",
		BestFor:     "Comparing a measure across two categorical dimensions.",
		NotFor:      "More than a few groups per cluster.",
		Requirements: DataRequirements{
			MinRows: 2, MaxRows: 200,
			MinNumeric: 1, MinCategorical: 2,
			MaxCategories: 20,
		},
		Rules: []Rule{
			{Condition: "two categorical dimensions", Weight: 3, Matches: func(c *MatchContext) bool { return c.CategoricalCols >= 2 }},
			{Condition: "small series count", Weight: 2, Matches: func(c *MatchContext) bool { return c.SeriesCount >= 2 && c.SeriesCount <= 6 }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			x, group, y := firstCategorical(in.Columns), secondCategorical(in.Columns), firstNumeric(in.Columns)
			if err := need("x", x); err != nil {
				return nil, err
			}
			if err := need("group", group); err != nil {
				return nil, err
			}
			if err := need("y", y); err != nil {
				return nil, err
			}
			return buildSpec("grouped_bar", in.Title, in, map[string]string{"x": x, "y": y, "color": group}, nil), nil
		},
	})

	register(&Pattern{
		ID:          "stacked_bar",
		Name:        "Stacked Bar Chart",
		Category:    Comparison,
		Description: "Bars split into stacked segments per sub-category.",
		BestFor:     "Totals and their composition across categories at once.",
		NotFor:      "Comparing middle segments precisely.",
		Requirements: DataRequirements{
			MinRows: 2, MaxRows: 200,
			MinNumeric: 1, MinCategorical: 2,
			MaxCategories: 20,
		},
		Rules: []Rule{
			{Condition: "two categorical dimensions", Weight: 2, Matches: func(c *MatchContext) bool { return c.CategoricalCols >= 2 }},
			{Condition: "no negative values", Weight: 2, Matches: func(c *MatchContext) bool { return !c.HasNegative }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			x, stack, y := firstCategorical(in.Columns), secondCategorical(in.Columns), firstNumeric(in.Columns)
			if err := need("x", x); err != nil {
				return nil, err
			}
			if err := need("stack", stack); err != nil {
				return nil, err
			}
			if err := need("y", y); err != nil {
				return nil, err
			}
			return buildSpec("stacked_bar", in.Title, in, map[string]string{"x": x, "y": y, "color": stack}, map[string]any{"stacked": true}), nil
		},
	})

	register(&Pattern{
		ID:          "horizontal_bar",
		Name:        "Horizontal Bar Chart",
		Category:    Comparison,
		Description: "Bars running horizontally, labels on the left.",
		BestFor:     "Many categories or long category labels.",
		NotFor:      "Time-ordered data.",
		Requirements: DataRequirements{
			MinRows: 1, MaxRows: 100,
			MinNumeric: 1, MinCategorical: 1,
			MinCategories: 2,
		},
		Rules: []Rule{
			{Condition: "many categories", Weight: 3, Matches: func(c *MatchContext) bool { return c.CategoryCount > 12 }},
			{Condition: "ranking intent keywords", Weight: 2, Matches: func(c *MatchContext) bool { return containsAny(c.Intent, "rank", "top", "bottom") }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			y, x := firstCategorical(in.Columns), firstNumeric(in.Columns)
			if err := need("y", y); err != nil {
				return nil, err
			}
			if err := need("x", x); err != nil {
				return nil, err
			}
			return buildSpec("horizontal_bar", in.Title, in, map[string]string{"x": x, "y": y}, map[string]any{"orientation": "horizontal"}), nil
		},
	})

	register(&Pattern{
		ID:          "lollipop",
		Name:        "Lollipop Chart",
		Category:    Comparison,
		Description: "Thin stems with dots, a lighter-weight bar chart.",
		BestFor:     "Comparing many values where solid bars feel heavy.",
		NotFor:      "Stacked or grouped comparisons.",
		Requirements: DataRequirements{
			MinRows: 3, MaxRows: 80,
			MinNumeric: 1, MinCategorical: 1,
			MinCategories: 3,
		},
		Rules: []Rule{
			{Condition: "moderate category count", Weight: 2, Matches: func(c *MatchContext) bool { return c.CategoryCount >= 8 && c.CategoryCount <= 40 }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			y, x := firstCategorical(in.Columns), firstNumeric(in.Columns)
			if err := need("y", y); err != nil {
				return nil, err
			}
			if err := need("x", x); err != nil {
				return nil, err
			}
			return buildSpec("lollipop", in.Title, in, map[string]string{"x": x, "y": y}, nil), nil
		},
	})

	register(&Pattern{
		ID:          "dot_plot",
		Name:        "Dot Plot",
		Category:    Comparison,
		Description: "Dots on a common scale, optionally two per category.",
		BestFor:     "Before/after or two-point comparisons per category.",
		NotFor:      "More than two measures per category.",
		Requirements: DataRequirements{
			MinRows: 2, MaxRows: 60,
			MinNumeric: 1, MinCategorical: 1,
		},
		Rules: []Rule{
			{Condition: "two numeric measures", Weight: 3, Matches: func(c *MatchContext) bool { return c.NumericCols == 2 }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			y, x := firstCategorical(in.Columns), firstNumeric(in.Columns)
			if err := need("y", y); err != nil {
				return nil, err
			}
			if err := need("x", x); err != nil {
				return nil, err
			}
			enc := map[string]string{"x": x, "y": y}
			if x2 := secondNumeric(in.Columns); x2 != "" {
				enc["x2"] = x2
			}
			return buildSpec("dot_plot", in.Title, in, enc, nil), nil
		},
	})

	register(&Pattern{
		ID:          "bullet",
		Name:        "Bullet Chart",
		Category:    Comparison,
		Description: "A bar with a target marker and qualitative bands.",
		BestFor:     "Actual-versus-target comparisons.",
		NotFor:      "Data without a target measure.",
		Requirements: DataRequirements{
			MinRows: 1, MaxRows: 20,
			MinNumeric: 2, MinCategorical: 1,
		},
		Rules: []Rule{
			{Condition: "target-style intent", Weight: 3, Matches: func(c *MatchContext) bool { return containsAny(c.Intent, "target", "goal", "budget", "quota") }},
			{Condition: "two numeric measures", Weight: 1, Matches: func(c *MatchContext) bool { return c.NumericCols >= 2 }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			label, value, target := firstCategorical(in.Columns), firstNumeric(in.Columns), secondNumeric(in.Columns)
			if err := need("label", label); err != nil {
				return nil, err
			}
			if err := need("value", value); err != nil {
				return nil, err
			}
			if err := need("target", target); err != nil {
				return nil, err
			}
			return buildSpec("bullet", in.Title, in, map[string]string{"y": label, "x": value, "target": target}, nil), nil
		},
	})

	register(&Pattern{
		ID:          "radar",
		Name:        "Radar Chart",
		Category:    Comparison,
		Description: "Multiple axes arranged radially, one polygon per series.",
		BestFor:     "Comparing profiles across several dimensions.",
		NotFor:      "Precise value reading; more than a few series.",
		Requirements: DataRequirements{
			MinRows: 1, MaxRows: 12,
			MinNumeric: 3, MinCategorical: 1,
		},
		Rules: []Rule{
			{Condition: "several numeric dimensions", Weight: 3, Matches: func(c *MatchContext) bool { return c.NumericCols >= 3 }},
			{Condition: "few rows", Weight: 1, Matches: func(c *MatchContext) bool { return c.RowCount <= 8 }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			series := firstCategorical(in.Columns)
			if err := need("series", series); err != nil {
				return nil, err
			}
			var axes []string
			for _, c := range in.Columns {
				if c.Type == core.TypeNumeric {
					axes = append(axes, c.Name)
				}
			}
			return buildSpec("radar", in.Title, in, map[string]string{"color": series}, map[string]any{"axes": axes}), nil
		},
	})
}
