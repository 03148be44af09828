package patterns

import "dolex/internal/core"

// Relationship patterns: how variables move together.

func init() {
	register(&Pattern{
		ID:          "scatter",
		Name:        "Scatter Plot",
		Category:    Relationship,
		Description: "Points positioned by two numeric variables.",
		BestFor:     "Correlation and clusters between two measures.",
		NotFor:      "Categorical axes.",
		Requirements: DataRequirements{
			MinRows: 5, MinNumeric: 2,
		},
		Rules: []Rule{
			{Condition: "two numeric variables", Weight: 3, Matches: func(c *MatchContext) bool { return c.NumericCols >= 2 }},
			{Condition: "correlation intent", Weight: 3, Matches: func(c *MatchContext) bool {
				return containsAny(c.Intent, "correlat", "relationship", "versus", "against")
			}},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			x, y := firstNumeric(in.Columns), secondNumeric(in.Columns)
			if err := need("x", x); err != nil {
				return nil, err
			}
			if err := need("y", y); err != nil {
				return nil, err
			}
			enc := map[string]string{"x": x, "y": y}
			if color := firstCategorical(in.Columns); color != "" {
				enc["color"] = color
			}
			return buildSpec("scatter", in.Title, in, enc, nil), nil
		},
	})

	register(&Pattern{
		ID:          "bubble",
		Name:        "Bubble Chart",
		Category:    Relationship,
		Description: "A scatter plot with point size as a third measure.",
		BestFor:     "Three numeric dimensions at once.",
		NotFor:      "Precise size comparison.",
		Requirements: DataRequirements{
			MinRows: 5, MaxRows: 500,
			MinNumeric: 3,
		},
		Rules: []Rule{
			{Condition: "three numeric measures", Weight: 3, Matches: func(c *MatchContext) bool { return c.NumericCols >= 3 }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			x, y, size := firstNumeric(in.Columns), secondNumeric(in.Columns), thirdNumeric(in.Columns)
			if err := need("x", x); err != nil {
				return nil, err
			}
			if err := need("y", y); err != nil {
				return nil, err
			}
			if err := need("size", size); err != nil {
				return nil, err
			}
			enc := map[string]string{"x": x, "y": y, "size": size}
			if color := firstCategorical(in.Columns); color != "" {
				enc["color"] = color
			}
			return buildSpec("bubble", in.Title, in, enc, nil), nil
		},
	})

	register(&Pattern{
		ID:          "heatmap",
		Name:        "Heatmap",
		Category:    Relationship,
		Description: "A grid of two categories colored by a value.",
		BestFor:     "Value intensity across two categorical dimensions.",
		NotFor:      "Continuous axes.",
		Requirements: DataRequirements{
			MinRows: 4, MinNumeric: 1, MinCategorical: 2,
		},
		Rules: []Rule{
			{Condition: "two categorical dimensions", Weight: 3, Matches: func(c *MatchContext) bool { return c.CategoricalCols >= 2 }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			x, y, value := firstCategorical(in.Columns), secondCategorical(in.Columns), firstNumeric(in.Columns)
			if err := need("x", x); err != nil {
				return nil, err
			}
			if err := need("y", y); err != nil {
				return nil, err
			}
			if err := need("value", value); err != nil {
				return nil, err
			}
			return buildSpec("heatmap", in.Title, in, map[string]string{"x": x, "y": y, "color": value}, nil), nil
		},
	})

	register(&Pattern{
		ID:          "connected_scatter",
		Name:        "Connected Scatter Plot",
		Category:    Relationship,
		Description: "Scatter points joined in time order.",
		BestFor:     "How a two-variable relationship evolved.",
		NotFor:      "Unordered data.",
		Requirements: DataRequirements{
			MinRows: 5, MaxRows: 200,
			MinNumeric: 2, RequiresTimeSeries: true,
		},
		Rules: []Rule{
			{Condition: "time plus two measures", Weight: 2, Matches: func(c *MatchContext) bool { return c.HasTimeSeries && c.NumericCols >= 2 }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			x, y := firstNumeric(in.Columns), secondNumeric(in.Columns)
			order := firstTemporal(in.Columns)
			if err := need("x", x); err != nil {
				return nil, err
			}
			if err := need("y", y); err != nil {
				return nil, err
			}
			if err := need("order", order); err != nil {
				return nil, err
			}
			return buildSpec("connected_scatter", in.Title, in, map[string]string{"x": x, "y": y, "order": order}, nil), nil
		},
	})

	register(&Pattern{
		ID:          "hexbin",
		Name:        "Hexbin Plot",
		Category:    Relationship,
		Description: "Hexagonal bins for dense scatter data.",
		BestFor:     "Tens of thousands of points.",
		NotFor:      "Small samples.",
		Requirements: DataRequirements{
			MinRows: 500, MinNumeric: 2,
		},
		Rules: []Rule{
			{Condition: "dense point cloud", Weight: 3, Matches: func(c *MatchContext) bool { return c.RowCount >= 2000 }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			x, y := firstNumeric(in.Columns), secondNumeric(in.Columns)
			if err := need("x", x); err != nil {
				return nil, err
			}
			if err := need("y", y); err != nil {
				return nil, err
			}
			return buildSpec("hexbin", in.Title, in, map[string]string{"x": x, "y": y}, nil), nil
		},
	})

	register(&Pattern{
		ID:          "correlation_matrix",
		Name:        "Correlation Matrix",
		Category:    Relationship,
		Description: "Pairwise correlations between numeric columns.",
		BestFor:     "Screening many numeric variables for relationships.",
		NotFor:      "Fewer than three numeric columns.",
		Requirements: DataRequirements{
			MinRows: 10, MinNumeric: 3,
		},
		Rules: []Rule{
			{Condition: "many numeric columns", Weight: 3, Matches: func(c *MatchContext) bool { return c.NumericCols >= 4 }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			var fields []string
			for _, c := range in.Columns {
				if c.Type == core.TypeNumeric {
					fields = append(fields, c.Name)
				}
			}
			if len(fields) < 3 {
				return nil, need("fields", "")
			}
			return buildSpec("correlation_matrix", in.Title, in, nil, map[string]any{"fields": fields}), nil
		},
	})

	register(&Pattern{
		ID:          "parallel_coordinates",
		Name:        "Parallel Coordinates",
		Category:    Relationship,
		Description: "Each row drawn as a line across vertical axes.",
		BestFor:     "Multivariate profiles and clusters.",
		NotFor:      "More than a few hundred rows.",
		Requirements: DataRequirements{
			MinRows: 5, MaxRows: 500,
			MinNumeric: 3,
		},
		Rules: []Rule{
			{Condition: "several numeric axes, modest rows", Weight: 2, Matches: func(c *MatchContext) bool { return c.NumericCols >= 4 && c.RowCount <= 300 }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			var axes []string
			for _, c := range in.Columns {
				if c.Type == core.TypeNumeric {
					axes = append(axes, c.Name)
				}
			}
			if len(axes) < 3 {
				return nil, need("axes", "")
			}
			enc := map[string]string{}
			if color := firstCategorical(in.Columns); color != "" {
				enc["color"] = color
			}
			return buildSpec("parallel_coordinates", in.Title, in, enc, map[string]any{"axes": axes}), nil
		},
	})
}
