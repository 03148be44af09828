package patterns

import "dolex/internal/core"

// Composition patterns: parts of a whole.

func init() {
	register(&Pattern{
		ID:          "pie",
		Name:        "Pie Chart",
		Category:    Composition,
		Description: "Slices of one whole.",
		BestFor:     "A handful of parts summing to a meaningful whole.",
		NotFor:      "More than ~6 slices or close values.",
		Requirements: DataRequirements{
			MinRows: 2, MaxRows: 12,
			MinNumeric: 1, MinCategorical: 1,
			MinCategories: 2, MaxCategories: 8,
		},
		Rules: []Rule{
			{Condition: "very few slices", Weight: 3, Matches: func(c *MatchContext) bool { return c.CategoryCount >= 2 && c.CategoryCount <= 5 }},
			{Condition: "share intent", Weight: 2, Matches: func(c *MatchContext) bool { return containsAny(c.Intent, "share", "proportion", "percent") }},
			{Condition: "no negative values", Weight: 1, Matches: func(c *MatchContext) bool { return !c.HasNegative }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			label, value := firstCategorical(in.Columns), firstNumeric(in.Columns)
			if err := need("label", label); err != nil {
				return nil, err
			}
			if err := need("value", value); err != nil {
				return nil, err
			}
			return buildSpec("pie", in.Title, in, map[string]string{"color": label, "value": value}, nil), nil
		},
	})

	register(&Pattern{
		ID:          "donut",
		Name:        "Donut Chart",
		Category:    Composition,
		Description: "A pie with a center hole for a headline figure.",
		BestFor:     "Shares plus a single total callout.",
		NotFor:      "Many slices.",
		Requirements: DataRequirements{
			MinRows: 2, MaxRows: 12,
			MinNumeric: 1, MinCategorical: 1,
			MinCategories: 2, MaxCategories: 8,
		},
		Rules: []Rule{
			{Condition: "few slices", Weight: 2, Matches: func(c *MatchContext) bool { return c.CategoryCount >= 2 && c.CategoryCount <= 6 }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			label, value := firstCategorical(in.Columns), firstNumeric(in.Columns)
			if err := need("label", label); err != nil {
				return nil, err
			}
			if err := need("value", value); err != nil {
				return nil, err
			}
			return buildSpec("donut", in.Title, in, map[string]string{"color": label, "value": value}, map[string]any{"innerRadius": 0.6}), nil
		},
	})

	register(&Pattern{
		ID:          "treemap",
		Name:        "Treemap",
		Category:    Composition,
		Description: "Nested rectangles sized by value.",
		BestFor:     "Hierarchical composition with many parts.",
		NotFor:      "Precise comparisons between similar values.",
		Requirements: DataRequirements{
			MinRows: 4, MaxRows: 500,
			MinNumeric: 1, MinCategorical: 1,
			MinCategories: 4,
		},
		Rules: []Rule{
			{Condition: "many parts", Weight: 3, Matches: func(c *MatchContext) bool { return c.CategoryCount > 8 }},
			{Condition: "hierarchy available", Weight: 2, Matches: func(c *MatchContext) bool { return c.CategoricalCols >= 2 }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			label, value := firstCategorical(in.Columns), firstNumeric(in.Columns)
			if err := need("label", label); err != nil {
				return nil, err
			}
			if err := need("value", value); err != nil {
				return nil, err
			}
			enc := map[string]string{"label": label, "value": value}
			if parent := secondCategorical(in.Columns); parent != "" {
				enc["parent"] = parent
			}
			return buildSpec("treemap", in.Title, in, enc, nil), nil
		},
	})

	register(&Pattern{
		ID:          "stacked_area_percent",
		Name:        "100% Stacked Area Chart",
		Category:    Composition,
		Description: "Shares over time normalized to 100%.",
		BestFor:     "How composition shifts over time.",
		NotFor:      "Absolute magnitudes.",
		Requirements: DataRequirements{
			MinRows: 6, MinNumeric: 1, MinCategorical: 1,
			RequiresTimeSeries: true,
			MaxCategories:      10,
		},
		Rules: []Rule{
			{Condition: "time series with series", Weight: 3, Matches: func(c *MatchContext) bool { return c.HasTimeSeries && c.SeriesCount >= 2 }},
			{Condition: "composition intent", Weight: 2, Matches: func(c *MatchContext) bool { return containsAny(c.Intent, "share", "composition", "breakdown") }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			x := firstTemporal(in.Columns)
			series, y := firstCategorical(in.Columns), firstNumeric(in.Columns)
			if err := need("x", x); err != nil {
				return nil, err
			}
			if err := need("series", series); err != nil {
				return nil, err
			}
			if err := need("y", y); err != nil {
				return nil, err
			}
			return buildSpec("stacked_area_percent", in.Title, in, map[string]string{"x": x, "y": y, "color": series}, map[string]any{"normalize": true}), nil
		},
	})

	register(&Pattern{
		ID:          "waffle",
		Name:        "Waffle Chart",
		Category:    Composition,
		Description: "A 10x10 grid of squares representing percentages.",
		BestFor:     "Communicating a percentage intuitively.",
		NotFor:      "Fine-grained values.",
		Requirements: DataRequirements{
			MinRows: 1, MaxRows: 10,
			MinNumeric: 1, MinCategorical: 1,
			MaxCategories: 6,
		},
		Rules: []Rule{
			{Condition: "couple of parts", Weight: 2, Matches: func(c *MatchContext) bool { return c.CategoryCount >= 2 && c.CategoryCount <= 4 }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			label, value := firstCategorical(in.Columns), firstNumeric(in.Columns)
			if err := need("label", label); err != nil {
				return nil, err
			}
			if err := need("value", value); err != nil {
				return nil, err
			}
			return buildSpec("waffle", in.Title, in, map[string]string{"color": label, "value": value}, map[string]any{"cells": 100}), nil
		},
	})

	register(&Pattern{
		ID:          "sunburst",
		Name:        "Sunburst Chart",
		Category:    Composition,
		Description: "Concentric rings for hierarchical composition.",
		BestFor:     "Two-plus-level hierarchies.",
		NotFor:      "Flat category lists.",
		Requirements: DataRequirements{
			MinRows: 4, MaxRows: 500,
			MinNumeric: 1, MinCategorical: 2,
			RequiresHierarchy: true,
		},
		Rules: []Rule{
			{Condition: "hierarchical categories", Weight: 3, Matches: func(c *MatchContext) bool { return c.CategoricalCols >= 2 }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			level1, level2, value := firstCategorical(in.Columns), secondCategorical(in.Columns), firstNumeric(in.Columns)
			if err := need("level1", level1); err != nil {
				return nil, err
			}
			if err := need("level2", level2); err != nil {
				return nil, err
			}
			if err := need("value", value); err != nil {
				return nil, err
			}
			return buildSpec("sunburst", in.Title, in, map[string]string{"level1": level1, "level2": level2, "value": value}, nil), nil
		},
	})
}
