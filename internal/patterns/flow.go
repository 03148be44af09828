package patterns

import "dolex/internal/core"

// Flow patterns: quantities moving between states or stages.

func init() {
	register(&Pattern{
		ID:          "sankey",
		Name:        "Sankey Diagram",
		Category:    Flow,
		Description: "Weighted flows between source and target nodes.",
		BestFor:     "Where quantities come from and go to.",
		NotFor:      "Data without a source/target structure.",
		Requirements: DataRequirements{
			MinRows: 2, MaxRows: 200,
			MinNumeric: 1, MinCategorical: 2,
		},
		Rules: []Rule{
			{Condition: "source and target columns", Weight: 3, Matches: func(c *MatchContext) bool { return c.CategoricalCols >= 2 }},
			{Condition: "flow intent", Weight: 3, Matches: func(c *MatchContext) bool { return containsAny(c.Intent, "flow", "from", "sankey", "transition") }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			source, target, value := firstCategorical(in.Columns), secondCategorical(in.Columns), firstNumeric(in.Columns)
			if err := need("source", source); err != nil {
				return nil, err
			}
			if err := need("target", target); err != nil {
				return nil, err
			}
			if err := need("value", value); err != nil {
				return nil, err
			}
			return buildSpec("sankey", in.Title, in, map[string]string{"source": source, "target": target, "value": value}, nil), nil
		},
	})

	register(&Pattern{
		ID:          "chord",
		Name:        "Chord Diagram",
		Category:    Flow,
		Description: "Flows between entities arranged on a circle.",
		BestFor:     "Dense many-to-many relationships.",
		NotFor:      "More than ~12 entities.",
		Requirements: DataRequirements{
			MinRows: 3, MaxRows: 150,
			MinNumeric: 1, MinCategorical: 2,
			MaxCategories: 12,
		},
		Rules: []Rule{
			{Condition: "compact entity set", Weight: 2, Matches: func(c *MatchContext) bool { return c.CategoryCount <= 10 }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			source, target, value := firstCategorical(in.Columns), secondCategorical(in.Columns), firstNumeric(in.Columns)
			if err := need("source", source); err != nil {
				return nil, err
			}
			if err := need("target", target); err != nil {
				return nil, err
			}
			if err := need("value", value); err != nil {
				return nil, err
			}
			return buildSpec("chord", in.Title, in, map[string]string{"source": source, "target": target, "value": value}, nil), nil
		},
	})

	register(&Pattern{
		ID:          "funnel",
		Name:        "Funnel Chart",
		Category:    Flow,
		Description: "Shrinking stages of a sequential process.",
		BestFor:     "Conversion and drop-off through ordered stages.",
		NotFor:      "Unordered categories.",
		Requirements: DataRequirements{
			MinRows: 2, MaxRows: 12,
			MinNumeric: 1, MinCategorical: 1,
			MaxCategories: 10,
		},
		Rules: []Rule{
			{Condition: "funnel intent", Weight: 4, Matches: func(c *MatchContext) bool {
				return containsAny(c.Intent, "funnel", "conversion", "drop", "stage", "pipeline")
			}},
			{Condition: "few ordered stages", Weight: 1, Matches: func(c *MatchContext) bool { return c.CategoryCount >= 2 && c.CategoryCount <= 8 }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			stage, value := firstCategorical(in.Columns), firstNumeric(in.Columns)
			if err := need("stage", stage); err != nil {
				return nil, err
			}
			if err := need("value", value); err != nil {
				return nil, err
			}
			return buildSpec("funnel", in.Title, in, map[string]string{"y": stage, "x": value}, nil), nil
		},
	})

	register(&Pattern{
		ID:          "waterfall",
		Name:        "Waterfall Chart",
		Category:    Flow,
		Description: "Sequential gains and losses building to a total.",
		BestFor:     "Explaining how a total changed step by step.",
		NotFor:      "Unordered contributions.",
		Requirements: DataRequirements{
			MinRows: 3, MaxRows: 30,
			MinNumeric: 1, MinCategorical: 1,
		},
		Rules: []Rule{
			{Condition: "waterfall intent", Weight: 4, Matches: func(c *MatchContext) bool { return containsAny(c.Intent, "waterfall", "bridge", "contribution") }},
			{Condition: "signed values", Weight: 2, Matches: func(c *MatchContext) bool { return c.HasNegative }},
		},
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			step, value := firstCategorical(in.Columns), firstNumeric(in.Columns)
			if err := need("step", step); err != nil {
				return nil, err
			}
			if err := need("value", value); err != nil {
				return nil, err
			}
			return buildSpec("waterfall", in.Title, in, map[string]string{"x": step, "y": value}, nil), nil
		},
	})
}
