package patterns

import (
	"strings"

	"dolex/internal/core"
	"dolex/internal/eval"
)

// Geo patterns: values keyed to geographic regions. The state table below
// is immutable reference data; generators copy input rows before expanding
// abbreviations.

// usStates maps US state and territory postal abbreviations to full names.
var usStates = map[string]string{
	"AL": "Alabama", "AK": "Alaska", "AZ": "Arizona", "AR": "Arkansas",
	"CA": "California", "CO": "Colorado", "CT": "Connecticut", "DE": "Delaware",
	"FL": "Florida", "GA": "Georgia", "HI": "Hawaii", "ID": "Idaho",
	"IL": "Illinois", "IN": "Indiana", "IA": "Iowa", "KS": "Kansas",
	"KY": "Kentucky", "LA": "Louisiana", "ME": "Maine", "MD": "Maryland",
	"MA": "Massachusetts", "MI": "Michigan", "MN": "Minnesota", "MS": "Mississippi",
	"MO": "Missouri", "MT": "Montana", "NE": "Nebraska", "NV": "Nevada",
	"NH": "New Hampshire", "NJ": "New Jersey", "NM": "New Mexico", "NY": "New York",
	"NC": "North Carolina", "ND": "North Dakota", "OH": "Ohio", "OK": "Oklahoma",
	"OR": "Oregon", "PA": "Pennsylvania", "RI": "Rhode Island", "SC": "South Carolina",
	"SD": "South Dakota", "TN": "Tennessee", "TX": "Texas", "UT": "Utah",
	"VT": "Vermont", "VA": "Virginia", "WA": "Washington", "WV": "West Virginia",
	"WI": "Wisconsin", "WY": "Wyoming", "DC": "District of Columbia", "PR": "Puerto Rico",
}

var regionNameHints = []string{"state", "region", "country", "province", "county", "territory", "location", "geo"}

// regionColumn finds a column that plausibly holds geographic regions: a
// geo-family name, or values that are mostly US state names or
// abbreviations.
func regionColumn(data []core.Row, cols []*core.DataColumn) string {
	for _, c := range cols {
		if c.Type != core.TypeCategorical && c.Type != core.TypeText {
			continue
		}
		lower := strings.ToLower(c.Name)
		for _, hint := range regionNameHints {
			if strings.Contains(lower, hint) {
				return c.Name
			}
		}
	}
	for _, c := range cols {
		if c.Type != core.TypeCategorical {
			continue
		}
		matched, total := 0, 0
		for _, row := range data {
			v := row[c.Name]
			if v == nil {
				continue
			}
			s, _ := eval.Text(v)
			total++
			if isUSState(s) {
				matched++
			}
		}
		if total > 0 && float64(matched)/float64(total) > 0.6 {
			return c.Name
		}
	}
	return ""
}

func isUSState(s string) bool {
	s = strings.TrimSpace(s)
	if _, ok := usStates[strings.ToUpper(s)]; ok {
		return true
	}
	for _, full := range usStates {
		if strings.EqualFold(full, s) {
			return true
		}
	}
	return false
}

// expandRegions rewrites abbreviated region values to their full names on
// an already-copied spec.
func expandRegions(spec *core.VisualizationSpec, region string) {
	for _, row := range spec.Data {
		v := row[region]
		if v == nil {
			continue
		}
		s, _ := eval.Text(v)
		if full, ok := usStates[strings.ToUpper(strings.TrimSpace(s))]; ok {
			row[region] = full
		}
	}
}

func geoSpec(id string, in SpecInput) (*core.VisualizationSpec, error) {
	region := regionColumn(in.Data, in.Columns)
	value := firstNumeric(in.Columns)
	if err := need("region", region); err != nil {
		return nil, err
	}
	if err := need("value", value); err != nil {
		return nil, err
	}
	spec := buildSpec(id, in.Title, in, map[string]string{"region": region, "color": value}, nil)
	expandRegions(spec, region)
	return spec, nil
}

func geoRules() []Rule {
	return []Rule{
		{Condition: "geographic intent keywords", Weight: 4, Matches: func(c *MatchContext) bool {
			return containsAny(c.Intent, "state", "region", "country", "map", "geograph")
		}},
		{Condition: "categorical key with value", Weight: 1, Matches: func(c *MatchContext) bool {
			return c.CategoricalCols >= 1 && c.NumericCols >= 1
		}},
	}
}

func init() {
	register(&Pattern{
		ID:          "choropleth",
		Name:        "Choropleth Map",
		Category:    Geo,
		Description: "Regions shaded by value.",
		BestFor:     "Per-region rates and intensities.",
		NotFor:      "Absolute counts that track population.",
		Requirements: DataRequirements{
			MinRows: 3, MaxRows: 500,
			MinNumeric: 1, MinCategorical: 1,
		},
		Rules: geoRules(),
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			return geoSpec("choropleth", in)
		},
	})

	register(&Pattern{
		ID:          "symbol_map",
		Name:        "Symbol Map",
		Category:    Geo,
		Description: "Sized symbols placed on regions.",
		BestFor:     "Absolute magnitudes by location.",
		NotFor:      "Dense overlapping locations.",
		Requirements: DataRequirements{
			MinRows: 3, MaxRows: 500,
			MinNumeric: 1, MinCategorical: 1,
		},
		Rules: geoRules(),
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			spec, err := geoSpec("symbol_map", in)
			if err != nil {
				return nil, err
			}
			spec.Encoding["size"] = spec.Encoding["color"]
			return spec, nil
		},
	})

	register(&Pattern{
		ID:          "state_grid",
		Name:        "State Grid",
		Category:    Geo,
		Description: "US states as equal-sized tiles in a grid layout.",
		BestFor:     "Per-state values without area distortion.",
		NotFor:      "Non-US regions.",
		Requirements: DataRequirements{
			MinRows: 10, MaxRows: 60,
			MinNumeric: 1, MinCategorical: 1,
		},
		Rules: append(geoRules(), Rule{
			Condition: "roughly fifty rows",
			Weight:    1,
			Matches:   func(c *MatchContext) bool { return c.RowCount >= 40 && c.RowCount <= 56 },
		}),
		GenerateSpec: func(in SpecInput) (*core.VisualizationSpec, error) {
			return geoSpec("state_grid", in)
		},
	})
}
