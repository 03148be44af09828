// Package patterns implements the visualization pattern engine: a registry
// of chart patterns, each with data requirements, scoring rules, and a spec
// generator, plus the selector that ranks them against a data shape and a
// natural-language intent.
package patterns

import (
	"fmt"
	"sort"
	"strings"

	"dolex/internal/core"
	"dolex/internal/eval"
)

// Category groups patterns by analytical purpose. The declaration order is
// the deterministic tie-break order used by the selector.
type Category string

const (
	Comparison   Category = "comparison"
	Distribution Category = "distribution"
	Composition  Category = "composition"
	Time         Category = "time"
	Relationship Category = "relationship"
	Flow         Category = "flow"
	Geo          Category = "geo"
)

// Categories lists every category in tie-break order.
var Categories = []Category{Comparison, Distribution, Composition, Time, Relationship, Flow, Geo}

func categoryIndex(c Category) int {
	for i, cand := range Categories {
		if cand == c {
			return i
		}
	}
	return len(Categories)
}

// DataRequirements gate a pattern on the shape of the data. Zero values
// mean "no constraint" except MinRows, which defaults to 1.
type DataRequirements struct {
	MinRows            int
	MaxRows            int
	MinNumeric         int
	MinCategorical     int
	MinDate            int
	RequiresTimeSeries bool
	RequiresHierarchy  bool
	MinCategories      int
	MaxCategories      int
}

// Rule is one weighted predicate over the match context.
type Rule struct {
	Condition string
	Weight    float64
	Matches   func(*MatchContext) bool
}

// SpecInput is everything a generator may read. Generators must not mutate
// the data or columns; values they normalize are copied onto the returned
// spec.
type SpecInput struct {
	Data    []core.Row
	Columns []*core.DataColumn
	Title   string
}

// Pattern is one visualization type: identity, selection rules, and the
// generator producing its spec.
type Pattern struct {
	ID           string
	Name         string
	Category     Category
	Description  string
	BestFor      string
	NotFor       string
	Requirements DataRequirements
	Rules        []Rule
	GenerateSpec func(in SpecInput) (*core.VisualizationSpec, error)
}

var registry = map[string]*Pattern{}

func register(p *Pattern) {
	if _, dup := registry[p.ID]; dup {
		panic(fmt.Sprintf("pattern %q registered twice", p.ID))
	}
	registry[p.ID] = p
}

// Lookup returns a pattern by ID.
func Lookup(id string) (*Pattern, bool) {
	p, ok := registry[id]
	return p, ok
}

// All returns every registered pattern sorted by category order then ID.
func All() []*Pattern {
	out := make([]*Pattern, 0, len(registry))
	for _, p := range registry {
		out = append(out, p)
	}
	sort.Slice(out, func(a, b int) bool {
		ca, cb := categoryIndex(out[a].Category), categoryIndex(out[b].Category)
		if ca != cb {
			return ca < cb
		}
		return out[a].ID < out[b].ID
	})
	return out
}

// MatchContext is the derived data-shape summary the rules score against.
type MatchContext struct {
	RowCount        int
	NumericCols     int
	CategoricalCols int
	DateCols        int
	HasTimeSeries   bool
	CategoryCount   int
	SeriesCount     int
	ValueRange      float64
	HasNegative     bool
	Intent          string
}

var timeSeriesNameRe = []string{"date", "time", "year", "month", "day", "created_at", "timestamp"}

// BuildContext derives the match context from data, columns, and intent.
func BuildContext(data []core.Row, cols []*core.DataColumn, intent string) *MatchContext {
	ctx := &MatchContext{RowCount: len(data), Intent: intent}

	for _, c := range cols {
		switch c.Type {
		case core.TypeNumeric:
			ctx.NumericCols++
		case core.TypeCategorical:
			ctx.CategoricalCols++
		case core.TypeDate:
			ctx.DateCols++
			ctx.HasTimeSeries = true
		}
		lower := strings.ToLower(c.Name)
		for _, hint := range timeSeriesNameRe {
			if strings.Contains(lower, hint) {
				ctx.HasTimeSeries = true
			}
		}
	}

	// Category count: unique values in the first categorical column.
	if first := firstOfType(cols, core.TypeCategorical); first != nil {
		ctx.CategoryCount = uniqueCount(data, first.Name)
	}

	// Series count: the categorical column with the smallest cardinality
	// of at least 2.
	best := 0
	for _, c := range cols {
		if c.Type != core.TypeCategorical {
			continue
		}
		n := uniqueCount(data, c.Name)
		if n >= 2 && (best == 0 || n < best) {
			best = n
		}
	}
	ctx.SeriesCount = best

	// Value range and negativity across all numeric columns.
	haveAny := false
	var lo, hi float64
	for _, c := range cols {
		if c.Type != core.TypeNumeric {
			continue
		}
		for _, row := range data {
			f, ok := eval.Number(row[c.Name])
			if !ok {
				continue
			}
			if !haveAny {
				lo, hi, haveAny = f, f, true
			}
			if f < lo {
				lo = f
			}
			if f > hi {
				hi = f
			}
			if f < 0 {
				ctx.HasNegative = true
			}
		}
	}
	if haveAny {
		ctx.ValueRange = hi - lo
	}
	return ctx
}

// Compatible checks a pattern's data requirements against the context.
// Row counts are allowed up to twice the stated maximum.
func (p *Pattern) Compatible(ctx *MatchContext) bool {
	req := p.Requirements
	minRows := req.MinRows
	if minRows == 0 {
		minRows = 1
	}
	if ctx.RowCount < minRows {
		return false
	}
	if req.MaxRows > 0 && ctx.RowCount > 2*req.MaxRows {
		return false
	}
	if ctx.NumericCols < req.MinNumeric {
		return false
	}
	if ctx.CategoricalCols < req.MinCategorical {
		return false
	}
	if ctx.DateCols < req.MinDate {
		return false
	}
	if req.RequiresTimeSeries && !ctx.HasTimeSeries {
		return false
	}
	if req.RequiresHierarchy && ctx.CategoricalCols < 2 {
		return false
	}
	if req.MinCategories > 0 && ctx.CategoryCount < req.MinCategories {
		return false
	}
	if req.MaxCategories > 0 && ctx.CategoryCount > req.MaxCategories {
		return false
	}
	return true
}

// Score sums the weights of matching rules.
func (p *Pattern) Score(ctx *MatchContext) float64 {
	total := 0.0
	for _, r := range p.Rules {
		if r.Matches(ctx) {
			total += r.Weight
		}
	}
	return total
}

func firstOfType(cols []*core.DataColumn, t core.SemanticType) *core.DataColumn {
	for _, c := range cols {
		if c.Type == t {
			return c
		}
	}
	return nil
}

func uniqueCount(data []core.Row, col string) int {
	seen := make(map[string]bool)
	for _, row := range data {
		if v := row[col]; v != nil {
			s, _ := eval.Text(v)
			seen[s] = true
		}
	}
	return len(seen)
}
