package patterns

import (
	"fmt"
	"sort"

	"dolex/internal/core"
)

// intentBias is added to every pattern whose category agrees with the
// detected primary intent.
const intentBias = 2.0

// DefaultAlternatives is how many ranked alternatives a selection carries
// unless the caller asks for fewer.
const DefaultAlternatives = 3

// Options restrict and steer a selection.
type Options struct {
	// ForcePattern promotes a specific pattern to the recommendation when
	// it exists and its generator succeeds.
	ForcePattern string
	// FilterCategories restricts candidates to these categories.
	FilterCategories []string
	// ExcludePatterns removes specific pattern IDs before scoring.
	ExcludePatterns []string
	// MaxAlternatives caps the alternatives list.
	MaxAlternatives int
	// Title is passed through to generators.
	Title string
}

// Recommendation is one ranked pattern with its generated spec.
type Recommendation struct {
	Pattern   *Pattern
	Score     float64
	Spec      *core.VisualizationSpec
	Reasoning string
}

// Selection is the full outcome: the recommendation, ranked alternatives,
// the detected intent, and selection notes.
type Selection struct {
	Recommended  *Recommendation
	Alternatives []*Recommendation
	Intent       string
	IntentScores map[string]float64
	Notes        []string
}

// Select ranks every compatible pattern against the data shape and intent.
// It is deterministic: identical inputs produce identical selections.
func Select(data []core.Row, cols []*core.DataColumn, intent string, opts Options) (*Selection, error) {
	primary, scores := ParseIntent(intent)
	ctx := BuildContext(data, cols, intent)
	sel := &Selection{Intent: primary, IntentScores: scores}

	candidates := candidateSet(opts)

	type scored struct {
		p     *Pattern
		score float64
	}
	var ranked []scored
	for _, p := range candidates {
		if !p.Compatible(ctx) {
			continue
		}
		s := p.Score(ctx)
		if p.Category == intentCategory(primary) {
			s += intentBias
		}
		ranked = append(ranked, scored{p: p, score: s})
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].score != ranked[b].score {
			return ranked[a].score > ranked[b].score
		}
		aMatch := ranked[a].p.Category == intentCategory(primary)
		bMatch := ranked[b].p.Category == intentCategory(primary)
		if aMatch != bMatch {
			return aMatch
		}
		ca, cb := categoryIndex(ranked[a].p.Category), categoryIndex(ranked[b].p.Category)
		if ca != cb {
			return ca < cb
		}
		return ranked[a].p.ID < ranked[b].p.ID
	})

	in := SpecInput{Data: data, Columns: cols, Title: opts.Title}

	// Forced pattern first: fall back to the ranking when it is unknown or
	// its generator fails.
	if opts.ForcePattern != "" {
		if forced, ok := Lookup(opts.ForcePattern); ok {
			if spec, err := forced.GenerateSpec(in); err == nil {
				sel.Recommended = &Recommendation{
					Pattern:   forced,
					Spec:      spec,
					Reasoning: fmt.Sprintf("pattern %q was explicitly requested", forced.ID),
				}
			} else {
				sel.Notes = append(sel.Notes, fmt.Sprintf("requested pattern %q could not generate a spec (%v); fell back to the best match", forced.ID, err))
			}
		} else {
			sel.Notes = append(sel.Notes, fmt.Sprintf("unknown pattern %q; fell back to the best match", opts.ForcePattern))
		}
	}

	maxAlt := opts.MaxAlternatives
	if maxAlt <= 0 {
		maxAlt = DefaultAlternatives
	}

	for _, cand := range ranked {
		if sel.Recommended != nil && cand.p.ID == sel.Recommended.Pattern.ID {
			continue
		}
		spec, err := cand.p.GenerateSpec(in)
		if err != nil {
			continue
		}
		rec := &Recommendation{
			Pattern:   cand.p,
			Score:     cand.score,
			Spec:      spec,
			Reasoning: reasoning(cand.p, ctx, primary),
		}
		if sel.Recommended == nil {
			sel.Recommended = rec
			continue
		}
		if cand.score <= 0 {
			continue
		}
		if len(sel.Alternatives) < maxAlt {
			sel.Alternatives = append(sel.Alternatives, rec)
		}
	}

	if sel.Recommended == nil {
		return nil, fmt.Errorf("no compatible visualization pattern for this data shape")
	}
	return sel, nil
}

// QuickRecommend returns a pattern ID for any input, never failing: when
// nothing is compatible it falls back to a bar chart.
func QuickRecommend(data []core.Row, cols []*core.DataColumn, intent string) string {
	sel, err := Select(data, cols, intent, Options{MaxAlternatives: 1})
	if err != nil || sel.Recommended == nil {
		return "bar"
	}
	return sel.Recommended.Pattern.ID
}

func candidateSet(opts Options) []*Pattern {
	all := All()
	if len(opts.FilterCategories) == 0 && len(opts.ExcludePatterns) == 0 {
		return all
	}
	allowCat := make(map[Category]bool)
	for _, c := range opts.FilterCategories {
		allowCat[Category(c)] = true
	}
	excluded := make(map[string]bool)
	for _, id := range opts.ExcludePatterns {
		excluded[id] = true
	}
	var out []*Pattern
	for _, p := range all {
		if len(allowCat) > 0 && !allowCat[p.Category] {
			continue
		}
		if excluded[p.ID] {
			continue
		}
		out = append(out, p)
	}
	return out
}

func reasoning(p *Pattern, ctx *MatchContext, primary string) string {
	msg := fmt.Sprintf("%s fits %d rows with %d numeric and %d categorical column(s)", p.Name, ctx.RowCount, ctx.NumericCols, ctx.CategoricalCols)
	if p.Category == intentCategory(primary) {
		msg += fmt.Sprintf("; matches the %s intent", primary)
	}
	return msg
}
