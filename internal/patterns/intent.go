package patterns

import "strings"

// intentKeywords maps each primary intent to weighted keyword families.
// Scoring counts every keyword occurrence times its weight.
var intentKeywords = map[string][]struct {
	words  []string
	weight float64
}{
	"comparison": {
		{words: []string{"compare", "comparison", "versus", "vs", "rank", "ranking", "top", "bottom", "best", "worst", "biggest", "smallest", "highest", "lowest"}, weight: 2},
		{words: []string{"by", "across", "between", "difference"}, weight: 1},
	},
	"time": {
		{words: []string{"trend", "over time", "timeline", "growth", "decline", "change", "history", "evolution", "trajectory"}, weight: 2},
		{words: []string{"monthly", "weekly", "daily", "yearly", "quarterly", "seasonal", "forecast"}, weight: 2},
		{words: []string{"when", "recent", "since"}, weight: 1},
	},
	"distribution": {
		{words: []string{"distribution", "spread", "histogram", "frequency", "outlier", "outliers", "range", "variance", "percentile", "quartile"}, weight: 2},
		{words: []string{"typical", "median", "skew", "concentrated"}, weight: 1},
	},
	"composition": {
		{words: []string{"composition", "breakdown", "share", "proportion", "percentage", "percent", "makeup", "part of", "pie"}, weight: 2},
		{words: []string{"total", "whole", "split", "portion"}, weight: 1},
	},
	"relationship": {
		{words: []string{"correlation", "correlate", "relationship", "scatter", "versus", "against", "depends", "affect", "impact", "association"}, weight: 2},
		{words: []string{"related", "linked", "between"}, weight: 1},
	},
	"flow": {
		{words: []string{"flow", "funnel", "conversion", "pipeline", "waterfall", "stages", "drop-off", "dropoff", "transition", "sankey"}, weight: 2},
		{words: []string{"from", "to", "through", "steps"}, weight: 1},
	},
}

// ParseIntent scores the intent string against each primary intent family
// and returns the winner plus the full score map. "unknown" is returned
// when nothing scores above zero.
func ParseIntent(intent string) (string, map[string]float64) {
	lower := strings.ToLower(intent)
	scores := make(map[string]float64, len(intentKeywords))

	for name, families := range intentKeywords {
		total := 0.0
		for _, fam := range families {
			for _, w := range fam.words {
				total += float64(strings.Count(lower, w)) * fam.weight
			}
		}
		scores[name] = total
	}

	best, bestScore := "unknown", 0.0
	// Deterministic order so equal scores always pick the same intent.
	for _, name := range []string{"comparison", "time", "distribution", "composition", "relationship", "flow"} {
		if scores[name] > bestScore {
			best, bestScore = name, scores[name]
		}
	}
	return best, scores
}

// intentCategory maps a primary intent to the pattern category it favors.
func intentCategory(intent string) Category {
	switch intent {
	case "comparison":
		return Comparison
	case "time":
		return Time
	case "distribution":
		return Distribution
	case "composition":
		return Composition
	case "relationship":
		return Relationship
	case "flow":
		return Flow
	}
	return ""
}
