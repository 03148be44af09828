package dsl

import "dolex/internal/core"

// capabilities is the pushdown support matrix of one dialect. Operations a
// dialect cannot run natively are flagged for in-process completion by the
// hybrid executor.
type capabilities struct {
	// percentiles covers median, p25, p75, and percentile, which need
	// percentile_cont.
	percentiles bool
	// stddev needs stddev_samp.
	stddev bool
	// windows covers the window-function family.
	windows bool
	// buckets lists the time-bucket units with a native rendering.
	buckets map[string]bool
}

var dialectCaps = map[core.Dialect]capabilities{
	// The embedded engine has window functions but neither percentile_cont
	// nor stddev_samp. strftime covers day/month/year; ISO week and
	// quarter finish in-process.
	core.DialectSQLite: {
		percentiles: false,
		stddev:      false,
		windows:     true,
		buckets:     map[string]bool{"day": true, "month": true, "year": true},
	},
	// MySQL 8 has windows and stddev_samp but no percentile_cont.
	// DATE_FORMAT covers day/month/year, QUARTER() covers quarter; ISO
	// week finishes in-process.
	core.DialectMySQL: {
		percentiles: false,
		stddev:      true,
		windows:     true,
		buckets:     map[string]bool{"day": true, "month": true, "quarter": true, "year": true},
	},
}

func capsFor(d core.Dialect) capabilities {
	if c, ok := dialectCaps[d]; ok {
		return c
	}
	// Unknown dialects get nothing pushed down beyond plain aggregates.
	return capabilities{buckets: map[string]bool{}}
}

// aggregateSupported reports whether agg can compile for the dialect.
func (c capabilities) aggregateSupported(agg string) bool {
	switch agg {
	case "sum", "avg", "min", "max", "count", "count_distinct":
		return true
	case "median", "percentile", "p25", "p75":
		return c.percentiles
	case "stddev":
		return c.stddev
	}
	return false
}

// Pushdown reports whether the whole query can compile to a single native
// statement for the dialect. Window projections push down only when the
// query does not also aggregate: mixing the two needs the executor's
// post-aggregation window pass.
func Pushdown(q *Query, d core.Dialect) bool {
	caps := capsFor(d)
	hasWindow := false
	for _, s := range q.Select {
		if s.IsAggregate() && !caps.aggregateSupported(s.Aggregate) {
			return false
		}
		if s.IsWindow() {
			hasWindow = true
		}
	}
	if hasWindow && (!caps.windows || q.HasAggregation()) {
		return false
	}
	for _, g := range q.GroupBy {
		if g.Bucket != "" && !caps.buckets[g.Bucket] {
			return false
		}
	}
	return true
}
