package dsl

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"dolex/internal/core"
	"dolex/internal/eval"
)

// aggregateRows groups rows by the groupBy keys (bucketing date keys
// in-process) and computes every aggregate select item per group. With no
// groupBy the whole row set is one group.
func aggregateRows(q *Query, rows []core.Row) ([]core.Row, error) {
	type group struct {
		keys core.Row
		rows []core.Row
	}
	var order []string
	groups := make(map[string]*group)

	for _, row := range rows {
		var keyParts []string
		keys := make(core.Row)
		for _, g := range q.GroupBy {
			name := baseName(g.Field)
			v := row[name]
			if g.Bucket != "" {
				v = bucketValue(v, g.Bucket)
			}
			s, _ := eval.Text(v)
			keyParts = append(keyParts, s)
			keys[name] = v
		}
		key := strings.Join(keyParts, "\x00")
		grp, ok := groups[key]
		if !ok {
			grp = &group{keys: keys}
			groups[key] = grp
			order = append(order, key)
		}
		grp.rows = append(grp.rows, row)
	}

	out := make([]core.Row, 0, len(order))
	for _, key := range order {
		grp := groups[key]
		row := make(core.Row)
		for k, v := range grp.keys {
			row[k] = v
		}
		for _, s := range q.Select {
			switch {
			case s.IsAggregate():
				v, err := computeAggregate(&s, grp.rows)
				if err != nil {
					return nil, err
				}
				row[s.OutputName()] = v
			case s.IsWindow():
				// Windows run after aggregation.
			default:
				name := s.OutputName()
				if _, ok := row[name]; !ok && len(grp.rows) > 0 {
					// A bare field outside the group keys takes the
					// group's first value.
					row[name] = grp.rows[0][baseName(s.Field)]
				}
			}
		}
		out = append(out, row)
	}
	return out, nil
}

// bucketValue formats a date value into its bucket label. Week uses ISO
// week numbering. Unparseable values pass through unchanged so they group
// together by raw value.
func bucketValue(v any, unit string) any {
	t, ok := eval.Date(v)
	if !ok {
		return v
	}
	switch unit {
	case "day":
		return t.Format("2006-01-02")
	case "week":
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case "month":
		return t.Format("2006-01")
	case "quarter":
		return fmt.Sprintf("%d-Q%d", t.Year(), (int(t.Month())-1)/3+1)
	case "year":
		return t.Format("2006")
	}
	return v
}

// computeAggregate evaluates one aggregate over a group's rows: min, max,
// and the counts operate on raw values; the numeric aggregates use the
// numeric subset; percentile interpolates linearly; stddev uses the
// population formula.
func computeAggregate(s *SelectItem, rows []core.Row) (any, error) {
	field := baseName(s.Field)

	if s.Aggregate == "count" {
		if s.Field == "" || s.Field == "*" {
			return float64(len(rows)), nil
		}
		n := 0
		for _, row := range rows {
			if row[field] != nil {
				n++
			}
		}
		return float64(n), nil
	}
	if s.Aggregate == "count_distinct" {
		seen := make(map[string]bool)
		for _, row := range rows {
			if v := row[field]; v != nil {
				str, _ := eval.Text(v)
				seen[str] = true
			}
		}
		return float64(len(seen)), nil
	}

	if s.Aggregate == "min" || s.Aggregate == "max" {
		var best any
		for _, row := range rows {
			v := row[field]
			if v == nil {
				continue
			}
			if best == nil {
				best = v
				continue
			}
			c, ok := eval.Compare(v, best)
			if !ok {
				continue
			}
			if (s.Aggregate == "min" && c < 0) || (s.Aggregate == "max" && c > 0) {
				best = v
			}
		}
		return best, nil
	}

	var nums []float64
	for _, row := range rows {
		if f, ok := eval.Number(row[field]); ok {
			nums = append(nums, f)
		}
	}
	if len(nums) == 0 {
		return nil, nil
	}

	switch s.Aggregate {
	case "sum":
		total := 0.0
		for _, v := range nums {
			total += v
		}
		return total, nil
	case "avg":
		total := 0.0
		for _, v := range nums {
			total += v
		}
		return total / float64(len(nums)), nil
	case "median":
		return interpolatedPercentile(nums, 50), nil
	case "p25":
		return interpolatedPercentile(nums, 25), nil
	case "p75":
		return interpolatedPercentile(nums, 75), nil
	case "percentile":
		return interpolatedPercentile(nums, s.Percentile), nil
	case "stddev":
		mean := 0.0
		for _, v := range nums {
			mean += v
		}
		mean /= float64(len(nums))
		ss := 0.0
		for _, v := range nums {
			d := v - mean
			ss += d * d
		}
		return math.Sqrt(ss / float64(len(nums))), nil
	}
	return nil, &core.ValidationError{Entity: "query", Name: s.Aggregate, Message: "unknown aggregate"}
}

func interpolatedPercentile(vals []float64, p float64) float64 {
	sorted := make([]float64, len(vals))
	copy(sorted, vals)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}
