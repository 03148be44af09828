package eval

import (
	"fmt"
	"math"
	"sort"

	"dolex/internal/core"
	"dolex/internal/expr"
)

// colFuncSpec describes a column-wise function: one that needs the whole
// column (optionally per partition group) before the row loop can run.
type colFuncSpec struct {
	name    string
	minArgs int
	maxArgs int
}

var colFuncs = map[string]colFuncSpec{
	"col_mean":        {name: "col_mean", minArgs: 1, maxArgs: 1},
	"col_sd":          {name: "col_sd", minArgs: 1, maxArgs: 1},
	"col_min":         {name: "col_min", minArgs: 1, maxArgs: 1},
	"col_max":         {name: "col_max", minArgs: 1, maxArgs: 1},
	"col_median":      {name: "col_median", minArgs: 1, maxArgs: 1},
	"zscore":          {name: "zscore", minArgs: 1, maxArgs: 1},
	"center":          {name: "center", minArgs: 1, maxArgs: 1},
	"rank":            {name: "rank", minArgs: 1, maxArgs: 1},
	"percentile_rank": {name: "percentile_rank", minArgs: 1, maxArgs: 1},
	"ntile":           {name: "ntile", minArgs: 2, maxArgs: 2},
}

// IsColumnWise reports whether name is a column-wise function.
func IsColumnWise(name string) bool {
	_, ok := colFuncs[name]
	return ok
}

// colKey builds the composite lookup key for a precomputed call. A flat
// string key keeps access O(1) without nested maps.
func colKey(name, column string, extra float64) string {
	return fmt.Sprintf("%s|%s|%g", name, column, extra)
}

// precompute walks the AST, finds every column-wise call, and produces a
// per-row value slice for each. When partitionBy is set, values are computed
// per group and stitched back in row order. Rows where include is false do
// not participate.
func precompute(node expr.Node, rows []core.Row, include []bool, partitionBy string) (map[string][]any, error) {
	out := make(map[string][]any)
	var walkErr error
	expr.Walk(node, func(n expr.Node) {
		call, ok := n.(*expr.Call)
		if !ok || walkErr != nil {
			return
		}
		if _, ok := colFuncs[call.Name]; !ok {
			return
		}
		col, ok := call.Args[0].(*expr.Column)
		if !ok {
			walkErr = fmt.Errorf("%s requires a column reference as its first argument", call.Name)
			return
		}
		extra := 0.0
		if call.Name == "ntile" {
			num, ok := call.Args[1].(*expr.Number)
			if !ok || num.Value < 1 {
				walkErr = fmt.Errorf("ntile requires a positive bucket count literal")
				return
			}
			extra = math.Trunc(num.Value)
		}
		key := colKey(call.Name, col.Name, extra)
		if _, done := out[key]; done {
			return
		}
		out[key] = computeColumnWise(call.Name, col.Name, extra, rows, include, partitionBy)
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return out, nil
}

func computeColumnWise(name, column string, extra float64, rows []core.Row, include []bool, partitionBy string) []any {
	result := make([]any, len(rows))

	// Group row indices by partition value ("" when unpartitioned).
	groups := make(map[string][]int)
	order := make([]string, 0)
	for i := range rows {
		if include != nil && !include[i] {
			continue
		}
		key := ""
		if partitionBy != "" {
			key, _ = Text(rows[i][partitionBy])
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	for _, key := range order {
		idxs := groups[key]
		fillColumnWiseGroup(name, column, extra, rows, idxs, result)
	}
	return result
}

func fillColumnWiseGroup(name, column string, extra float64, rows []core.Row, idxs []int, result []any) {
	// The numeric subset of the group, remembering which row each value
	// came from.
	vals := make([]float64, 0, len(idxs))
	valIdx := make([]int, 0, len(idxs))
	for _, i := range idxs {
		if n, ok := Number(rows[i][column]); ok {
			vals = append(vals, n)
			valIdx = append(valIdx, i)
		}
	}
	if len(vals) == 0 {
		return
	}

	switch name {
	case "col_mean", "center", "zscore", "col_sd":
		mean := meanOf(vals)
		sd := sampleStdDev(vals, mean)
		for k, i := range valIdx {
			switch name {
			case "col_mean":
				result[i] = mean
			case "center":
				result[i] = vals[k] - mean
			case "col_sd":
				result[i] = sd
			case "zscore":
				if sd == 0 {
					result[i] = nil
				} else {
					result[i] = (vals[k] - mean) / sd
				}
			}
		}
	case "col_min":
		m := vals[0]
		for _, v := range vals[1:] {
			m = math.Min(m, v)
		}
		for _, i := range valIdx {
			result[i] = m
		}
	case "col_max":
		m := vals[0]
		for _, v := range vals[1:] {
			m = math.Max(m, v)
		}
		for _, i := range valIdx {
			result[i] = m
		}
	case "col_median":
		med := Percentile(vals, 50)
		for _, i := range valIdx {
			result[i] = med
		}
	case "rank":
		for k, i := range valIdx {
			result[i] = denseRank(vals, vals[k])
		}
	case "percentile_rank":
		n := len(vals)
		for k, i := range valIdx {
			if n == 1 {
				result[i] = 0.0
				continue
			}
			below := 0
			for _, v := range vals {
				if v < vals[k] {
					below++
				}
			}
			result[i] = float64(below) / float64(n-1)
		}
	case "ntile":
		n := int(extra)
		sorted := make([]int, len(valIdx))
		for k := range sorted {
			sorted[k] = k
		}
		sort.SliceStable(sorted, func(a, b int) bool { return vals[sorted[a]] < vals[sorted[b]] })
		for pos, k := range sorted {
			bucket := pos*n/len(sorted) + 1
			if bucket > n {
				bucket = n
			}
			result[valIdx[k]] = float64(bucket)
		}
	}
}

// denseRank is 1-based: equal values share a rank and ranks leave no gaps.
func denseRank(vals []float64, v float64) float64 {
	distinctBelow := make(map[float64]bool)
	for _, o := range vals {
		if o < v {
			distinctBelow[o] = true
		}
	}
	return float64(len(distinctBelow) + 1)
}

func meanOf(vals []float64) float64 {
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// sampleStdDev is the n-1 formula used by col_sd and zscore.
func sampleStdDev(vals []float64, mean float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	ss := 0.0
	for _, v := range vals {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(vals)-1))
}

// Percentile returns the p-th percentile (0-100) of vals using linear
// interpolation on the sorted values.
func Percentile(vals []float64, p float64) float64 {
	if len(vals) == 0 {
		return math.NaN()
	}
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
