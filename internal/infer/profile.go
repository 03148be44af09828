package infer

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"dolex/internal/core"
	"dolex/internal/eval"
)

// Profile builds a full DataColumn from raw string cell values (empty string
// means null). The row count used for inference is len(cells).
func Profile(name string, cells []string) *core.DataColumn {
	col := &core.DataColumn{Name: name, TotalCount: len(cells)}

	distinct := make(map[string]int)
	order := make([]string, 0)
	for _, cell := range cells {
		if strings.TrimSpace(cell) == "" {
			col.NullCount++
			continue
		}
		if _, seen := distinct[cell]; !seen {
			order = append(order, cell)
		}
		distinct[cell]++
	}
	col.UniqueCount = len(distinct)

	samples := order
	if len(samples) > maxProfileSamples {
		samples = samples[:maxProfileSamples]
	}
	col.Type = ColumnType(name, samples, col.UniqueCount, len(cells))

	display := samples
	if len(display) > maxDisplaySamples {
		display = display[:maxDisplaySamples]
	}
	col.Samples = append([]string(nil), display...)

	switch col.Type {
	case core.TypeNumeric:
		col.Stats = numericStats(cells)
	case core.TypeCategorical:
		col.TopValues = topValues(distinct, 10)
	}
	return col
}

// FromRows profiles every column of inline row data. Columns are the keys
// of the first row, returned in sorted name order.
func FromRows(rows []core.Row) []*core.DataColumn {
	if len(rows) == 0 {
		return nil
	}
	names := make([]string, 0, len(rows[0]))
	for name := range rows[0] {
		names = append(names, name)
	}
	sort.Strings(names)

	cols := make([]*core.DataColumn, 0, len(names))
	for _, name := range names {
		cells := make([]string, len(rows))
		for i, row := range rows {
			if v := row[name]; v != nil {
				s, _ := eval.Text(v)
				cells[i] = s
			}
		}
		cols = append(cols, Profile(name, cells))
	}
	return cols
}

func numericStats(cells []string) *core.NumericStats {
	vals := make([]float64, 0, len(cells))
	for _, c := range cells {
		f, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err == nil {
			vals = append(vals, f)
		}
	}
	if len(vals) == 0 {
		return nil
	}
	stats := &core.NumericStats{Min: vals[0], Max: vals[0]}
	sum := 0.0
	for _, v := range vals {
		if v < stats.Min {
			stats.Min = v
		}
		if v > stats.Max {
			stats.Max = v
		}
		sum += v
	}
	stats.Mean = sum / float64(len(vals))
	stats.Median = eval.Percentile(vals, 50)
	stats.P25 = eval.Percentile(vals, 25)
	stats.P75 = eval.Percentile(vals, 75)

	ss := 0.0
	for _, v := range vals {
		d := v - stats.Mean
		ss += d * d
	}
	if len(vals) > 1 {
		stats.StdDev = math.Sqrt(ss / float64(len(vals)-1))
	}
	return stats
}

func topValues(counts map[string]int, n int) []core.TopValue {
	out := make([]core.TopValue, 0, len(counts))
	for v, c := range counts {
		out = append(out, core.TopValue{Value: v, Count: c})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Count != out[b].Count {
			return out[a].Count > out[b].Count
		}
		return out[a].Value < out[b].Value
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
