package dsl

import (
	"sort"
	"strings"

	"dolex/internal/core"
	"dolex/internal/eval"
)

// applyWindow computes one window projection in place: partition the rows,
// order each partition, produce the window values, and write them back
// under the item's output name.
func applyWindow(rows []core.Row, s *SelectItem) error {
	field := baseName(s.Field)
	partitionField := baseName(s.PartitionBy)
	orderField := baseName(s.OrderBy)
	out := s.OutputName()

	// Partition row indices, preserving first-seen partition order.
	var partOrder []string
	partitions := make(map[string][]int)
	for i, row := range rows {
		key := ""
		if partitionField != "" {
			key, _ = eval.Text(row[partitionField])
		}
		if _, ok := partitions[key]; !ok {
			partOrder = append(partOrder, key)
		}
		partitions[key] = append(partitions[key], i)
	}

	for _, key := range partOrder {
		idxs := partitions[key]
		if orderField != "" {
			sort.SliceStable(idxs, func(a, b int) bool {
				return lessValue(rows[idxs[a]][orderField], rows[idxs[b]][orderField], false)
			})
		}

		switch s.Window {
		case "lag", "lead":
			offset := s.Offset
			if offset <= 0 {
				offset = 1
			}
			for pos, i := range idxs {
				src := pos - offset
				if s.Window == "lead" {
					src = pos + offset
				}
				if src >= 0 && src < len(idxs) {
					rows[i][out] = rows[idxs[src]][field]
				} else {
					rows[i][out] = s.Default
				}
			}
		case "rank", "dense_rank":
			// Ties (equal order-key values) share a rank; dense leaves no
			// gaps.
			rank, dense := 0, 0
			var prev any
			havePrev := false
			for pos, i := range idxs {
				cur := orderKey(rows[i], orderField)
				if !havePrev || !eval.Equal(cur, prev) {
					rank = pos + 1
					dense++
					prev, havePrev = cur, true
				}
				if s.Window == "rank" {
					rows[i][out] = float64(rank)
				} else {
					rows[i][out] = float64(dense)
				}
			}
		case "row_number":
			for pos, i := range idxs {
				rows[i][out] = float64(pos + 1)
			}
		case "running_sum", "running_avg":
			sum, n := 0.0, 0
			for _, i := range idxs {
				if f, ok := eval.Number(rows[i][field]); ok {
					sum += f
					n++
				}
				if n == 0 {
					rows[i][out] = nil
				} else if s.Window == "running_sum" {
					rows[i][out] = sum
				} else {
					rows[i][out] = sum / float64(n)
				}
			}
		case "pct_of_total":
			total := 0.0
			for _, i := range idxs {
				if f, ok := eval.Number(rows[i][field]); ok {
					total += f
				}
			}
			for _, i := range idxs {
				f, ok := eval.Number(rows[i][field])
				if !ok || total == 0 {
					rows[i][out] = nil
					continue
				}
				rows[i][out] = f * 100 / total
			}
		default:
			return &core.ValidationError{Entity: "query", Name: s.Window, Message: "unknown window function"}
		}
	}
	return nil
}

func orderKey(row core.Row, orderField string) any {
	if orderField == "" {
		return nil
	}
	return row[orderField]
}

// sortRows orders rows by the order-by keys: numeric compare when both
// sides parse as numbers, string compare otherwise; nulls sort last
// ascending and first descending.
func sortRows(rows []core.Row, orderBy []OrderItem) {
	if len(orderBy) == 0 {
		return
	}
	sort.SliceStable(rows, func(a, b int) bool {
		for _, o := range orderBy {
			field := baseName(o.Field)
			desc := strings.EqualFold(o.Direction, "desc")
			av, bv := rows[a][field], rows[b][field]
			if sameValue(av, bv) {
				continue
			}
			return lessValue(av, bv, desc)
		}
		return false
	})
}

func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	c, ok := eval.Compare(a, b)
	return ok && c == 0
}

// lessValue reports whether a sorts before b. With desc the comparison is
// reversed and null placement flips: nulls go last ascending, first
// descending.
func lessValue(a, b any, desc bool) bool {
	if a == nil && b == nil {
		return false
	}
	if a == nil {
		return desc
	}
	if b == nil {
		return !desc
	}
	c, ok := eval.Compare(a, b)
	if !ok {
		return false
	}
	if desc {
		return c > 0
	}
	return c < 0
}
