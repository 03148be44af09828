// Package infer classifies raw column data into semantic types and builds
// column profiles. It serves both the CSV connector (which profiles staged
// tables) and tool handlers that receive inline row data.
package infer

import (
	"regexp"
	"strconv"
	"strings"

	"dolex/internal/core"
)

// maxProfileSamples is how many distinct non-empty values inference looks at.
const maxProfileSamples = 30

// maxDisplaySamples is how many samples a DataColumn carries for display.
const maxDisplaySamples = 20

var (
	datePrefixRe  = regexp.MustCompile(`^\d{4}[-/]\d{1,2}([-/]\d{1,2})?([T ].*)?$`)
	quarterRe     = regexp.MustCompile(`^\d{4}-Q[1-4]$`)
	isoWeekRe     = regexp.MustCompile(`^\d{4}-W\d{2}$`)
	yearNameRe    = regexp.MustCompile(`(?i)(^|_)(year|yr|cohort|fy|fiscal)(_|$)`)
	dateNameHints = []string{"date", "time", "year", "timestamp"}
)

// ColumnType infers the semantic type of a column from its name, a bounded
// sample of distinct values, its unique count, and the table row count.
//
// The precedence mirrors how analysts read a table: id-ness from the name
// and cardinality first, then recognizable date shapes, then numbers, then
// long free text, with categorical as the fallback.
func ColumnType(name string, samples []string, uniqueCount, rowCount int) core.SemanticType {
	lower := strings.ToLower(name)

	if isIDColumn(lower, uniqueCount, rowCount) {
		return core.TypeID
	}
	if isDateColumn(lower, samples) {
		return core.TypeDate
	}
	if yearLike(lower, samples, uniqueCount) {
		// Year-valued numeric columns chart as time axes, not quantities.
		// On ambiguity with plain numerics, date wins.
		return core.TypeDate
	}
	if numericShare(samples) > 0.7 {
		return core.TypeNumeric
	}
	if isFreeText(samples, uniqueCount, rowCount) {
		return core.TypeText
	}
	return core.TypeCategorical
}

func isIDColumn(lower string, uniqueCount, rowCount int) bool {
	if lower == "id" {
		return rowCount == 0 || float64(uniqueCount) > 0.9*float64(rowCount)
	}
	if strings.HasSuffix(lower, "_id") {
		return true
	}
	if strings.HasSuffix(lower, "id") && rowCount > 0 && float64(uniqueCount) > 0.5*float64(rowCount) {
		return true
	}
	return false
}

func isDateColumn(lower string, samples []string) bool {
	for _, hint := range dateNameHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	if len(samples) == 0 {
		return false
	}
	for _, s := range samples {
		if !looksLikeDate(s) {
			return false
		}
	}
	return true
}

func looksLikeDate(s string) bool {
	s = strings.TrimSpace(s)
	return datePrefixRe.MatchString(s) || quarterRe.MatchString(s) || isoWeekRe.MatchString(s)
}

// yearLike detects integer columns that hold calendar years: values in
// [1900, 2100], a year-family column name, and low cardinality relative to
// the range.
func yearLike(lower string, samples []string, uniqueCount int) bool {
	if !yearNameRe.MatchString(lower) {
		return false
	}
	if len(samples) == 0 || uniqueCount > 200 {
		return false
	}
	for _, s := range samples {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || f != float64(int(f)) || f < 1900 || f > 2100 {
			return false
		}
	}
	return true
}

func numericShare(samples []string) float64 {
	if len(samples) == 0 {
		return 0
	}
	numeric := 0
	for _, s := range samples {
		if _, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			numeric++
		}
	}
	return float64(numeric) / float64(len(samples))
}

func isFreeText(samples []string, uniqueCount, rowCount int) bool {
	if len(samples) == 0 {
		return false
	}
	total := 0
	for _, s := range samples {
		total += len(s)
	}
	avg := float64(total) / float64(len(samples))
	if avg > 100 {
		return true
	}
	return rowCount > 0 && float64(uniqueCount) > 0.8*float64(rowCount) && avg > 20
}
