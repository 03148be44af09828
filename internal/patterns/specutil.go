package patterns

import (
	"fmt"
	"strings"

	"dolex/internal/core"
)

// buildSpec assembles a spec with a copy of the input rows so generators
// never alias caller data.
func buildSpec(id, title string, in SpecInput, enc map[string]string, config map[string]any) *core.VisualizationSpec {
	data := make([]core.Row, len(in.Data))
	for i, row := range in.Data {
		cp := make(core.Row, len(row))
		for k, v := range row {
			cp[k] = v
		}
		data[i] = cp
	}
	if title == "" {
		title = in.Title
	}
	return &core.VisualizationSpec{
		Pattern:  id,
		Title:    title,
		Data:     data,
		Encoding: enc,
		Config:   config,
	}
}

// columnOfType returns the name of the n-th column (0-based) of a semantic
// type, in declaration order.
func columnOfType(cols []*core.DataColumn, t core.SemanticType, n int) string {
	seen := 0
	for _, c := range cols {
		if c.Type == t {
			if seen == n {
				return c.Name
			}
			seen++
		}
	}
	return ""
}

func firstNumeric(cols []*core.DataColumn) string  { return columnOfType(cols, core.TypeNumeric, 0) }
func secondNumeric(cols []*core.DataColumn) string { return columnOfType(cols, core.TypeNumeric, 1) }
func thirdNumeric(cols []*core.DataColumn) string  { return columnOfType(cols, core.TypeNumeric, 2) }
func firstCategorical(cols []*core.DataColumn) string {
	return columnOfType(cols, core.TypeCategorical, 0)
}
func secondCategorical(cols []*core.DataColumn) string {
	return columnOfType(cols, core.TypeCategorical, 1)
}

// firstTemporal prefers a date column, falling back to an id or
// categorical axis for ordered data.
func firstTemporal(cols []*core.DataColumn) string {
	if name := columnOfType(cols, core.TypeDate, 0); name != "" {
		return name
	}
	if name := columnOfType(cols, core.TypeID, 0); name != "" {
		return name
	}
	return firstCategorical(cols)
}

// containsAny reports whether the lowercased intent mentions any keyword.
func containsAny(intent string, words ...string) bool {
	lower := strings.ToLower(intent)
	for _, w := range words {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// need fails generation when a required channel has no column to bind.
func need(channel, column string) error {
	if column == "" {
		return fmt.Errorf("no column available for the %s channel", channel)
	}
	return nil
}
