// Package color applies user color preferences to visualization specs:
// named palettes, a highlighted value, and an explicit or inferred color
// field.
package color

import (
	"fmt"
	"strings"

	"dolex/internal/core"
	"dolex/internal/eval"
)

// Palettes lists the accepted palette names.
var Palettes = []string{"default", "categorical", "sequential", "diverging", "colorblind_safe", "monochrome"}

// Preferences are the optional color knobs of a visualize call.
type Preferences struct {
	Palette    string `json:"palette,omitempty"`
	Highlight  string `json:"highlight,omitempty"`
	ColorField string `json:"colorField,omitempty"`
}

// maxAutoColorCardinality bounds how many distinct values an auto-inferred
// color column may have.
const maxAutoColorCardinality = 10

// Apply mutates the spec's color encoding and config per the preferences
// and returns human-readable notes about what was (or could not be) done.
// The spec is assumed to be the caller's own copy.
func Apply(spec *core.VisualizationSpec, cols []*core.DataColumn, prefs Preferences) []string {
	var notes []string

	if prefs.Palette != "" {
		if validPalette(prefs.Palette) {
			setConfig(spec, "palette", prefs.Palette)
		} else {
			notes = append(notes, fmt.Sprintf("unknown palette %q; using the default (available: %s)", prefs.Palette, strings.Join(Palettes, ", ")))
		}
	}

	if prefs.ColorField != "" {
		if hasColumn(cols, prefs.ColorField) {
			setEncoding(spec, "color", prefs.ColorField)
		} else {
			notes = append(notes, fmt.Sprintf("color field %q does not exist in the data", prefs.ColorField))
		}
	} else if spec.Encoding["color"] == "" {
		if field := inferColorField(spec, cols); field != "" {
			setEncoding(spec, "color", field)
		}
	}

	if prefs.Highlight != "" {
		setConfig(spec, "highlight", prefs.Highlight)
		if !valueExists(spec.Data, spec.Encoding["color"], spec.Encoding["x"], prefs.Highlight) {
			notes = append(notes, fmt.Sprintf("highlight value %q does not appear in the data", prefs.Highlight))
		}
	}
	return notes
}

func validPalette(name string) bool {
	for _, p := range Palettes {
		if strings.EqualFold(p, name) {
			return true
		}
	}
	return false
}

// inferColorField picks a color column: a nominal axis already bound on the
// spec, otherwise the first categorical column with low cardinality.
func inferColorField(spec *core.VisualizationSpec, cols []*core.DataColumn) string {
	for _, channel := range []string{"x", "y"} {
		if name := spec.Encoding[channel]; name != "" {
			for _, c := range cols {
				if strings.EqualFold(c.Name, name) && c.Type == core.TypeCategorical {
					return c.Name
				}
			}
		}
	}
	for _, c := range cols {
		if c.Type == core.TypeCategorical && c.UniqueCount > 0 && c.UniqueCount <= maxAutoColorCardinality {
			return c.Name
		}
	}
	return ""
}

func hasColumn(cols []*core.DataColumn, name string) bool {
	for _, c := range cols {
		if strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

func valueExists(data []core.Row, fields ...string) bool {
	// The last element of fields is the value; the rest are candidate
	// columns to look in.
	if len(fields) < 2 {
		return false
	}
	value := fields[len(fields)-1]
	for _, field := range fields[:len(fields)-1] {
		if field == "" {
			continue
		}
		for _, row := range data {
			if v := row[field]; v != nil {
				s, _ := eval.Text(v)
				if strings.EqualFold(s, value) {
					return true
				}
			}
		}
	}
	return false
}

func setConfig(spec *core.VisualizationSpec, key string, v any) {
	if spec.Config == nil {
		spec.Config = make(map[string]any)
	}
	spec.Config[key] = v
}

func setEncoding(spec *core.VisualizationSpec, channel, field string) {
	if spec.Encoding == nil {
		spec.Encoding = make(map[string]string)
	}
	spec.Encoding[channel] = field
}
