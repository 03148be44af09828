package output

import (
	"encoding/json"
	"fmt"
	"html"
	"sort"
	"strings"

	"dolex/internal/core"
	"dolex/internal/eval"
)

// RenderHTML produces a small self-contained HTML document for a spec: the
// title, a data table, and the spec JSON embedded for external renderers to
// pick up. The full D3-style renderers live outside the server; this is the
// fallback body every tool response can carry.
func RenderHTML(spec *core.VisualizationSpec, columns []string) string {
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\">")
	if spec.Title != "" {
		fmt.Fprintf(&sb, "<title>%s</title>", html.EscapeString(spec.Title))
	}
	sb.WriteString("<style>table{border-collapse:collapse;font:13px sans-serif}td,th{border:1px solid #ccc;padding:4px 8px}</style>")
	sb.WriteString("</head><body>")
	if spec.Title != "" {
		fmt.Fprintf(&sb, "<h2>%s</h2>", html.EscapeString(spec.Title))
	}

	if len(spec.Data) > 0 {
		if len(columns) == 0 {
			columns = columnOrder(spec)
		}
		sb.WriteString("<table><thead><tr>")
		for _, c := range columns {
			fmt.Fprintf(&sb, "<th>%s</th>", html.EscapeString(c))
		}
		sb.WriteString("</tr></thead><tbody>")
		for _, row := range spec.Data {
			sb.WriteString("<tr>")
			for _, c := range columns {
				cell := ""
				if v := row[c]; v != nil {
					cell, _ = eval.Text(v)
				}
				fmt.Fprintf(&sb, "<td>%s</td>", html.EscapeString(cell))
			}
			sb.WriteString("</tr>")
		}
		sb.WriteString("</tbody></table>")
	}

	if encoded, err := json.Marshal(spec); err == nil {
		fmt.Fprintf(&sb, "<script type=\"application/json\" id=\"dolex-spec\">%s</script>", string(encoded))
	}
	sb.WriteString("</body></html>")
	return sb.String()
}

// columnOrder derives a stable column order from the spec encoding, then
// the first data row.
func columnOrder(spec *core.VisualizationSpec) []string {
	var cols []string
	seen := make(map[string]bool)
	for _, channel := range []string{"x", "y", "color", "size", "value", "label"} {
		if name := spec.Encoding[channel]; name != "" && !seen[name] {
			cols = append(cols, name)
			seen[name] = true
		}
	}
	if len(spec.Data) > 0 {
		var rest []string
		for name := range spec.Data[0] {
			if !seen[name] {
				rest = append(rest, name)
			}
		}
		sort.Strings(rest)
		cols = append(cols, rest...)
	}
	return cols
}
