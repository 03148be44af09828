// Package output defines the JSON payload shapes the tool handlers return
// and the helpers that render them. Tools respond with a single JSON text
// body; payloads keep data small by carrying handles and summaries instead
// of echoing rows back unnecessarily.
package output

import (
	"encoding/json"

	"dolex/internal/core"
	"dolex/internal/oplog"
	"dolex/internal/transform"
)

// SourcePayload is the add_source / load_csv response body.
type SourcePayload struct {
	SourceID    string             `json:"sourceId"`
	Name        string             `json:"name"`
	Type        core.SourceType    `json:"type"`
	Message     string             `json:"message"`
	Tables      []*TableSummary    `json:"tables"`
	ForeignKeys []*core.ForeignKey `json:"foreignKeys,omitempty"`
	Warnings    []string           `json:"warnings,omitempty"`
}

// TableSummary is a compact or full table description, depending on the
// requested detail level.
type TableSummary struct {
	Name       string           `json:"name"`
	RowCount   int              `json:"rowCount"`
	Columns    []*ColumnSummary `json:"columns"`
	SampleRows []core.Row       `json:"sampleRows,omitempty"`
}

// ColumnSummary is one column, compact by default.
type ColumnSummary struct {
	Name      string             `json:"name"`
	Type      core.SemanticType  `json:"type"`
	Samples   []string           `json:"samples,omitempty"`
	Unique    int                `json:"uniqueCount,omitempty"`
	Nulls     int                `json:"nullCount,omitempty"`
	Stats     *core.NumericStats `json:"stats,omitempty"`
	TopValues []core.TopValue    `json:"topValues,omitempty"`
}

// SummarizeTable converts a schema table at the requested detail level:
// "compact" keeps names and types only, "full" keeps the whole profile.
func SummarizeTable(t *core.SchemaTable, detail string) *TableSummary {
	out := &TableSummary{Name: t.Name, RowCount: t.RowCount}
	for _, c := range t.Columns {
		col := &ColumnSummary{Name: c.Name, Type: c.Type}
		if detail == "full" {
			col.Samples = c.Samples
			col.Unique = c.UniqueCount
			col.Nulls = c.NullCount
			col.Stats = c.Stats
			col.TopValues = c.TopValues
		}
		out.Columns = append(out.Columns, col)
	}
	return out
}

// QueryPayload is the query_source / query_dsl response body.
type QueryPayload struct {
	ResultID  string     `json:"resultId"`
	Columns   []string   `json:"columns"`
	Rows      []core.Row `json:"rows"`
	TotalRows int        `json:"totalRows"`
	Truncated bool       `json:"truncated"`
}

// ListPayload is the list_sources response body.
type ListPayload struct {
	Sources []*core.Source `json:"sources"`
}

// TransformPayload is the transform_data response body.
type TransformPayload struct {
	Columns  []transform.ColumnResult `json:"columns"`
	Working  int                      `json:"workingCount"`
	Derived  int                      `json:"derivedCount"`
	Manifest string                   `json:"manifest,omitempty"`
}

// TransformListPayload is the list_transforms response body.
type TransformListPayload struct {
	Transforms []*core.TransformRecord `json:"transforms"`
	Working    int                     `json:"workingCount"`
	Derived    int                     `json:"derivedCount"`
}

// PromotePayload is the promote_columns response body.
type PromotePayload struct {
	Promoted []string `json:"promoted"`
	Derived  int      `json:"derivedCount"`
	Manifest string   `json:"manifest,omitempty"`
}

// DropPayload is the drop_columns response body.
type DropPayload struct {
	Dropped  []string `json:"dropped"`
	Restored []string `json:"restored,omitempty"`
	Working  int      `json:"workingCount"`
	Derived  int      `json:"derivedCount"`
}

// VisualizePayload is the visualize / visualize_from_source response body.
type VisualizePayload struct {
	SpecID       string           `json:"specId"`
	Recommended  *PatternChoice   `json:"recommended"`
	Alternatives []*PatternChoice `json:"alternatives,omitempty"`
	DataShape    *DataShape       `json:"dataShape"`
	Notes        []string         `json:"notes,omitempty"`
	HTML         string           `json:"html,omitempty"`
	ResultID     string           `json:"resultId,omitempty"`
}

// PatternChoice is one recommended or alternative pattern.
type PatternChoice struct {
	Pattern   string  `json:"pattern"`
	Title     string  `json:"title,omitempty"`
	Category  string  `json:"category"`
	Score     float64 `json:"score,omitempty"`
	Reasoning string  `json:"reasoning"`
}

// DataShape summarizes what the selector saw.
type DataShape struct {
	RowCount        int    `json:"rowCount"`
	NumericCols     int    `json:"numericColumns"`
	CategoricalCols int    `json:"categoricalColumns"`
	DateCols        int    `json:"dateColumns"`
	Intent          string `json:"detectedIntent"`
}

// RefinePayload is the refine_visualization response body.
type RefinePayload struct {
	SpecID  string   `json:"specId"`
	Changes []string `json:"changes"`
}

// PatternsPayload is the list_patterns response body.
type PatternsPayload struct {
	Patterns    []*PatternInfo `json:"patterns"`
	ColorSystem []string       `json:"colorSystem"`
}

// PatternInfo describes one registered pattern.
type PatternInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Description string `json:"description"`
	BestFor     string `json:"bestFor"`
	NotFor      string `json:"notFor"`
}

// StatusPayload is the server_status response body.
type StatusPayload struct {
	Version       string        `json:"version"`
	UptimeSeconds int64         `json:"uptimeSeconds"`
	Sources       int           `json:"sources"`
	Connected     int           `json:"connected"`
	ResultCache   int           `json:"resultCacheSize"`
	SpecStore     int           `json:"specStoreSize"`
	Operations    []oplog.Entry `json:"recentOperations,omitempty"`
}

// ErrorPayload is the uniform error body.
type ErrorPayload struct {
	Error string `json:"error"`
}

// Marshal renders a payload as compact JSON. Marshal failures fall back to
// an error body rather than failing the tool call.
func Marshal(payload any) string {
	b, err := json.Marshal(payload)
	if err != nil {
		fallback, _ := json.Marshal(ErrorPayload{Error: "failed to encode response: " + err.Error()})
		return string(fallback)
	}
	return string(b)
}
