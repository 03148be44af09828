package tools

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"dolex/internal/color"
	"dolex/internal/core"
	"dolex/internal/dsl"
	"dolex/internal/eval"
	"dolex/internal/infer"
	"dolex/internal/output"
	"dolex/internal/patterns"
)

func registerVisualizeTools(s *server.MCPServer, d *Deps) {
	s.AddTool(mcp.NewTool("visualize",
		mcp.WithDescription("Recommend a visualization for data (inline rows, a cached resultId, or sourceId+sql), generate its spec, and return a rendered HTML body plus alternatives."),
		mcp.WithArray("data", mcp.Description("Inline data rows")),
		mcp.WithString("resultId", mcp.Description("A qr-... handle from a prior query")),
		mcp.WithString("sourceId", mcp.Description("Source ID or name, combined with sql")),
		mcp.WithString("sql", mcp.Description("SELECT to run against sourceId")),
		mcp.WithString("intent", mcp.Required(), mcp.Description("What the chart should communicate, in plain language")),
		mcp.WithString("pattern", mcp.Description("Force a specific pattern ID")),
		mcp.WithString("title", mcp.Description("Chart title")),
		mcp.WithBoolean("includeDataTable", mcp.Description("Include the data table in the HTML body (default true)")),
		mcp.WithNumber("maxAlternativeChartTypes", mcp.Description("How many alternatives to return (default 3)")),
		mcp.WithString("palette", mcp.Description("Color palette name")),
		mcp.WithString("highlight", mcp.Description("Category value to emphasize")),
		mcp.WithString("colorField", mcp.Description("Column driving the color encoding")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		res, err := handleVisualize(ctx, d, argsOf(req))
		d.track("visualize", start, err)
		if err != nil {
			return fail(err), nil
		}
		return respond(res), nil
	})

	s.AddTool(mcp.NewTool("visualize_from_source",
		mcp.WithDescription("Run a DSL query against a source and visualize the result in one call."),
		mcp.WithString("sourceId", mcp.Required(), mcp.Description("Source ID or name")),
		mcp.WithString("table", mcp.Required(), mcp.Description("Base table name")),
		mcp.WithObject("query", mcp.Required(), mcp.Description("The DSL query value")),
		mcp.WithString("intent", mcp.Required(), mcp.Description("What the chart should communicate")),
		mcp.WithString("pattern", mcp.Description("Force a specific pattern ID")),
		mcp.WithString("title", mcp.Description("Chart title")),
		mcp.WithBoolean("includeDataTable", mcp.Description("Include the data table in the HTML body (default true)")),
		mcp.WithNumber("maxAlternativeChartTypes", mcp.Description("How many alternatives to return (default 3)")),
		mcp.WithString("palette", mcp.Description("Color palette name")),
		mcp.WithString("highlight", mcp.Description("Category value to emphasize")),
		mcp.WithString("colorField", mcp.Description("Column driving the color encoding")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		res, err := handleVisualizeFromSource(ctx, d, argsOf(req))
		d.track("visualize_from_source", start, err)
		if err != nil {
			return fail(err), nil
		}
		return respond(res), nil
	})

	s.AddTool(mcp.NewTool("refine_visualization",
		mcp.WithDescription("Adjust a stored visualization: switch pattern, re-sort the data, or change color preferences. Returns a new specId."),
		mcp.WithString("specId", mcp.Required(), mcp.Description("A spec-... handle")),
		mcp.WithString("pattern", mcp.Description("Switch to this pattern ID")),
		mcp.WithString("sortBy", mcp.Description("Column to sort the data by")),
		mcp.WithString("sortDirection", mcp.Description("asc (default) or desc")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("palette", mcp.Description("Color palette name")),
		mcp.WithString("highlight", mcp.Description("Category value to emphasize")),
		mcp.WithString("colorField", mcp.Description("Column driving the color encoding")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		res, err := handleRefine(d, argsOf(req))
		d.track("refine_visualization", start, err)
		if err != nil {
			return fail(err), nil
		}
		return respond(res), nil
	})

	s.AddTool(mcp.NewTool("list_patterns",
		mcp.WithDescription("List every registered visualization pattern and the color system."),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		d.track("list_patterns", start, nil)
		payload := output.PatternsPayload{ColorSystem: color.Palettes}
		for _, p := range patterns.All() {
			payload.Patterns = append(payload.Patterns, &output.PatternInfo{
				ID:          p.ID,
				Name:        p.Name,
				Category:    string(p.Category),
				Description: p.Description,
				BestFor:     p.BestFor,
				NotFor:      p.NotFor,
			})
		}
		return respond(payload), nil
	})
}

// resolveVisualizeRows obtains the rows to visualize from one of the three
// accepted inputs.
func resolveVisualizeRows(ctx context.Context, d *Deps, a args) ([]core.Row, string, error) {
	switch {
	case a.has("data"):
		var rows []core.Row
		if err := a.object("data", &rows); err != nil {
			return nil, "", err
		}
		return rows, "", nil
	case a.str("resultId") != "":
		id := a.str("resultId")
		entry, ok := d.Results.Get(id)
		if !ok {
			return nil, "", &core.ValidationError{Entity: "result", Name: id, Message: "not found or evicted; re-run the query"}
		}
		return entry.Value.Rows, id, nil
	case a.str("sourceId") != "" && a.str("sql") != "":
		res, err := d.Manager.QuerySQL(ctx, a.str("sourceId"), a.str("sql"), 0)
		if err != nil {
			return nil, "", err
		}
		resultID := d.Results.Put(CachedResult{Columns: res.Columns, Rows: res.Rows})
		return res.Rows, resultID, nil
	}
	return nil, "", &core.ValidationError{Entity: "visualize", Message: "provide data, resultId, or sourceId+sql"}
}

func handleVisualize(ctx context.Context, d *Deps, a args) (*output.VisualizePayload, error) {
	rows, resultID, err := resolveVisualizeRows(ctx, d, a)
	if err != nil {
		return nil, err
	}
	payload, err := visualizeRows(d, a, rows)
	if err != nil {
		return nil, err
	}
	payload.ResultID = resultID
	return payload, nil
}

func handleVisualizeFromSource(ctx context.Context, d *Deps, a args) (*output.VisualizePayload, error) {
	id, err := a.requireStr("sourceId")
	if err != nil {
		return nil, err
	}
	table, err := a.requireStr("table")
	if err != nil {
		return nil, err
	}
	var q dsl.Query
	if err := a.object("query", &q); err != nil {
		return nil, err
	}
	res, err := d.Exec.Execute(ctx, id, table, &q)
	if err != nil {
		return nil, err
	}
	resultID := d.Results.Put(CachedResult{Columns: res.Columns, Rows: res.Rows})

	payload, err := visualizeRows(d, a, res.Rows)
	if err != nil {
		return nil, err
	}
	payload.ResultID = resultID
	return payload, nil
}

// visualizeRows runs selection, color preferences, spec storage, and HTML
// rendering over resolved rows.
func visualizeRows(d *Deps, a args, rows []core.Row) (*output.VisualizePayload, error) {
	intent, err := a.requireStr("intent")
	if err != nil {
		return nil, err
	}
	cols := infer.FromRows(rows)

	sel, err := patterns.Select(rows, cols, intent, patterns.Options{
		ForcePattern:    a.str("pattern"),
		MaxAlternatives: int(a.num("maxAlternativeChartTypes", 0)),
		Title:           a.str("title"),
	})
	if err != nil {
		return nil, err
	}

	spec := sel.Recommended.Spec
	notes := color.Apply(spec, cols, color.Preferences{
		Palette:    a.str("palette"),
		Highlight:  a.str("highlight"),
		ColorField: a.str("colorField"),
	})
	notes = append(sel.Notes, notes...)

	var altSpecs []*core.VisualizationSpec
	var altChoices []*output.PatternChoice
	for _, alt := range sel.Alternatives {
		altSpecs = append(altSpecs, alt.Spec)
		altChoices = append(altChoices, &output.PatternChoice{
			Pattern:   alt.Pattern.ID,
			Category:  string(alt.Pattern.Category),
			Score:     alt.Score,
			Reasoning: alt.Reasoning,
		})
	}

	specID := d.Specs.Put(StoredSpec{Spec: spec, Alternatives: altSpecs})

	htmlBody := ""
	includeTable := true
	if a.has("includeDataTable") {
		includeTable = a.boolean("includeDataTable")
	}
	if includeTable {
		htmlBody = output.RenderHTML(spec, nil)
	} else {
		bare := spec.Clone()
		bare.Data = nil
		htmlBody = output.RenderHTML(bare, nil)
	}

	ctx := patterns.BuildContext(rows, cols, intent)
	return &output.VisualizePayload{
		SpecID: specID,
		Recommended: &output.PatternChoice{
			Pattern:   sel.Recommended.Pattern.ID,
			Title:     spec.Title,
			Category:  string(sel.Recommended.Pattern.Category),
			Score:     sel.Recommended.Score,
			Reasoning: sel.Recommended.Reasoning,
		},
		Alternatives: altChoices,
		DataShape: &output.DataShape{
			RowCount:        ctx.RowCount,
			NumericCols:     ctx.NumericCols,
			CategoricalCols: ctx.CategoricalCols,
			DateCols:        ctx.DateCols,
			Intent:          sel.Intent,
		},
		Notes: notes,
		HTML:  htmlBody,
	}, nil
}

func handleRefine(d *Deps, a args) (*output.RefinePayload, error) {
	id, err := a.requireStr("specId")
	if err != nil {
		return nil, err
	}
	entry, ok := d.Specs.Get(id)
	if !ok {
		return nil, &core.ValidationError{Entity: "spec", Name: id, Message: "not found or evicted; visualize again"}
	}

	spec := entry.Value.Spec.Clone()
	cols := infer.FromRows(spec.Data)
	var changes []string

	if pat := a.str("pattern"); pat != "" {
		p, ok := patterns.Lookup(pat)
		if !ok {
			return nil, &core.ValidationError{Entity: "pattern", Name: pat, Message: "unknown pattern ID; see list_patterns"}
		}
		regenerated, err := p.GenerateSpec(patterns.SpecInput{Data: spec.Data, Columns: cols, Title: spec.Title})
		if err != nil {
			return nil, fmt.Errorf("pattern %s cannot render this data: %w", pat, err)
		}
		regenerated.Config = mergeConfig(regenerated.Config, spec.Config)
		spec = regenerated
		changes = append(changes, fmt.Sprintf("switched pattern to %s", pat))
	}

	if sortBy := a.str("sortBy"); sortBy != "" {
		dir := a.str("sortDirection")
		if dir == "" {
			dir = "asc"
		}
		sortSpecData(spec, sortBy, dir)
		changes = append(changes, fmt.Sprintf("sorted by %s %s", sortBy, dir))
	}

	if title := a.str("title"); title != "" {
		spec.Title = title
		changes = append(changes, "updated title")
	}

	prefs := color.Preferences{
		Palette:    a.str("palette"),
		Highlight:  a.str("highlight"),
		ColorField: a.str("colorField"),
	}
	if prefs.Palette != "" || prefs.Highlight != "" || prefs.ColorField != "" {
		notes := color.Apply(spec, cols, prefs)
		changes = append(changes, "applied color preferences")
		changes = append(changes, notes...)
	}

	if len(changes) == 0 {
		return nil, &core.ValidationError{Entity: "refine", Message: "no overrides given"}
	}

	newID := d.Specs.Put(StoredSpec{Spec: spec, Alternatives: entry.Value.Alternatives})
	return &output.RefinePayload{SpecID: newID, Changes: changes}, nil
}

// sortSpecData orders the spec's data rows by one column, numeric-aware,
// nulls last ascending and first descending.
func sortSpecData(spec *core.VisualizationSpec, field, direction string) {
	desc := direction == "desc"
	sort.SliceStable(spec.Data, func(a, b int) bool {
		av, bv := spec.Data[a][field], spec.Data[b][field]
		if av == nil && bv == nil {
			return false
		}
		if av == nil {
			return desc
		}
		if bv == nil {
			return !desc
		}
		c, ok := eval.Compare(av, bv)
		if !ok {
			return false
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func mergeConfig(base, overlay map[string]any) map[string]any {
	if overlay == nil {
		return base
	}
	if base == nil {
		base = make(map[string]any)
	}
	for k, v := range overlay {
		if _, ok := base[k]; !ok {
			base[k] = v
		}
	}
	return base
}
