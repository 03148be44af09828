package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"dolex/internal/core"
	"dolex/internal/output"
	"dolex/internal/source"
)

// sampleRowCount is how many display rows describe_source returns at full
// detail.
const sampleRowCount = 5

func registerSourceTools(s *server.MCPServer, d *Deps) {
	addSource := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		res, err := handleAddSource(ctx, d, argsOf(req))
		d.track("add_source", start, err)
		if err != nil {
			return fail(err), nil
		}
		return respond(res), nil
	}

	s.AddTool(mcp.NewTool("add_source",
		mcp.WithDescription("Register a tabular data source (CSV file or directory, SQLite database, or MySQL DSN) and return its schema. Re-adding a known name reconnects it."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Stable display name for the source")),
		mcp.WithString("path", mcp.Description("Local filesystem path to a CSV file, CSV directory, or SQLite database")),
		mcp.WithString("dsn", mcp.Description("MySQL DSN for type=mysql sources")),
		mcp.WithString("type", mcp.Description("Source type: csv, sqlite, or mysql; inferred from the path when omitted")),
		mcp.WithString("detail", mcp.Description("Schema detail level: compact (default) or full")),
	), addSource)

	// load_csv is the historical alias of add_source for CSV paths.
	s.AddTool(mcp.NewTool("load_csv",
		mcp.WithDescription("Load a CSV file or directory as a source. Alias of add_source with type=csv."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Stable display name for the source")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Local filesystem path to a CSV file or directory")),
		mcp.WithString("detail", mcp.Description("Schema detail level: compact (default) or full")),
	), addSource)

	s.AddTool(mcp.NewTool("describe_source",
		mcp.WithDescription("Describe one table of a source: row count, per-column profile, and sample rows."),
		mcp.WithString("sourceId", mcp.Required(), mcp.Description("Source ID or name")),
		mcp.WithString("table", mcp.Required(), mcp.Description("Table name")),
		mcp.WithString("detail", mcp.Description("compact or full (default full)")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		res, err := handleDescribe(ctx, d, argsOf(req))
		d.track("describe_source", start, err)
		if err != nil {
			return fail(err), nil
		}
		return respond(res), nil
	})

	s.AddTool(mcp.NewTool("list_sources",
		mcp.WithDescription("List every registered source."),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		d.track("list_sources", start, nil)
		return respond(output.ListPayload{Sources: d.Manager.List()}), nil
	})

	s.AddTool(mcp.NewTool("remove_source",
		mcp.WithDescription("Close and deregister a source."),
		mcp.WithString("sourceId", mcp.Required(), mcp.Description("Source ID or name")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		id, err := argsOf(req).requireStr("sourceId")
		if err == nil {
			err = d.Manager.Remove(id)
		}
		d.track("remove_source", start, err)
		if err != nil {
			return fail(err), nil
		}
		return respond(map[string]any{"ok": true}), nil
	})
}

func handleAddSource(ctx context.Context, d *Deps, a args) (*output.SourcePayload, error) {
	name, err := a.requireStr("name")
	if err != nil {
		return nil, err
	}
	cfg := core.SourceConfig{Path: a.str("path"), DSN: a.str("dsn"), Delimiter: a.str("delimiter")}
	typ, err := resolveSourceType(a.str("type"), cfg)
	if err != nil {
		return nil, err
	}

	res, err := d.Manager.Add(ctx, name, typ, cfg)
	if err != nil {
		return nil, err
	}
	schema, err := d.Manager.Schema(ctx, res.Source.ID)
	if err != nil {
		return nil, err
	}

	detail := a.str("detail")
	payload := &output.SourcePayload{
		SourceID:    res.Source.ID,
		Name:        res.Source.Name,
		Type:        res.Source.Type,
		Message:     "Loaded",
		ForeignKeys: schema.ForeignKeys,
		Warnings:    res.ReplayNotes,
	}
	if res.Reconnected {
		payload.Message = "Reconnected"
	}
	for _, t := range schema.Tables {
		payload.Tables = append(payload.Tables, output.SummarizeTable(t, detail))
	}
	return payload, nil
}

// resolveSourceType infers the connector from the explicit type, the DSN,
// or the path: directories and .csv files load as CSV, .sqlite/.db files
// open as SQLite.
func resolveSourceType(explicit string, cfg core.SourceConfig) (core.SourceType, error) {
	if explicit != "" {
		if !core.ValidSourceType(explicit) {
			return "", &core.ValidationError{Entity: "source", Field: "type", Message: "must be csv, sqlite, or mysql"}
		}
		return core.SourceType(strings.ToLower(explicit)), nil
	}
	if cfg.DSN != "" {
		return core.SourceMySQL, nil
	}
	if cfg.Path == "" {
		return "", &core.ValidationError{Entity: "source", Message: "either path or dsn is required"}
	}

	path := source.ExpandPath(cfg.Path)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", &core.ValidationError{Entity: "source", Name: cfg.Path, Message: "Path not found"}
		}
		return "", err
	}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return "", err
		}
		hasCSV, hasSQLite := false, false
		for _, e := range entries {
			switch strings.ToLower(filepath.Ext(e.Name())) {
			case ".csv":
				hasCSV = true
			case ".sqlite", ".db":
				hasSQLite = true
			}
		}
		if hasCSV {
			return core.SourceCSV, nil
		}
		if hasSQLite {
			return core.SourceSQLite, nil
		}
		return "", &core.ValidationError{Entity: "source", Name: cfg.Path, Message: "directory contains neither CSV nor SQLite files"}
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return core.SourceCSV, nil
	case ".sqlite", ".sqlite3", ".db":
		return core.SourceSQLite, nil
	}
	return "", &core.ValidationError{Entity: "source", Name: cfg.Path, Message: "cannot infer source type; pass type explicitly"}
}

func handleDescribe(ctx context.Context, d *Deps, a args) (*output.TableSummary, error) {
	id, err := a.requireStr("sourceId")
	if err != nil {
		return nil, err
	}
	table, err := a.requireStr("table")
	if err != nil {
		return nil, err
	}

	schema, err := d.Manager.Schema(ctx, id)
	if err != nil {
		return nil, err
	}
	t := schema.FindTable(table)
	if t == nil {
		return nil, &core.ValidationError{
			Entity:  "table",
			Name:    table,
			Message: "not found (available: " + strings.Join(schema.TableNames(), ", ") + ")",
		}
	}

	detail := a.str("detail")
	if detail == "" {
		detail = "full"
	}
	summary := output.SummarizeTable(t, detail)
	if detail == "full" {
		rows, err := d.Manager.Sample(ctx, id, table, sampleRowCount)
		if err != nil {
			return nil, err
		}
		summary.SampleRows = rows
	}
	return summary, nil
}
