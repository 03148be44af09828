package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"dolex/internal/core"
	"dolex/internal/dsl"
	"dolex/internal/output"
)

func registerQueryTools(s *server.MCPServer, d *Deps) {
	s.AddTool(mcp.NewTool("query_source",
		mcp.WithDescription("Run a read-only SQL SELECT against a source. Results are cached and referenced by the returned resultId."),
		mcp.WithString("sourceId", mcp.Required(), mcp.Description("Source ID or name")),
		mcp.WithString("sql", mcp.Required(), mcp.Description("A single SELECT or WITH statement")),
		mcp.WithNumber("maxRows", mcp.Description("Row cap for the result (default and maximum 10000)")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		res, err := handleQuerySQL(ctx, d, argsOf(req))
		d.track("query_source", start, err)
		if err != nil {
			return fail(err), nil
		}
		return respond(res), nil
	})

	s.AddTool(mcp.NewTool("query_dsl",
		mcp.WithDescription("Run a structured DSL query (joins, aggregates, windows, time buckets, having) against a table of a source."),
		mcp.WithString("sourceId", mcp.Required(), mcp.Description("Source ID or name")),
		mcp.WithString("table", mcp.Required(), mcp.Description("Base table name")),
		mcp.WithObject("query", mcp.Required(), mcp.Description("The DSL query value")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		res, err := handleQueryDSL(ctx, d, argsOf(req))
		d.track("query_dsl", start, err)
		if err != nil {
			return fail(err), nil
		}
		return respond(res), nil
	})

	s.AddTool(mcp.NewTool("get_result",
		mcp.WithDescription("Fetch rows from the result cache by resultId. Returns null when the entry was evicted."),
		mcp.WithString("resultId", mcp.Required(), mcp.Description("A qr-... handle from a prior query")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		id, err := argsOf(req).requireStr("resultId")
		d.track("get_result", start, err)
		if err != nil {
			return fail(err), nil
		}
		entry, ok := d.Results.Get(id)
		if !ok {
			return respond(map[string]any{"resultId": id, "rows": nil}), nil
		}
		return respond(output.QueryPayload{
			ResultID:  id,
			Columns:   entry.Value.Columns,
			Rows:      entry.Value.Rows,
			TotalRows: len(entry.Value.Rows),
		}), nil
	})
}

func handleQuerySQL(ctx context.Context, d *Deps, a args) (*output.QueryPayload, error) {
	id, err := a.requireStr("sourceId")
	if err != nil {
		return nil, err
	}
	sqlText, err := a.requireStr("sql")
	if err != nil {
		return nil, err
	}
	res, err := d.Manager.QuerySQL(ctx, id, sqlText, int(a.num("maxRows", 0)))
	if err != nil {
		return nil, err
	}
	return cacheResult(d, res), nil
}

func handleQueryDSL(ctx context.Context, d *Deps, a args) (*output.QueryPayload, error) {
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
	return cacheResult(d, res), nil
}

// cacheResult stores rows in the result cache and shapes the payload.
func cacheResult(d *Deps, res *core.QueryResult) *output.QueryPayload {
	resultID := d.Results.Put(CachedResult{Columns: res.Columns, Rows: res.Rows})
	return &output.QueryPayload{
		ResultID:  resultID,
		Columns:   res.Columns,
		Rows:      res.Rows,
		TotalRows: res.TotalRows,
		Truncated: res.Truncated,
	}
}
