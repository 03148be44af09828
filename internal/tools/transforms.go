package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"dolex/internal/core"
	"dolex/internal/output"
	"dolex/internal/transform"
)

func registerTransformTools(s *server.MCPServer, d *Deps) {
	s.AddTool(mcp.NewTool("transform_data",
		mcp.WithDescription("Create or overwrite derived columns with safe expressions. New columns land in the working layer; use promote_columns to persist them."),
		mcp.WithString("sourceId", mcp.Required(), mcp.Description("Source ID or name")),
		mcp.WithString("table", mcp.Required(), mcp.Description("Table to transform")),
		mcp.WithString("create", mcp.Description("New column name (single-transform form)")),
		mcp.WithString("expr", mcp.Description("Expression producing the column (single-transform form)")),
		mcp.WithString("partitionBy", mcp.Description("Column whose groups bound the column-wise functions")),
		mcp.WithArray("filter", mcp.Description("Row filters; non-matching rows receive null")),
		mcp.WithArray("transforms", mcp.Description("Batch form: [{create, expr, partitionBy?, filter?}, ...]")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		res, err := handleTransform(ctx, d, argsOf(req))
		d.track("transform_data", start, err)
		if err != nil {
			return fail(err), nil
		}
		return respond(res), nil
	})

	s.AddTool(mcp.NewTool("list_transforms",
		mcp.WithDescription("List the derived-column records of a table, optionally restricted to one layer."),
		mcp.WithString("sourceId", mcp.Required(), mcp.Description("Source ID or name")),
		mcp.WithString("table", mcp.Required(), mcp.Description("Table name")),
		mcp.WithString("layer", mcp.Description("working or derived; both when omitted")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		res, err := handleListTransforms(ctx, d, argsOf(req))
		d.track("list_transforms", start, err)
		if err != nil {
			return fail(err), nil
		}
		return respond(res), nil
	})

	s.AddTool(mcp.NewTool("promote_columns",
		mcp.WithDescription("Promote working columns to the derived layer and persist them in the manifest."),
		mcp.WithString("sourceId", mcp.Required(), mcp.Description("Source ID or name")),
		mcp.WithString("table", mcp.Required(), mcp.Description("Table name")),
		mcp.WithArray("columns", mcp.Required(), mcp.Description("Column names, or [\"*\"] for every working column")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		res, err := handlePromote(ctx, d, argsOf(req))
		d.track("promote_columns", start, err)
		if err != nil {
			return fail(err), nil
		}
		return respond(res), nil
	})

	s.AddTool(mcp.NewTool("drop_columns",
		mcp.WithDescription("Drop derived columns from a layer. Dropping a working column that shadows a derived one restores the derived values."),
		mcp.WithString("sourceId", mcp.Required(), mcp.Description("Source ID or name")),
		mcp.WithString("table", mcp.Required(), mcp.Description("Table name")),
		mcp.WithArray("columns", mcp.Required(), mcp.Description("Column names, or [\"*\"] with layer for a whole layer")),
		mcp.WithString("layer", mcp.Description("working (default) or derived")),
	), func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		start := time.Now()
		res, err := handleDrop(ctx, d, argsOf(req))
		d.track("drop_columns", start, err)
		if err != nil {
			return fail(err), nil
		}
		return respond(res), nil
	})
}

func transformContext(ctx context.Context, d *Deps, a args) (*transform.Pipeline, *transform.Metadata, string, string, error) {
	id, err := a.requireStr("sourceId")
	if err != nil {
		return nil, nil, "", "", err
	}
	table, err := a.requireStr("table")
	if err != nil {
		return nil, nil, "", "", err
	}
	p, meta, err := d.Manager.Pipeline(ctx, id, table)
	if err != nil {
		return nil, nil, "", "", err
	}
	return p, meta, id, table, nil
}

func handleTransform(ctx context.Context, d *Deps, a args) (*output.TransformPayload, error) {
	p, meta, id, table, err := transformContext(ctx, d, a)
	if err != nil {
		return nil, err
	}

	var specs []transform.Spec
	if a.has("transforms") {
		if err := a.object("transforms", &specs); err != nil {
			return nil, err
		}
	} else {
		var spec transform.Spec
		spec.Create, err = a.requireStr("create")
		if err != nil {
			return nil, err
		}
		spec.Expr, err = a.requireStr("expr")
		if err != nil {
			return nil, err
		}
		spec.PartitionBy = a.str("partitionBy")
		if a.has("filter") {
			if err := a.object("filter", &spec.Filter); err != nil {
				return nil, err
			}
		}
		specs = []transform.Spec{spec}
	}
	if len(specs) == 0 {
		return nil, &core.ValidationError{Entity: "transform", Message: "no transforms given"}
	}

	results, err := p.Apply(ctx, specs)
	if err != nil {
		return nil, err
	}
	d.Manager.InvalidateSchema(id)

	return &output.TransformPayload{
		Columns:  results,
		Working:  len(meta.List(table, core.LayerWorking)),
		Derived:  len(meta.List(table, core.LayerDerived)),
		Manifest: transform.ManifestSuffix,
	}, nil
}

func handleListTransforms(ctx context.Context, d *Deps, a args) (*output.TransformListPayload, error) {
	_, meta, _, table, err := transformContext(ctx, d, a)
	if err != nil {
		return nil, err
	}
	layer := core.Layer(a.str("layer"))
	records := meta.List(table, layer)
	if records == nil {
		records = []*core.TransformRecord{}
	}
	return &output.TransformListPayload{
		Transforms: records,
		Working:    len(meta.List(table, core.LayerWorking)),
		Derived:    len(meta.List(table, core.LayerDerived)),
	}, nil
}

func handlePromote(ctx context.Context, d *Deps, a args) (*output.PromotePayload, error) {
	p, meta, _, table, err := transformContext(ctx, d, a)
	if err != nil {
		return nil, err
	}
	names := a.strings("columns")
	if len(names) == 0 {
		return nil, &core.ValidationError{Entity: "transform", Field: "columns", Message: "at least one column is required"}
	}
	promoted, err := p.Promote(ctx, names)
	if err != nil {
		return nil, err
	}
	return &output.PromotePayload{
		Promoted: promoted,
		Derived:  len(meta.List(table, core.LayerDerived)),
		Manifest: transform.ManifestSuffix,
	}, nil
}

func handleDrop(ctx context.Context, d *Deps, a args) (*output.DropPayload, error) {
	p, meta, id, table, err := transformContext(ctx, d, a)
	if err != nil {
		return nil, err
	}
	names := a.strings("columns")
	if len(names) == 0 {
		return nil, &core.ValidationError{Entity: "transform", Field: "columns", Message: "at least one column is required"}
	}
	layer := core.Layer(a.str("layer"))
	if layer == "" {
		layer = core.LayerWorking
	}
	res, err := p.Drop(ctx, names, layer)
	if err != nil {
		return nil, err
	}
	d.Manager.InvalidateSchema(id)
	return &output.DropPayload{
		Dropped:  res.Dropped,
		Restored: res.Restored,
		Working:  len(meta.List(table, core.LayerWorking)),
		Derived:  len(meta.List(table, core.LayerDerived)),
	}, nil
}
