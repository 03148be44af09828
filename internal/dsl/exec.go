package dsl

import (
	"context"
	"fmt"
	"strings"

	"dolex/internal/core"
	"dolex/internal/eval"
	"dolex/internal/source"
)

// Executor runs DSL queries against connected sources, pushing down what
// the dialect supports and finishing the rest in-process.
type Executor struct {
	mgr    *source.Manager
	rowCap int
}

// NewExecutor returns an Executor over the manager's sources.
func NewExecutor(mgr *source.Manager, rowCap int) *Executor {
	if rowCap <= 0 {
		rowCap = source.DefaultRowCap
	}
	return &Executor{mgr: mgr, rowCap: rowCap}
}

// Execute runs one query against a table of a source.
func (e *Executor) Execute(ctx context.Context, idOrName, table string, q *Query) (*core.QueryResult, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	schema, err := e.mgr.Schema(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	base := schema.FindTable(table)
	if base == nil {
		return nil, &core.ValidationError{
			Entity:  "table",
			Name:    table,
			Message: fmt.Sprintf("not found (available: %s)", strings.Join(schema.TableNames(), ", ")),
		}
	}

	cols := map[string][]string{base.Name: base.ColumnNames()}
	for _, j := range q.Join {
		jt := schema.FindTable(j.Table)
		if jt == nil {
			return nil, &core.ValidationError{
				Entity:  "query",
				Name:    j.Table,
				Message: fmt.Sprintf("unknown join table (available: %s)", strings.Join(schema.TableNames(), ", ")),
			}
		}
		cols[jt.Name] = jt.ColumnNames()
	}

	dialect, err := e.mgr.Dialect(ctx, idOrName)
	if err != nil {
		return nil, err
	}
	compiler := &Compiler{Dialect: dialect, Base: base.Name, Columns: cols}

	limit := e.rowCap
	if q.Limit > 0 && q.Limit < limit {
		limit = q.Limit
	}

	if Pushdown(q, dialect) {
		sqlText, err := compiler.CompileFull(q, e.rowCap)
		if err != nil {
			return nil, err
		}
		res, err := e.mgr.ExecuteCompiled(ctx, idOrName, sqlText)
		if err != nil {
			return nil, err
		}
		res.Columns = outputColumns(q)
		res.Truncated = len(res.Rows) == limit
		res.TotalRows = len(res.Rows)
		return res, nil
	}

	reduced, err := compiler.CompileReduced(q)
	if err != nil {
		return nil, err
	}
	raw, err := e.mgr.ExecuteCompiled(ctx, idOrName, reduced)
	if err != nil {
		return nil, err
	}
	return e.finish(ctx, q, raw.Rows, limit)
}

// finish performs the in-process completion phases: bucketed grouping and
// aggregation, having, windows, sort, and limit. Each phase boundary checks
// for cancellation.
func (e *Executor) finish(ctx context.Context, q *Query, rows []core.Row, limit int) (*core.QueryResult, error) {
	var err error
	if q.HasAggregation() {
		rows, err = aggregateRows(q, rows)
		if err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if len(q.Having) > 0 {
		filtered := rows[:0]
		for _, row := range rows {
			ok, err := eval.MatchOp(row[q.Having[0].Field], q.Having[0].Op, q.Having[0].Value)
			if err != nil {
				return nil, err
			}
			keep := ok
			for _, h := range q.Having[1:] {
				ok, err := eval.MatchOp(row[h.Field], h.Op, h.Value)
				if err != nil {
					return nil, err
				}
				keep = keep && ok
			}
			if keep {
				filtered = append(filtered, row)
			}
		}
		rows = filtered
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Window functions apply in declaration order over the (possibly
	// aggregated) row set.
	for _, s := range q.Select {
		if s.IsWindow() {
			if err := applyWindow(rows, &s); err != nil {
				return nil, err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sortRows(rows, q.OrderBy)

	truncated := false
	if len(rows) > limit {
		rows = rows[:limit]
		truncated = true
	} else if len(rows) == limit {
		truncated = true
	}

	outputs := outputColumns(q)
	projected := make([]core.Row, len(rows))
	for i, row := range rows {
		out := make(core.Row, len(outputs))
		for _, name := range outputs {
			out[name] = row[name]
		}
		projected[i] = out
	}

	return &core.QueryResult{
		Columns:   outputs,
		Rows:      projected,
		TotalRows: len(projected),
		Truncated: truncated,
	}, nil
}

// outputColumns lists the result column names in select order.
func outputColumns(q *Query) []string {
	names := make([]string, len(q.Select))
	for i, s := range q.Select {
		names[i] = s.OutputName()
	}
	return names
}
