package source

import (
	"context"
	"fmt"
	"strings"

	"dolex/internal/core"
)

// QuerySQL runs user SQL against a source through the safe path: only a
// single SELECT/WITH statement is accepted, the query is wrapped with a row
// cap, and backend errors are enriched with the names that actually exist.
func (m *Manager) QuerySQL(ctx context.Context, idOrName, sqlText string, maxRows int) (*core.QueryResult, error) {
	analyzer := newReadOnlyAnalyzer()
	if err := analyzer.Check(sqlText); err != nil {
		return nil, fmt.Errorf("Only SELECT or WITH queries are allowed: %w", err)
	}

	limit := m.rowCap
	if maxRows > 0 && maxRows < limit {
		limit = maxRows
	}
	wrapped := fmt.Sprintf("SELECT * FROM (%s) AS _q LIMIT %d", stripTrailingSemicolon(sqlText), limit)

	src, err := m.Find(idOrName)
	if err != nil {
		return nil, err
	}
	c, err := m.ensure(ctx, src)
	if err != nil {
		return nil, err
	}

	res, err := c.src.Execute(ctx, wrapped)
	if err != nil {
		return nil, m.enrichError(ctx, c, err)
	}

	// Connectors that report failures in-band produce a single {error} row.
	if len(res.Rows) == 1 && len(res.Columns) == 1 && strings.EqualFold(res.Columns[0], "error") {
		if msg, ok := res.Rows[0][res.Columns[0]].(string); ok {
			return nil, m.enrichError(ctx, c, fmt.Errorf("%s", msg))
		}
	}

	res.Truncated = len(res.Rows) == limit
	return res, nil
}

// ExecuteCompiled runs compiler-generated SQL against a source. It is the
// internal path for the DSL executor; user-supplied SQL goes through
// QuerySQL instead.
func (m *Manager) ExecuteCompiled(ctx context.Context, idOrName, sqlText string) (*core.QueryResult, error) {
	src, err := m.Find(idOrName)
	if err != nil {
		return nil, err
	}
	c, err := m.ensure(ctx, src)
	if err != nil {
		return nil, err
	}
	res, err := c.src.Execute(ctx, sqlText)
	if err != nil {
		return nil, m.enrichError(ctx, c, err)
	}
	return res, nil
}

// schemaErrorMarkers are backend error fragments that mean a name did not
// resolve; those errors get the actual available names appended.
var schemaErrorMarkers = []string{
	"no such column",
	"no such table",
	"no such function",
	"unknown column",
	"unknown table",
	"doesn't exist",
	"unknown function",
}

func (m *Manager) enrichError(ctx context.Context, c *conn, cause error) error {
	lower := strings.ToLower(cause.Error())
	match := false
	for _, marker := range schemaErrorMarkers {
		if strings.Contains(lower, marker) {
			match = true
			break
		}
	}
	if !match {
		return cause
	}
	schema, err := c.src.Schema(ctx)
	if err != nil {
		return cause
	}
	var parts []string
	for _, t := range schema.Tables {
		parts = append(parts, fmt.Sprintf("%s(%s)", t.Name, strings.Join(t.ColumnNames(), ", ")))
	}
	return fmt.Errorf("%w; available tables: %s", cause, strings.Join(parts, "; "))
}
