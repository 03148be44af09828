package dsl

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"dolex/internal/core"
	"dolex/internal/eval"
)

// Compiler renders a Query as SQL text for one dialect. It is stateless
// apart from the schema snapshot used to resolve and disambiguate field
// references.
type Compiler struct {
	Dialect core.Dialect
	// Base is the query's base table.
	Base string
	// Columns maps every reachable table (base plus joins) to its column
	// names.
	Columns map[string][]string
}

// QuoteIdentifier renders an identifier for the dialect.
func (c *Compiler) QuoteIdentifier(ident string) string {
	if c.Dialect == core.DialectMySQL {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// QuoteString renders a string literal.
func (c *Compiler) QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// resolvedField is a reference resolved to its owning table.
type resolvedField struct {
	Table  string
	Column string
}

func (c *Compiler) sql(f resolvedField, qualify bool) string {
	if qualify {
		return c.QuoteIdentifier(f.Table) + "." + c.QuoteIdentifier(f.Column)
	}
	return c.QuoteIdentifier(f.Column)
}

// Resolve maps a possibly-dotted field reference onto a table and column.
// Unqualified references appearing in several tables fail with the list of
// candidates; unknown references fail with the available names.
func (c *Compiler) Resolve(field string) (resolvedField, error) {
	if table, col, ok := strings.Cut(field, "."); ok {
		cols, found := c.lookupTable(table)
		if !found {
			return resolvedField{}, &core.ValidationError{
				Entity:  "query",
				Name:    field,
				Message: fmt.Sprintf("unknown table %q (available: %s)", table, strings.Join(c.tableNames(), ", ")),
			}
		}
		for _, cand := range cols {
			if strings.EqualFold(cand, col) {
				return resolvedField{Table: table, Column: cand}, nil
			}
		}
		return resolvedField{}, &core.ValidationError{
			Entity:  "query",
			Name:    field,
			Message: fmt.Sprintf("unknown column %q in table %q (available: %s)", col, table, strings.Join(cols, ", ")),
		}
	}

	var hits []resolvedField
	for table, cols := range c.Columns {
		for _, cand := range cols {
			if strings.EqualFold(cand, field) {
				hits = append(hits, resolvedField{Table: table, Column: cand})
			}
		}
	}
	switch len(hits) {
	case 1:
		return hits[0], nil
	case 0:
		return resolvedField{}, &core.ValidationError{
			Entity:  "query",
			Name:    field,
			Message: fmt.Sprintf("unknown field (available: %s)", strings.Join(c.allColumns(), ", ")),
		}
	}
	sort.Slice(hits, func(a, b int) bool { return hits[a].Table < hits[b].Table })
	cands := make([]string, len(hits))
	for i, h := range hits {
		cands[i] = h.Table + "." + h.Column
	}
	return resolvedField{}, &core.ValidationError{
		Entity:  "query",
		Name:    field,
		Message: fmt.Sprintf("ambiguous field, qualify it with a table (candidates: %s)", strings.Join(cands, ", ")),
	}
}

func (c *Compiler) lookupTable(name string) ([]string, bool) {
	for table, cols := range c.Columns {
		if strings.EqualFold(table, name) {
			return cols, true
		}
	}
	return nil, false
}

func (c *Compiler) tableNames() []string {
	names := make([]string, 0, len(c.Columns))
	for t := range c.Columns {
		names = append(names, t)
	}
	sort.Strings(names)
	return names
}

func (c *Compiler) allColumns() []string {
	var names []string
	for _, t := range c.tableNames() {
		for _, col := range c.Columns[t] {
			names = append(names, col)
		}
	}
	return names
}

// CompileFull renders the whole query as one native statement. The caller
// must have established pushdown safety via Pushdown.
func (c *Compiler) CompileFull(q *Query, rowCap int) (string, error) {
	qualify := len(q.Join) > 0
	var sb strings.Builder

	selects := make([]string, 0, len(q.Select))
	for _, item := range q.Select {
		rendered, err := c.renderSelect(&item, q, qualify)
		if err != nil {
			return "", err
		}
		selects = append(selects, rendered)
	}
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selects, ", "))

	from, err := c.renderFrom(q)
	if err != nil {
		return "", err
	}
	sb.WriteString(from)

	if len(q.Filter) > 0 {
		where, err := c.renderConditions(q.Filter, qualify)
		if err != nil {
			return "", err
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}

	if len(q.GroupBy) > 0 {
		groups := make([]string, 0, len(q.GroupBy))
		for _, g := range q.GroupBy {
			expr, err := c.renderGroupExpr(&g, qualify)
			if err != nil {
				return "", err
			}
			groups = append(groups, expr)
		}
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(groups, ", "))
	}

	if len(q.Having) > 0 {
		// Having references output aliases, which both supported dialects
		// accept in HAVING.
		having, err := c.renderAliasConditions(q.Having)
		if err != nil {
			return "", err
		}
		sb.WriteString(" HAVING ")
		sb.WriteString(having)
	}

	if len(q.OrderBy) > 0 {
		orders := make([]string, 0, len(q.OrderBy))
		for _, o := range q.OrderBy {
			dir := "ASC"
			if o.Direction == "desc" {
				dir = "DESC"
			}
			orders = append(orders, c.QuoteIdentifier(o.Field)+" "+dir)
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(orders, ", "))
	}

	limit := rowCap
	if q.Limit > 0 && q.Limit < limit {
		limit = q.Limit
	}
	fmt.Fprintf(&sb, " LIMIT %d", limit)
	return sb.String(), nil
}

// CompileReduced renders the raw-column fetch feeding in-process
// completion: every referenced column, the joins, and the pre-aggregate
// filters, without limit and without unsupported operations.
func (c *Compiler) CompileReduced(q *Query) (string, error) {
	qualify := len(q.Join) > 0

	type needed struct {
		field resolvedField
		alias string
	}
	var cols []needed
	byAlias := make(map[string]resolvedField)
	add := func(field string) error {
		if field == "" || field == "*" {
			return nil
		}
		f, err := c.Resolve(field)
		if err != nil {
			return err
		}
		alias := baseName(field)
		key := strings.ToLower(alias)
		if prev, dup := byAlias[key]; dup {
			if prev.Table != f.Table || prev.Column != f.Column {
				return &core.ValidationError{
					Entity:  "query",
					Name:    field,
					Message: fmt.Sprintf("output name %q collides with %s.%s; alias one of them", alias, prev.Table, prev.Column),
				}
			}
			return nil
		}
		byAlias[key] = f
		cols = append(cols, needed{field: f, alias: alias})
		return nil
	}

	for _, s := range q.Select {
		for _, field := range []string{s.Field, s.PartitionBy, s.OrderBy} {
			if err := add(field); err != nil {
				return "", err
			}
		}
	}
	for _, g := range q.GroupBy {
		if err := add(g.Field); err != nil {
			return "", err
		}
	}
	for _, f := range q.Filter {
		if err := add(f.Field); err != nil {
			return "", err
		}
	}
	// Order fields referencing raw columns ride along so the final sort
	// can see them; aggregate aliases resolve after aggregation instead.
	for _, o := range q.OrderBy {
		if _, err := c.Resolve(o.Field); err == nil {
			if err := add(o.Field); err != nil {
				return "", err
			}
		}
	}

	if len(cols) == 0 {
		return "", &core.ValidationError{Entity: "query", Field: "select", Message: "no concrete columns to fetch"}
	}

	parts := make([]string, len(cols))
	for i, n := range cols {
		parts[i] = c.sql(n.field, qualify) + " AS " + c.QuoteIdentifier(n.alias)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(parts, ", "))
	from, err := c.renderFrom(q)
	if err != nil {
		return "", err
	}
	sb.WriteString(from)
	if len(q.Filter) > 0 {
		where, err := c.renderConditions(q.Filter, qualify)
		if err != nil {
			return "", err
		}
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	return sb.String(), nil
}

func (c *Compiler) renderFrom(q *Query) (string, error) {
	var sb strings.Builder
	sb.WriteString(" FROM ")
	sb.WriteString(c.QuoteIdentifier(c.Base))
	for _, j := range q.Join {
		if _, ok := c.lookupTable(j.Table); !ok {
			return "", &core.ValidationError{
				Entity:  "query",
				Name:    j.Table,
				Message: fmt.Sprintf("unknown join table (available: %s)", strings.Join(c.tableNames(), ", ")),
			}
		}
		kind := "INNER JOIN"
		if j.Type == "left" {
			kind = "LEFT JOIN"
		}
		left, err := c.resolveJoinSide(j.On.Left, c.Base)
		if err != nil {
			return "", err
		}
		right, err := c.resolveJoinSide(j.On.Right, j.Table)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&sb, " %s %s ON %s = %s", kind, c.QuoteIdentifier(j.Table), c.sql(left, true), c.sql(right, true))
	}
	return sb.String(), nil
}

// resolveJoinSide resolves a join key, defaulting unqualified names to the
// given table rather than treating them as ambiguous.
func (c *Compiler) resolveJoinSide(field, defaultTable string) (resolvedField, error) {
	if strings.Contains(field, ".") {
		return c.Resolve(field)
	}
	cols, ok := c.lookupTable(defaultTable)
	if ok {
		for _, cand := range cols {
			if strings.EqualFold(cand, field) {
				return resolvedField{Table: defaultTable, Column: cand}, nil
			}
		}
	}
	return c.Resolve(field)
}

func (c *Compiler) renderSelect(item *SelectItem, q *Query, qualify bool) (string, error) {
	switch {
	case item.IsAggregate():
		expr, err := c.renderAggregate(item, qualify)
		if err != nil {
			return "", err
		}
		return expr + " AS " + c.QuoteIdentifier(item.OutputName()), nil
	case item.IsWindow():
		expr, err := c.renderWindow(item, qualify)
		if err != nil {
			return "", err
		}
		return expr + " AS " + c.QuoteIdentifier(item.OutputName()), nil
	}

	// A bare field that matches a bucketed group key renders as the bucket
	// expression so the output column carries the bucketed value.
	for _, g := range q.GroupBy {
		if g.Bucket != "" && strings.EqualFold(g.Field, item.Field) {
			expr, err := c.renderGroupExpr(&g, qualify)
			if err != nil {
				return "", err
			}
			return expr + " AS " + c.QuoteIdentifier(item.OutputName()), nil
		}
	}

	f, err := c.Resolve(item.Field)
	if err != nil {
		return "", err
	}
	return c.sql(f, qualify) + " AS " + c.QuoteIdentifier(item.OutputName()), nil
}

func (c *Compiler) renderAggregate(item *SelectItem, qualify bool) (string, error) {
	if item.Aggregate == "count" && (item.Field == "" || item.Field == "*") {
		return "COUNT(*)", nil
	}
	f, err := c.Resolve(item.Field)
	if err != nil {
		return "", err
	}
	col := c.sql(f, qualify)
	switch item.Aggregate {
	case "sum":
		return "SUM(" + col + ")", nil
	case "avg":
		return "AVG(" + col + ")", nil
	case "min":
		return "MIN(" + col + ")", nil
	case "max":
		return "MAX(" + col + ")", nil
	case "count":
		return "COUNT(" + col + ")", nil
	case "count_distinct":
		return "COUNT(DISTINCT " + col + ")", nil
	case "stddev":
		if capsFor(c.Dialect).stddev {
			return "STDDEV_SAMP(" + col + ")", nil
		}
	}
	return "", &core.ValidationError{
		Entity:  "query",
		Name:    item.Aggregate,
		Message: fmt.Sprintf("aggregate has no native rendering for dialect %s", c.Dialect),
	}
}

func (c *Compiler) renderWindow(item *SelectItem, qualify bool) (string, error) {
	var col string
	if item.Field != "" {
		f, err := c.Resolve(item.Field)
		if err != nil {
			return "", err
		}
		col = c.sql(f, qualify)
	}

	var over []string
	if item.PartitionBy != "" {
		f, err := c.Resolve(item.PartitionBy)
		if err != nil {
			return "", err
		}
		over = append(over, "PARTITION BY "+c.sql(f, qualify))
	}
	if item.OrderBy != "" {
		f, err := c.Resolve(item.OrderBy)
		if err != nil {
			return "", err
		}
		over = append(over, "ORDER BY "+c.sql(f, qualify))
	}
	overClause := "OVER (" + strings.Join(over, " ") + ")"

	offset := item.Offset
	if offset <= 0 {
		offset = 1
	}
	switch item.Window {
	case "lag", "lead":
		fn := strings.ToUpper(item.Window)
		if item.Default != nil {
			return fmt.Sprintf("%s(%s, %d, %s) %s", fn, col, offset, c.renderValue(item.Default), overClause), nil
		}
		return fmt.Sprintf("%s(%s, %d) %s", fn, col, offset, overClause), nil
	case "rank":
		return "RANK() " + overClause, nil
	case "dense_rank":
		return "DENSE_RANK() " + overClause, nil
	case "row_number":
		return "ROW_NUMBER() " + overClause, nil
	case "running_sum", "running_avg":
		fn := "SUM"
		if item.Window == "running_avg" {
			fn = "AVG"
		}
		return fmt.Sprintf("%s(%s) OVER (%s ROWS UNBOUNDED PRECEDING)", fn, col, strings.Join(over, " ")), nil
	case "pct_of_total":
		partition := ""
		if item.PartitionBy != "" {
			f, err := c.Resolve(item.PartitionBy)
			if err != nil {
				return "", err
			}
			partition = "PARTITION BY " + c.sql(f, qualify)
		}
		return fmt.Sprintf("%s * 100.0 / SUM(%s) OVER (%s)", col, col, partition), nil
	}
	return "", &core.ValidationError{Entity: "query", Name: item.Window, Message: "window function has no native rendering"}
}

func (c *Compiler) renderGroupExpr(g *GroupItem, qualify bool) (string, error) {
	f, err := c.Resolve(g.Field)
	if err != nil {
		return "", err
	}
	col := c.sql(f, qualify)
	if g.Bucket == "" {
		return col, nil
	}
	return c.renderBucket(g.Bucket, col)
}

func (c *Compiler) renderBucket(unit, col string) (string, error) {
	if c.Dialect == core.DialectMySQL {
		switch unit {
		case "day":
			return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m-%%d')", col), nil
		case "month":
			return fmt.Sprintf("DATE_FORMAT(%s, '%%Y-%%m')", col), nil
		case "quarter":
			return fmt.Sprintf("CONCAT(YEAR(%s), '-Q', QUARTER(%s))", col, col), nil
		case "year":
			return fmt.Sprintf("DATE_FORMAT(%s, '%%Y')", col), nil
		}
	} else {
		switch unit {
		case "day":
			return fmt.Sprintf("strftime('%%Y-%%m-%%d', %s)", col), nil
		case "month":
			return fmt.Sprintf("strftime('%%Y-%%m', %s)", col), nil
		case "year":
			return fmt.Sprintf("strftime('%%Y', %s)", col), nil
		}
	}
	return "", &core.ValidationError{Entity: "query", Name: unit, Message: fmt.Sprintf("bucket has no native rendering for dialect %s", c.Dialect)}
}

func (c *Compiler) renderConditions(filters []eval.Filter, qualify bool) (string, error) {
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		rf, err := c.Resolve(f.Field)
		if err != nil {
			return "", err
		}
		cond, err := c.renderCondition(c.sql(rf, qualify), f)
		if err != nil {
			return "", err
		}
		parts = append(parts, cond)
	}
	return strings.Join(parts, " AND "), nil
}

// renderAliasConditions renders having conditions against output aliases.
func (c *Compiler) renderAliasConditions(filters []eval.Filter) (string, error) {
	parts := make([]string, 0, len(filters))
	for _, f := range filters {
		cond, err := c.renderCondition(c.QuoteIdentifier(f.Field), f)
		if err != nil {
			return "", err
		}
		parts = append(parts, cond)
	}
	return strings.Join(parts, " AND "), nil
}

func (c *Compiler) renderCondition(col string, f eval.Filter) (string, error) {
	switch f.Op {
	case "=", "!=", ">", ">=", "<", "<=":
		op := f.Op
		if op == "!=" {
			op = "<>"
		}
		return fmt.Sprintf("%s %s %s", col, op, c.renderValue(f.Value)), nil
	case "like":
		return fmt.Sprintf("%s LIKE %s", col, c.renderValue(f.Value)), nil
	case "in", "not_in":
		list, ok := f.Value.([]any)
		if !ok || len(list) == 0 {
			return "", &core.ValidationError{Entity: "query", Name: f.Field, Message: fmt.Sprintf("operator %s requires a non-empty array value", f.Op)}
		}
		vals := make([]string, len(list))
		for i, v := range list {
			vals[i] = c.renderValue(v)
		}
		kw := "IN"
		if f.Op == "not_in" {
			kw = "NOT IN"
		}
		return fmt.Sprintf("%s %s (%s)", col, kw, strings.Join(vals, ", ")), nil
	case "between":
		pair, ok := f.Value.([]any)
		if !ok || len(pair) != 2 {
			return "", &core.ValidationError{Entity: "query", Name: f.Field, Message: "operator between requires a two-element array value"}
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, c.renderValue(pair[0]), c.renderValue(pair[1])), nil
	case "is_null":
		return col + " IS NULL", nil
	case "is_not_null":
		return col + " IS NOT NULL", nil
	}
	return "", &core.ValidationError{Entity: "query", Name: f.Field, Message: fmt.Sprintf("unsupported operator %q", f.Op)}
}

func (c *Compiler) renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case string:
		return c.QuoteString(val)
	}
	return c.QuoteString(fmt.Sprint(v))
}
