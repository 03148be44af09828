// Package columns manages physical columns of a staged table: adding,
// overwriting, and dropping derived columns, and reading rows back. All
// writes run inside a transaction so a partial failure leaves the table
// unchanged.
package columns

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"

	"dolex/internal/core"
	"dolex/internal/infer"
)

// Manager wraps one table of the staging database.
type Manager struct {
	db    *sql.DB
	table string
}

// New returns a Manager for table. The table must already exist.
func New(db *sql.DB, table string) *Manager {
	return &Manager{db: db, table: table}
}

// Quote escapes an identifier for embedding in SQL text.
func Quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// storageType maps a semantic type to the physical column type: numeric
// stores as REAL, boolean as INTEGER, everything else as TEXT.
func storageType(t core.SemanticType) string {
	switch t {
	case core.TypeNumeric:
		return "REAL"
	case core.TypeBoolean:
		return "INTEGER"
	default:
		return "TEXT"
	}
}

// coerce converts an evaluator value into its driver representation:
// null stays null, booleans become 0/1, arrays become a comma-separated
// string, everything else passes through.
func coerce(v any) any {
	switch b := v.(type) {
	case nil:
		return nil
	case bool:
		if b {
			return int64(1)
		}
		return int64(0)
	case []any:
		return join(b)
	}
	return v
}

func join(arr []any) string {
	parts := make([]string, len(arr))
	for i, e := range arr {
		parts[i] = fmt.Sprint(e)
	}
	return strings.Join(parts, ",")
}

// Names returns the column names of the table in declaration order.
func (m *Manager) Names(ctx context.Context) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`SELECT name FROM pragma_table_info(%s) ORDER BY cid`, quoteLiteral(m.table)))
	if err != nil {
		return nil, fmt.Errorf("failed to list columns of %s: %w", m.table, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// HasColumn reports whether name exists on the table (case-insensitive).
func (m *Manager) HasColumn(ctx context.Context, name string) (bool, error) {
	names, err := m.Names(ctx)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if strings.EqualFold(n, name) {
			return true, nil
		}
	}
	return false, nil
}

// CountRows returns the table's row count.
func (m *Manager) CountRows(ctx context.Context) (int, error) {
	var n int
	err := m.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, Quote(m.table))).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count rows of %s: %w", m.table, err)
	}
	return n, nil
}

// ReadAll returns every row of the table in rowid order.
func (m *Manager) ReadAll(ctx context.Context) ([]core.Row, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`SELECT * FROM %s ORDER BY rowid`, Quote(m.table)))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", m.table, err)
	}
	defer rows.Close()
	return ScanRows(rows)
}

// ReadColumn returns one column's values in rowid order, for rollback
// snapshots.
func (m *Manager) ReadColumn(ctx context.Context, name string) ([]any, error) {
	rows, err := m.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s ORDER BY rowid`, Quote(name), Quote(m.table)))
	if err != nil {
		return nil, fmt.Errorf("failed to read column %s: %w", name, err)
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, normalizeCell(v))
	}
	return out, rows.Err()
}

// AddColumn creates a new column and fills it with values, one per row in
// rowid order. The column must not already exist and values must match the
// row count.
func (m *Manager) AddColumn(ctx context.Context, name string, values []any, semType core.SemanticType) error {
	if exists, err := m.HasColumn(ctx, name); err != nil {
		return err
	} else if exists {
		return &core.ValidationError{Entity: "column", Name: name, Message: "already exists"}
	}
	if err := m.checkRowCount(ctx, len(values)); err != nil {
		return err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, Quote(m.table), Quote(name), storageType(semType))); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("failed to add column %s: %w", name, err)
	}
	if err := m.fill(ctx, tx, name, values); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// OverwriteColumn replaces an existing column's values in place.
func (m *Manager) OverwriteColumn(ctx context.Context, name string, values []any) error {
	if exists, err := m.HasColumn(ctx, name); err != nil {
		return err
	} else if !exists {
		return &core.ValidationError{Entity: "column", Name: name, Message: "does not exist"}
	}
	if err := m.checkRowCount(ctx, len(values)); err != nil {
		return err
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := m.fill(ctx, tx, name, values); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// DropColumn removes a column from the table.
func (m *Manager) DropColumn(ctx context.Context, name string) error {
	if exists, err := m.HasColumn(ctx, name); err != nil {
		return err
	} else if !exists {
		return &core.ValidationError{Entity: "column", Name: name, Message: "does not exist"}
	}
	if _, err := m.db.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s DROP COLUMN %s`, Quote(m.table), Quote(name))); err != nil {
		return fmt.Errorf("failed to drop column %s: %w", name, err)
	}
	return nil
}

// ProfileColumn reads a column and builds its profile.
func (m *Manager) ProfileColumn(ctx context.Context, name string) (*core.DataColumn, error) {
	values, err := m.ReadColumn(ctx, name)
	if err != nil {
		return nil, err
	}
	cells := make([]string, len(values))
	for i, v := range values {
		if v != nil {
			cells[i] = fmt.Sprint(v)
		}
	}
	return infer.Profile(name, cells), nil
}

func (m *Manager) checkRowCount(ctx context.Context, n int) error {
	count, err := m.CountRows(ctx)
	if err != nil {
		return err
	}
	if count != n {
		return &core.ValidationError{
			Entity:  "table",
			Name:    m.table,
			Message: fmt.Sprintf("value count %d does not match row count %d", n, count),
		}
	}
	return nil
}

// fill writes values by rowid. Rowids are read first because staged tables
// may have gaps after deletes.
func (m *Manager) fill(ctx context.Context, tx *sql.Tx, name string, values []any) error {
	rowids, err := m.rowids(ctx, tx)
	if err != nil {
		return err
	}
	if len(rowids) != len(values) {
		return fmt.Errorf("row count changed during write: have %d values for %d rows", len(values), len(rowids))
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`UPDATE %s SET %s = ? WHERE rowid = ?`, Quote(m.table), Quote(name)))
	if err != nil {
		return fmt.Errorf("failed to prepare column write: %w", err)
	}
	defer stmt.Close()
	for i, v := range values {
		if _, err := stmt.ExecContext(ctx, coerce(v), rowids[i]); err != nil {
			return fmt.Errorf("failed to write row %d of column %s: %w", i, name, err)
		}
	}
	return nil
}

func (m *Manager) rowids(ctx context.Context, tx *sql.Tx) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`SELECT rowid FROM %s ORDER BY rowid`, Quote(m.table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ScanRows converts a sql.Rows cursor into []core.Row with normalized cell
// values.
func ScanRows(rows *sql.Rows) ([]core.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []core.Row
	for rows.Next() {
		cells := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range cells {
			ptrs[i] = &cells[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(core.Row, len(cols))
		for i, c := range cols {
			row[c] = normalizeCell(cells[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// normalizeCell converts driver values into the evaluator's value set.
// Text-backed storage coerces on read: a string becomes a number only when
// the number formats back to the identical string, keeping the round-trip
// lossless.
func normalizeCell(v any) any {
	switch c := v.(type) {
	case []byte:
		return coerceNumeric(string(c))
	case string:
		return coerceNumeric(c)
	case int64:
		return float64(c)
	case int:
		return float64(c)
	case float32:
		return float64(c)
	}
	return v
}

func coerceNumeric(s string) any {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return s
	}
	if strconv.FormatFloat(f, 'f', -1, 64) != s {
		return s
	}
	return f
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
