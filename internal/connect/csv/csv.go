// Package csv loads CSV files or directories of CSV files into the
// embedded staging engine and serves them through the connector interface.
// Staged columns carry NUMERIC affinity; semantic types come from
// profiling.
package csv

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	_ "modernc.org/sqlite"

	"dolex/internal/columns"
	"dolex/internal/connect"
	"dolex/internal/core"
	"dolex/internal/infer"
)

func init() {
	connect.Register(core.SourceCSV, New)
}

type connector struct{}

// New returns the CSV connector.
func New() connect.Connector {
	return &connector{}
}

func (c *connector) Test(_ context.Context, cfg core.SourceConfig) error {
	_, err := resolveFiles(cfg.Path)
	return err
}

func (c *connector) Connect(ctx context.Context, cfg core.SourceConfig) (connect.ConnectedSource, error) {
	files, err := resolveFiles(cfg.Path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open staging database: %w", err)
	}
	// A single connection keeps the in-memory database alive and
	// serializes access, which the driver requires anyway.
	db.SetMaxOpenConns(1)

	// Parse files concurrently, then stage sequentially on the one
	// connection.
	parsed := make([]*parsedFile, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			p, err := parseFile(gctx, f, cfg.Delimiter)
			if err != nil {
				return err
			}
			parsed[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		_ = db.Close()
		return nil, err
	}

	src := &connected{db: db}
	for _, p := range parsed {
		if err := src.stage(ctx, p); err != nil {
			_ = db.Close()
			return nil, err
		}
		src.tables = append(src.tables, p.table)
	}
	return src, nil
}

// resolveFiles expands a path into the CSV files backing its tables: the
// file itself, or every *.csv inside a directory.
func resolveFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("path not found: %s", path)
		}
		return nil, err
	}
	if !info.IsDir() {
		if !strings.EqualFold(filepath.Ext(path), ".csv") {
			return nil, fmt.Errorf("not a CSV file: %s", path)
		}
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			files = append(files, filepath.Join(path, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("directory contains no CSV files: %s", path)
	}
	return files, nil
}

type parsedFile struct {
	table  string
	header []string
	rows   [][]string
}

func parseFile(ctx context.Context, path, delimiter string) (*parsedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	if delimiter != "" {
		r.Comma = rune(delimiter[0])
	}

	var header []string
	var rows [][]string
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
		}
		if isEmptyRecord(record) {
			continue
		}
		if header == nil {
			header = cleanHeader(record)
			continue
		}
		// Ragged rows pad with empty cells or truncate to the header.
		row := make([]string, len(header))
		for i := range header {
			if i < len(record) {
				row[i] = record[i]
			}
		}
		rows = append(rows, row)
	}
	if header == nil {
		return nil, fmt.Errorf("file %s has no header row", filepath.Base(path))
	}
	return &parsedFile{table: TableName(path), header: header, rows: rows}, nil
}

func isEmptyRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func cleanHeader(record []string) []string {
	out := make([]string, len(record))
	seen := make(map[string]int)
	for i, cell := range record {
		name := strings.TrimSpace(strings.TrimPrefix(cell, "\uFEFF"))
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		// Duplicate headers get a numeric suffix so staging succeeds.
		lower := strings.ToLower(name)
		if n := seen[lower]; n > 0 {
			name = fmt.Sprintf("%s_%d", name, n+1)
		}
		seen[lower]++
		out[i] = name
	}
	return out
}

var identCleanRe = regexp.MustCompile(`[^A-Za-z0-9_]+`)

// TableName derives a table identifier from a CSV file path: the base name
// without extension, sanitized to identifier characters.
func TableName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name := identCleanRe.ReplaceAllString(base, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		name = "table"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "t_" + name
	}
	return strings.ToLower(name)
}

// connected is a live CSV source: its tables staged in the embedded engine.
type connected struct {
	db     *sql.DB
	tables []string

	mu     sync.Mutex
	schema *core.DataSchema
}

func (s *connected) stage(ctx context.Context, p *parsedFile) error {
	cols := make([]string, len(p.header))
	for i, h := range p.header {
		// NUMERIC affinity keeps comparisons and sorts numeric for
		// number-shaped cells; the engine only converts when the text
		// round-trips losslessly, everything else stays text.
		cols[i] = columns.Quote(h) + " NUMERIC"
	}
	create := fmt.Sprintf("CREATE TABLE %s (%s)", columns.Quote(p.table), strings.Join(cols, ", "))
	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to create table %s: %w", p.table, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(p.header)), ",")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", columns.Quote(p.table), placeholders))
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, row := range p.rows {
		args := make([]any, len(row))
		for i, cell := range row {
			if strings.TrimSpace(cell) == "" {
				args[i] = nil
			} else {
				args[i] = cell
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to load rows into %s: %w", p.table, err)
		}
	}
	return tx.Commit()
}

func (s *connected) Dialect() core.Dialect { return core.DialectSQLite }

func (s *connected) StagingDB() *sql.DB { return s.db }

func (s *connected) InvalidateSchema() {
	s.mu.Lock()
	s.schema = nil
	s.mu.Unlock()
}

func (s *connected) Close() error { return s.db.Close() }

func (s *connected) Schema(ctx context.Context) (*core.DataSchema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schema != nil {
		return s.schema, nil
	}

	schema := &core.DataSchema{}
	for _, table := range s.tables {
		t, err := s.profileTable(ctx, table)
		if err != nil {
			return nil, err
		}
		schema.Tables = append(schema.Tables, t)
	}
	schema.ForeignKeys = inferForeignKeys(schema.Tables)
	s.schema = schema
	return schema, nil
}

func (s *connected) profileTable(ctx context.Context, table string) (*core.SchemaTable, error) {
	mgr := columns.New(s.db, table)
	names, err := mgr.Names(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := mgr.ReadAll(ctx)
	if err != nil {
		return nil, err
	}

	t := &core.SchemaTable{Name: table, RowCount: len(rows)}
	for _, name := range names {
		cells := make([]string, len(rows))
		for i, row := range rows {
			if v := row[name]; v != nil {
				cells[i] = fmt.Sprint(v)
			}
		}
		t.Columns = append(t.Columns, infer.Profile(name, cells))
	}
	return t, nil
}

// inferForeignKeys links equal id-like column names across tables, skipping
// duplicate undirected pairs.
func inferForeignKeys(tables []*core.SchemaTable) []*core.ForeignKey {
	var fks []*core.ForeignKey
	seen := make(map[string]bool)
	for i, from := range tables {
		for j, to := range tables {
			if i == j {
				continue
			}
			for _, col := range from.Columns {
				if !idLike(col.Name) {
					continue
				}
				if to.FindColumn(col.Name) == nil {
					continue
				}
				a, b := from.Name, to.Name
				if a > b {
					a, b = b, a
				}
				key := a + "|" + b + "|" + strings.ToLower(col.Name)
				if seen[key] {
					continue
				}
				seen[key] = true
				fks = append(fks, &core.ForeignKey{
					FromTable: from.Name, FromColumn: col.Name,
					ToTable: to.Name, ToColumn: col.Name,
				})
			}
		}
	}
	return fks
}

func idLike(name string) bool {
	lower := strings.ToLower(name)
	return lower == "id" || strings.HasSuffix(lower, "_id") || strings.HasSuffix(lower, "id")
}

func (s *connected) SampleRows(ctx context.Context, table string, n int) ([]core.Row, error) {
	mgr := columns.New(s.db, table)
	rows, err := mgr.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	idx := connect.EvenSample(len(rows), n)
	out := make([]core.Row, 0, len(idx))
	for _, i := range idx {
		out = append(out, rows[i])
	}
	return out, nil
}

func (s *connected) Execute(ctx context.Context, query string) (*core.QueryResult, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out, err := columns.ScanRows(rows)
	if err != nil {
		return nil, err
	}
	return &core.QueryResult{Columns: cols, Rows: out, TotalRows: len(out)}, nil
}
