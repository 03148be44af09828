// Package sqlite serves existing SQLite database files read-only through
// the connector interface. Schemas come from the catalog tables and
// pragmas; queries run directly against the file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"dolex/internal/columns"
	"dolex/internal/connect"
	"dolex/internal/core"
	"dolex/internal/infer"
)

func init() {
	connect.Register(core.SourceSQLite, New)
}

type connector struct{}

// New returns the SQLite connector.
func New() connect.Connector {
	return &connector{}
}

func (c *connector) Test(ctx context.Context, cfg core.SourceConfig) error {
	if _, err := os.Stat(cfg.Path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("path not found: %s", cfg.Path)
		}
		return err
	}
	db, err := open(cfg.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.PingContext(ctx)
}

func (c *connector) Connect(ctx context.Context, cfg core.SourceConfig) (connect.ConnectedSource, error) {
	if _, err := os.Stat(cfg.Path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("path not found: %s", cfg.Path)
		}
		return nil, err
	}
	db, err := open(cfg.Path)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return &connected{db: db}, nil
}

func open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

type connected struct {
	db *sql.DB

	mu     sync.Mutex
	schema *core.DataSchema
}

func (s *connected) Dialect() core.Dialect { return core.DialectSQLite }

func (s *connected) Close() error { return s.db.Close() }

func (s *connected) Schema(ctx context.Context) (*core.DataSchema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schema != nil {
		return s.schema, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	schema := &core.DataSchema{}
	for _, table := range tables {
		t, err := s.profileTable(ctx, table)
		if err != nil {
			return nil, err
		}
		schema.Tables = append(schema.Tables, t)

		fks, err := s.foreignKeys(ctx, table)
		if err != nil {
			return nil, err
		}
		schema.ForeignKeys = append(schema.ForeignKeys, fks...)
	}
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

func (s *connected) foreignKeys(ctx context.Context, table string) ([]*core.ForeignKey, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT "table", "from", "to" FROM pragma_foreign_key_list('%s')`, strings.ReplaceAll(table, "'", "''")))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []*core.ForeignKey
	for rows.Next() {
		var toTable string
		var from, to sql.NullString
		if err := rows.Scan(&toTable, &from, &to); err != nil {
			return nil, err
		}
		fks = append(fks, &core.ForeignKey{
			FromTable: table, FromColumn: from.String,
			ToTable: toTable, ToColumn: to.String,
		})
	}
	return fks, rows.Err()
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
