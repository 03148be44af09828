// Package mysql serves MySQL databases through the connector interface.
// Schema introspection walks information_schema; profiling samples a
// bounded number of rows per table instead of reading everything, since
// server tables can be large.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/go-sql-driver/mysql"

	"dolex/internal/connect"
	"dolex/internal/core"
	"dolex/internal/infer"
)

func init() {
	connect.Register(core.SourceMySQL, New)
}

// profileRowLimit bounds how many rows column profiling reads per table.
const profileRowLimit = 5000

type connector struct{}

// New returns the MySQL connector.
func New() connect.Connector {
	return &connector{}
}

func (c *connector) Test(ctx context.Context, cfg core.SourceConfig) error {
	db, err := open(cfg.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

func (c *connector) Connect(ctx context.Context, cfg core.SourceConfig) (connect.ConnectedSource, error) {
	db, err := open(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &connected{db: db}, nil
}

func open(dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("mysql sources require a dsn")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	return db, nil
}

type connected struct {
	db *sql.DB

	mu     sync.Mutex
	schema *core.DataSchema
}

func (s *connected) Dialect() core.Dialect { return core.DialectMySQL }

func (s *connected) Close() error { return s.db.Close() }

func (s *connected) Schema(ctx context.Context) (*core.DataSchema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.schema != nil {
		return s.schema, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE'
		ORDER BY table_name
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
	}

	fks, err := s.foreignKeys(ctx)
	if err != nil {
		return nil, err
	}
	schema.ForeignKeys = fks
	s.schema = schema
	return schema, nil
}

func (s *connected) profileTable(ctx context.Context, table string) (*core.SchemaTable, error) {
	res, err := s.Execute(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", quote(table), profileRowLimit))
	if err != nil {
		return nil, err
	}

	var rowCount int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", quote(table))).Scan(&rowCount); err != nil {
		return nil, err
	}

	t := &core.SchemaTable{Name: table, RowCount: rowCount}
	for _, name := range res.Columns {
		cells := make([]string, len(res.Rows))
		for i, row := range res.Rows {
			if v := row[name]; v != nil {
				cells[i] = fmt.Sprint(v)
			}
		}
		t.Columns = append(t.Columns, infer.Profile(name, cells))
	}
	return t, nil
}

func (s *connected) foreignKeys(ctx context.Context) ([]*core.ForeignKey, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT table_name, column_name, referenced_table_name, referenced_column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = DATABASE() AND referenced_table_name IS NOT NULL
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []*core.ForeignKey
	for rows.Next() {
		fk := &core.ForeignKey{}
		if err := rows.Scan(&fk.FromTable, &fk.FromColumn, &fk.ToTable, &fk.ToColumn); err != nil {
			return nil, err
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

func (s *connected) SampleRows(ctx context.Context, table string, n int) ([]core.Row, error) {
	res, err := s.Execute(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", quote(table), profileRowLimit))
	if err != nil {
		return nil, err
	}
	idx := connect.EvenSample(len(res.Rows), n)
	out := make([]core.Row, 0, len(idx))
	for _, i := range idx {
		out = append(out, res.Rows[i])
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
			row[c] = normalize(cells[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &core.QueryResult{Columns: cols, Rows: out, TotalRows: len(out)}, nil
}

func normalize(v any) any {
	switch c := v.(type) {
	case []byte:
		return string(c)
	case int64:
		return float64(c)
	case int32:
		return float64(c)
	case float32:
		return float64(c)
	}
	return v
}

func quote(ident string) string {
	return "`" + ident + "`"
}
