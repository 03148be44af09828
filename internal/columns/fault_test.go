package columns

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dolex/internal/core"
)

// Driver-fault tests: sqlmock injects failures the embedded engine will not
// produce on its own, proving the manager surfaces wrapped errors and rolls
// back instead of committing partial writes.

func mockTable(t *testing.T) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db, "items"), mock
}

func expectNames(mock sqlmock.Sqlmock, names ...string) {
	rows := sqlmock.NewRows([]string{"name"})
	for _, n := range names {
		rows.AddRow(n)
	}
	mock.ExpectQuery("pragma_table_info").WillReturnRows(rows)
}

func TestNamesSurfacesDriverError(t *testing.T) {
	m, mock := mockTable(t)
	mock.ExpectQuery("pragma_table_info").WillReturnError(errors.New("disk I/O error"))

	_, err := m.Names(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list columns")
	assert.Contains(t, err.Error(), "disk I/O error")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddColumnRollsBackOnAlterFailure(t *testing.T) {
	m, mock := mockTable(t)
	expectNames(mock, "name", "qty")
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectBegin()
	mock.ExpectExec("ALTER TABLE").WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	err := m.AddColumn(context.Background(), "extra", []any{1.0, 2.0}, core.TypeNumeric)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to add column")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOverwriteRollsBackOnMidWriteFailure(t *testing.T) {
	m, mock := mockTable(t)
	expectNames(mock, "name", "extra")
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT rowid FROM").WillReturnRows(sqlmock.NewRows([]string{"rowid"}).AddRow(1).AddRow(2))
	prep := mock.ExpectPrepare("UPDATE")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	err := m.OverwriteColumn(context.Background(), "extra", []any{10.0, 20.0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write row 1")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAddColumnBeginFailure(t *testing.T) {
	m, mock := mockTable(t)
	expectNames(mock, "name")
	mock.ExpectQuery("SELECT COUNT").WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectBegin().WillReturnError(errors.New("connection gone"))

	err := m.AddColumn(context.Background(), "extra", []any{1.0}, core.TypeNumeric)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to begin transaction")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDropColumnSurfacesDriverError(t *testing.T) {
	m, mock := mockTable(t)
	expectNames(mock, "name", "extra")
	mock.ExpectExec("ALTER TABLE").WillReturnError(errors.New("table is locked"))

	err := m.DropColumn(context.Background(), "extra")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to drop column")
	require.NoError(t, mock.ExpectationsWereMet())
}
