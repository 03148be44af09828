package tests

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func createSQLiteFixture(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE events (id INTEGER PRIMARY KEY, kind TEXT, amount REAL)`)
	require.NoError(t, err)
	for _, row := range []struct {
		kind   string
		amount float64
	}{{"click", 5}, {"view", 12}, {"click", 9}} {
		_, err = db.Exec(`INSERT INTO events (kind, amount) VALUES (?, ?)`, row.kind, row.amount)
		require.NoError(t, err)
	}
}
