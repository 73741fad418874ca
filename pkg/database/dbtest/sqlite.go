// Package dbtest opens throwaway databases with migrations applied, for
// tests only.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/stretchr/testify/require"

	"github.com/leasehold/leasehold/pkg/database"
)

// OpenSQLite returns a private in-memory SQLite database with foreign keys
// enforced and the given schemas applied. It is closed when the test ends.
func OpenSQLite(t testing.TB, schemas ...database.Schema) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	require.NoError(t, err)

	// Every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.MigrateAll(context.Background(), db, schemas...))
	return db
}
