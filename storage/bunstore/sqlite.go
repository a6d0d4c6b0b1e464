package bunstore

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

// OpenSQLite opens (or creates) an embedded SQLite store at path. Use
// ":memory:" for a throwaway store. The returned DB owns the
// connection and closes it on Close.
//
// The connection pool is pinned to a single connection: SQLite is a
// single-writer database, and with an in-memory path every pooled
// connection would otherwise see its own separate database.
func OpenSQLite(path string, opts ...Option) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	sqldb, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("keel/bunstore: open sqlite: %w", err)
	}
	sqldb.SetMaxOpenConns(1)

	d := New(bun.NewDB(sqldb, sqlitedialect.New()), opts...)
	d.owned = true
	return d, nil
}
