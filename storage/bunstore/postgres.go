package bunstore

import (
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// OpenPostgres opens a PostgreSQL-backed store from a pgx connection
// string (URL or DSN form). The returned DB owns the connection and
// closes it on Close.
//
// Postgres relaxes nothing about the queue's model: each process still
// runs its own queues against its own labels plus the shared ones, and
// the process-local write mutex plus row ordering preserve the claim
// semantics. What it buys is a store that survives the host.
func OpenPostgres(connString string, opts ...Option) (*DB, error) {
	cfg, err := pgx.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("keel/bunstore: parse postgres config: %w", err)
	}
	sqldb := stdlib.OpenDB(*cfg)

	d := New(bun.NewDB(sqldb, pgdialect.New()), opts...)
	d.owned = true
	return d, nil
}
