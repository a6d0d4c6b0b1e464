// Package bunstore implements storage.Database and record.Store on the
// Bun ORM. Two dialects are supported: SQLite (the default embedded
// store, opened with OpenSQLite) and PostgreSQL (OpenPostgres, for
// deployments where several hosts share a server-side store but each
// runs its own queues).
//
// Write transactions are serialized with a process-local mutex in
// addition to the database's own locking, giving the single-writer
// semantics the queue's claim transaction depends on.
package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"github.com/xraph/keel"
	"github.com/xraph/keel/record"
	"github.com/xraph/keel/storage"
)

// Compile-time interface checks.
var (
	_ storage.Database = (*DB)(nil)
	_ record.Store     = (*DB)(nil)
)

// DB is a Bun-backed database-and-store. The caller owns the *bun.DB
// lifecycle only if it was supplied via New; databases opened with
// OpenSQLite or OpenPostgres are closed by Close.
type DB struct {
	db      *bun.DB
	logger  *slog.Logger
	writeMu sync.Mutex
	owned   bool
}

// Option configures the DB.
type Option func(*DB)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(d *DB) { d.logger = logger }
}

// New wraps an existing *bun.DB. The caller owns the db lifecycle —
// Close will not close it.
func New(db *bun.DB, opts ...Option) *DB {
	d := &DB{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// DB returns the underlying *bun.DB for advanced usage.
func (d *DB) DB() *bun.DB { return d.db }

// Tx is one open bunstore transaction.
type Tx struct {
	bun      bun.Tx
	writable bool
	hooks    []func()
	async    []func()
}

// Writable implements storage.Tx.
func (t *Tx) Writable() bool { return t.writable }

// OnCommit implements storage.Tx.
func (t *Tx) OnCommit(fn func()) { t.hooks = append(t.hooks, fn) }

// OnCommitAsync implements storage.Tx.
func (t *Tx) OnCommitAsync(fn func()) { t.async = append(t.async, fn) }

// Read runs fn inside a read-only transaction.
func (d *DB) Read(ctx context.Context, fn func(tx storage.Tx) error) error {
	return d.run(ctx, &sql.TxOptions{ReadOnly: true}, false, fn)
}

// Write runs fn inside a write transaction, serialized against other
// local writers. Commit hooks run only after the transaction commits.
func (d *DB) Write(ctx context.Context, fn func(tx storage.Tx) error) error {
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	return d.run(ctx, nil, true, fn)
}

func (d *DB) run(ctx context.Context, txOpts *sql.TxOptions, writable bool, fn func(tx storage.Tx) error) error {
	tx := &Tx{writable: writable}
	err := d.db.RunInTx(ctx, txOpts, func(_ context.Context, btx bun.Tx) error {
		tx.bun = btx
		return fn(tx)
	})
	if err != nil {
		return err
	}
	for _, hook := range tx.hooks {
		hook()
	}
	for _, hook := range tx.async {
		go hook()
	}
	return nil
}

// Migrate creates the record table and claim index if needed.
func (d *DB) Migrate(ctx context.Context) error {
	var ddl []string
	switch d.db.Dialect().Name() {
	case dialect.SQLite:
		ddl = sqliteDDL
	case dialect.PG:
		ddl = postgresDDL
	default:
		return fmt.Errorf("keel/bunstore: unsupported dialect %q", d.db.Dialect().Name())
	}
	for _, stmt := range ddl {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("keel/bunstore: migrate: %w", err)
		}
	}
	d.logger.Debug("schema migrated", slog.String("dialect", d.db.Dialect().Name().String()))
	return nil
}

// Ping checks database connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the underlying database if this DB opened it.
func (d *DB) Close() error {
	if !d.owned {
		return nil
	}
	return d.db.Close()
}

// ── helpers ──────────────────────────────────────────────────────

func (d *DB) tx(tx storage.Tx) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok {
		return nil, fmt.Errorf("keel/bunstore: transaction does not belong to this store")
	}
	return t, nil
}

func (d *DB) writeTx(tx storage.Tx) (*Tx, error) {
	t, err := d.tx(tx)
	if err != nil {
		return nil, err
	}
	if !t.writable {
		return nil, keel.ErrTxReadOnly
	}
	return t, nil
}

// isNoRows returns true when err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
