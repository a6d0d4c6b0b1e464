// Package memstore provides an in-memory storage.Database and
// record.Store for tests and examples. Transactions are serialized with
// an RWMutex (writers exclusive, readers shared), mutations are undone
// on rollback, and commit hooks fire only after a successful commit, so
// the backend exhibits the same observable semantics as the persistent
// one — minus durability.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xraph/keel"
	"github.com/xraph/keel/record"
	"github.com/xraph/keel/storage"
)

// Compile-time interface checks.
var (
	_ storage.Database = (*DB)(nil)
	_ record.Store     = (*DB)(nil)
)

// DB is an in-memory database-and-store. The zero value is not usable;
// create one with New.
type DB struct {
	mu      sync.RWMutex
	records map[int64]*record.Record
	nextID  int64
	closed  bool
}

// New creates an empty in-memory database.
func New() *DB {
	return &DB{records: make(map[int64]*record.Record)}
}

// Tx is one open memstore transaction.
type Tx struct {
	db       *DB
	writable bool
	undo     []func()
	hooks    []func()
	async    []func()
}

// Writable implements storage.Tx.
func (t *Tx) Writable() bool { return t.writable }

// OnCommit implements storage.Tx.
func (t *Tx) OnCommit(fn func()) { t.hooks = append(t.hooks, fn) }

// OnCommitAsync implements storage.Tx.
func (t *Tx) OnCommitAsync(fn func()) { t.async = append(t.async, fn) }

// ── storage.Database ─────────────────────────────────────────────

// Read runs fn inside a shared-lock transaction.
func (db *DB) Read(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db.mu.RLock()
	if db.closed {
		db.mu.RUnlock()
		return keel.ErrDatabaseClosed
	}
	tx := &Tx{db: db}
	err := fn(tx)
	db.mu.RUnlock()
	if err != nil {
		return err
	}
	runHooks(tx)
	return nil
}

// Write runs fn inside an exclusive-lock transaction. If fn returns an
// error every mutation is undone and commit hooks are discarded.
func (db *DB) Write(ctx context.Context, fn func(tx storage.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	db.mu.Lock()
	if db.closed {
		db.mu.Unlock()
		return keel.ErrDatabaseClosed
	}
	tx := &Tx{db: db, writable: true}
	err := fn(tx)
	if err != nil {
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		db.mu.Unlock()
		return err
	}
	db.mu.Unlock()
	runHooks(tx)
	return nil
}

func runHooks(tx *Tx) {
	for _, fn := range tx.hooks {
		fn()
	}
	for _, fn := range tx.async {
		go fn()
	}
}

// Migrate is a no-op for the memory backend.
func (db *DB) Migrate(_ context.Context) error { return nil }

// Ping reports whether the database is open.
func (db *DB) Ping(_ context.Context) error {
	db.mu.RLock()
	defer db.mu.RUnlock()
	if db.closed {
		return keel.ErrDatabaseClosed
	}
	return nil
}

// Close marks the database closed. Subsequent transactions fail with
// keel.ErrDatabaseClosed.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.closed = true
	return nil
}

// ── record.Store ─────────────────────────────────────────────────

func (db *DB) tx(tx storage.Tx) (*Tx, error) {
	t, ok := tx.(*Tx)
	if !ok || t.db != db {
		return nil, fmt.Errorf("memstore: transaction does not belong to this database")
	}
	return t, nil
}

func (db *DB) writeTx(tx storage.Tx) (*Tx, error) {
	t, err := db.tx(tx)
	if err != nil {
		return nil, err
	}
	if !t.writable {
		return nil, keel.ErrTxReadOnly
	}
	return t, nil
}

// Insert assigns the next monotonic id and stores a clone of rec.
func (db *DB) Insert(_ context.Context, tx storage.Tx, rec *record.Record) error {
	t, err := db.writeTx(tx)
	if err != nil {
		return err
	}

	db.nextID++
	rec.ID = db.nextID
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	db.records[rec.ID] = rec.Clone()
	recID := rec.ID
	t.undo = append(t.undo, func() {
		delete(db.records, recID)
		db.nextID-- // ids are never reused; a rolled-back insert never committed
	})
	return nil
}

// Update overwrites the stored record with a clone of rec.
func (db *DB) Update(_ context.Context, tx storage.Tx, rec *record.Record) error {
	t, err := db.writeTx(tx)
	if err != nil {
		return err
	}
	prev, ok := db.records[rec.ID]
	if !ok {
		return keel.ErrRecordNotFound
	}
	rec.UpdatedAt = time.Now().UTC()
	db.records[rec.ID] = rec.Clone()
	t.undo = append(t.undo, func() { db.records[rec.ID] = prev })
	return nil
}

// Delete removes the record if present. Absence is not an error.
func (db *DB) Delete(_ context.Context, tx storage.Tx, recordID int64) error {
	t, err := db.writeTx(tx)
	if err != nil {
		return err
	}
	prev, ok := db.records[recordID]
	if !ok {
		return nil
	}
	delete(db.records, recordID)
	t.undo = append(t.undo, func() { db.records[recordID] = prev })
	return nil
}

// Get returns a clone of the record, or keel.ErrRecordNotFound.
func (db *DB) Get(_ context.Context, tx storage.Tx, recordID int64) (*record.Record, error) {
	if _, err := db.tx(tx); err != nil {
		return nil, err
	}
	rec, ok := db.records[recordID]
	if !ok {
		return nil, keel.ErrRecordNotFound
	}
	return rec.Clone(), nil
}

// NextReady returns the lowest-id eligible ready record for the label,
// or (nil, nil) when idle.
func (db *DB) NextReady(_ context.Context, tx storage.Tx, label, processID string) (*record.Record, error) {
	if _, err := db.tx(tx); err != nil {
		return nil, err
	}
	var best *record.Record
	for _, rec := range db.records {
		if rec.Label != label || !rec.EligibleFor(processID) {
			continue
		}
		if best == nil || rec.ID < best.ID {
			best = rec
		}
	}
	if best == nil {
		return nil, nil
	}
	return best.Clone(), nil
}

// AllWithStatus returns clones of every record for the label in status.
func (db *DB) AllWithStatus(_ context.Context, tx storage.Tx, label string, status record.Status) ([]*record.Record, error) {
	if _, err := db.tx(tx); err != nil {
		return nil, err
	}
	var out []*record.Record
	for _, rec := range db.records {
		if rec.Label == label && rec.Status == status {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

// Stale returns clones of every record that is terminal or permanently
// ineligible for processID.
func (db *DB) Stale(_ context.Context, tx storage.Tx, label, processID string) ([]*record.Record, error) {
	if _, err := db.tx(tx); err != nil {
		return nil, err
	}
	var out []*record.Record
	for _, rec := range db.records {
		if rec.Label == label && rec.StaleFor(processID) {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

// Counts returns record counts per status for the label ("" = all).
func (db *DB) Counts(_ context.Context, tx storage.Tx, label string) (map[record.Status]int64, error) {
	if _, err := db.tx(tx); err != nil {
		return nil, err
	}
	out := make(map[record.Status]int64)
	for _, rec := range db.records {
		if label == "" || rec.Label == label {
			out[rec.Status]++
		}
	}
	return out, nil
}
