// Package storage defines the transactional store contract the queue is
// built on. The queue needs three things from a backend: atomic
// read/write transactions, a way to run a callback after a write
// transaction commits, and a way to run a callback asynchronously off
// the commit path. Chained work-stepping depends on these semantics —
// a record enqueued inside a transaction must only trigger the queue
// once the transaction is durable.
//
// Backends: storage/bunstore (SQLite or Postgres via the Bun ORM) and
// storage/memstore (in-memory, for tests).
package storage

import "context"

// Tx is one open transaction. Record store methods receive a Tx rather
// than opening their own; the store performs no transaction management
// itself.
//
// Implementations are not safe for concurrent use: a Tx belongs to the
// goroutine running the transaction function.
type Tx interface {
	// Writable reports whether this transaction may mutate records.
	Writable() bool

	// OnCommit registers fn to run synchronously after the transaction
	// commits, in registration order. Hooks on a rolled-back
	// transaction are discarded. On read transactions hooks run after
	// the transaction closes.
	OnCommit(fn func())

	// OnCommitAsync registers fn to run on its own goroutine after the
	// transaction commits. Use this for work that must not block the
	// commit path, such as triggering a queue work step.
	OnCommitAsync(fn func())
}

// Database provides serialized transactional access to the shared
// record table. Write transactions are queued, not interleaved: the
// backend must provide single-writer semantics, which is what makes the
// claim read and the ready → running transition atomic together.
type Database interface {
	// Read runs fn inside a read transaction.
	Read(ctx context.Context, fn func(tx Tx) error) error

	// Write runs fn inside a write transaction. The transaction commits
	// iff fn returns nil; otherwise it rolls back and registered commit
	// hooks are discarded.
	Write(ctx context.Context, fn func(tx Tx) error) error

	// Migrate creates or upgrades the backing schema.
	Migrate(ctx context.Context) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the backend. In-flight transactions finish first.
	Close() error
}
