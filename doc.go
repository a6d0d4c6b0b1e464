// Package keel provides a durable, crash-recoverable work queue for Go.
//
// Keel persists each unit of work as a record in a transactional store,
// drives it through a small state machine (ready → running → done /
// permanently failed / obsolete), retries transient failures against a
// per-job-type budget, and recovers cleanly from process crashes: a
// record found "running" at startup is reset to "ready" and re-run.
//
// Keel is a library, not a service. Register one JobType per record
// label, point the engine at a store, and enqueue records inside the
// same write transaction as the state change that produced them:
//
//	eng, err := engine.Build(db, store,
//	    engine.WithJobType(&sendType{}),
//	)
//	if err != nil { ... }
//	eng.Start(ctx)
//
//	err = db.Write(ctx, func(tx storage.Tx) error {
//	    _, err := eng.Add(ctx, tx, "send", payload)
//	    return err
//	})
//
// The enqueue is fire-and-forget: the queue never reports a job's
// outcome back to the caller. Job types that need to surface outcomes
// do so through their own channels (an ext hook, a domain table, etc).
//
// # Architecture
//
// Each label gets its own queue.Queue, independently drained through a
// bounded worker pool. The shared transactional store is the only
// serialization point: every record mutation happens inside a write
// transaction, and the claim (ready → running) commits in the same
// transaction as the read that selected it, so a record is held by at
// most one operation at a time — including across multiple local
// processes sharing the store, via the exclusive-process identifier.
package keel
