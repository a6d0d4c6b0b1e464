package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/xraph/keel/backoff"
	"github.com/xraph/keel/id"
	"github.com/xraph/keel/record"
	"github.com/xraph/keel/storage"
)

// runningOperation is the live execution of one claimed record: the
// durable operation. It is ephemeral — never persisted, lost on crash,
// recreated from the record on restart. At most one exists per record
// at any time; the claim transaction guarantees it.
type runningOperation struct {
	q         *Queue
	opID      id.OperationID
	rec       *record.Record
	op        Operation
	remaining int
	bo        backoff.Strategy

	// retryNow is poked by the reachability signal (or tests) to cut a
	// backoff wait short. Buffered so pokes coalesce and never block.
	retryNow chan struct{}
}

func newRunningOperation(q *Queue, rec *record.Record, op Operation) *runningOperation {
	remaining := q.jobType.MaxRetries() - rec.FailureCount
	if remaining < 0 {
		remaining = 0
	}
	return &runningOperation{
		q:         q,
		opID:      id.NewOperationID(),
		rec:       rec,
		op:        op,
		remaining: remaining,
		bo:        q.bo,
		retryNow:  make(chan struct{}, 1),
	}
}

// TriggerRetry cuts the operation's current backoff wait short, if it
// is waiting. This only accelerates an operation already holding its
// record; it never bypasses the claim.
func (ro *runningOperation) TriggerRetry() {
	select {
	case ro.retryNow <- struct{}{}:
	default: // a poke is already pending
	}
}

// run drives the attempt loop to exactly one terminal outcome, then
// releases the worker slot and chains the next work step. It runs on
// its own goroutine; ctx is the queue's run context, cancelled only on
// forced shutdown.
func (ro *runningOperation) run(ctx context.Context) {
	q := ro.q
	defer func() {
		q.untrack(ro.rec.ID)
		q.releaseSlot()
		q.wg.Done()
		q.TriggerWorkStep()
	}()

	start := time.Now()
	for {
		attemptErr := q.mw(ctx, ro.rec, ro.op.Run)

		switch {
		case attemptErr == nil:
			q.completeSuccess(ro, time.Since(start))
			return

		case ctx.Err() != nil && errors.Is(attemptErr, ctx.Err()):
			// Forced shutdown mid-attempt. Leave the record claimed;
			// startup recovery resets it to ready next launch.
			q.logger.Info("operation interrupted by shutdown",
				slog.Int64("record_id", ro.rec.ID),
				slog.String("operation_id", ro.opID.String()))
			return

		case IsObsolete(attemptErr):
			q.completeObsolete(ro, attemptErr)
			return

		case IsPermanent(attemptErr) || !q.jobType.IsRetryable(attemptErr):
			q.completePermanent(ro, attemptErr)
			return
		}

		// Retryable failure: persist the consumed budget before
		// deciding anything, so a crash mid-backoff keeps the count.
		if !q.persistFailure(ro, attemptErr) {
			return
		}
		if ro.remaining <= 0 {
			q.completePermanent(ro, attemptErr)
			return
		}
		ro.remaining--

		if !ro.waitBackoff(ctx) {
			q.logger.Info("operation interrupted during backoff",
				slog.Int64("record_id", ro.rec.ID),
				slog.String("operation_id", ro.opID.String()))
			return
		}
	}
}

// waitBackoff sleeps out the delay for the record's accumulated failure
// count. Returns early (true) when reachability pokes retryNow, and
// false when ctx is cancelled.
func (ro *runningOperation) waitBackoff(ctx context.Context) bool {
	delay := ro.bo.Delay(ro.rec.FailureCount)
	if delay <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-ro.retryNow:
		ro.q.logger.Debug("backoff cut short",
			slog.Int64("record_id", ro.rec.ID),
			slog.Duration("remaining_delay", delay))
		return true
	case <-ctx.Done():
		return false
	}
}

// ── terminal outcome handlers ────────────────────────────────────
//
// Each runs in a fresh write transaction. A storage failure here is
// logged and the outcome is abandoned for this process lifetime: the
// record stays "running" and the next launch's recovery pass re-runs
// it. There is no dedicated retry timer for completion writes, same
// as for claims.

func (q *Queue) completeSuccess(ro *runningOperation, elapsed time.Duration) {
	ctx := context.Background()
	err := q.db.Write(ctx, func(tx storage.Tx) error {
		if err := q.store.Delete(ctx, tx, ro.rec.ID); err != nil {
			return err
		}
		tx.OnCommit(func() { q.exts.EmitOperationSucceeded(ctx, ro.rec, elapsed) })
		return nil
	})
	if err != nil {
		q.logStorageError("remove succeeded record", ro.rec, err)
		return
	}
	q.logger.Info("record completed",
		slog.Int64("record_id", ro.rec.ID),
		slog.String("label", ro.rec.Label),
		slog.Int("failure_count", ro.rec.FailureCount),
		slog.Duration("elapsed", elapsed))
}

func (q *Queue) completeObsolete(ro *runningOperation, opErr error) {
	ctx := context.Background()
	ro.rec.Status = record.StatusObsolete
	err := q.db.Write(ctx, func(tx storage.Tx) error {
		if err := q.store.Update(ctx, tx, ro.rec); err != nil {
			return err
		}
		tx.OnCommit(func() { q.exts.EmitRecordObsoleted(ctx, ro.rec) })
		return nil
	})
	if err != nil {
		q.logStorageError("mark record obsolete", ro.rec, err)
		return
	}
	q.logger.Info("record obsolete",
		slog.Int64("record_id", ro.rec.ID),
		slog.String("label", ro.rec.Label),
		slog.String("reason", opErr.Error()))
}

func (q *Queue) completePermanent(ro *runningOperation, opErr error) {
	ctx := context.Background()
	ro.rec.Status = record.StatusPermanentlyFailed
	err := q.db.Write(ctx, func(tx storage.Tx) error {
		if err := q.store.Update(ctx, tx, ro.rec); err != nil {
			return err
		}
		tx.OnCommit(func() { q.exts.EmitOperationFailed(ctx, ro.rec, opErr) })
		return nil
	})
	if err != nil {
		q.logStorageError("mark record permanently failed", ro.rec, err)
		return
	}
	// Terminal failures are a logged outcome, never a surfaced error:
	// the original enqueue was fire-and-forget.
	q.logger.Warn("record permanently failed",
		slog.Int64("record_id", ro.rec.ID),
		slog.String("label", ro.rec.Label),
		slog.Int("failure_count", ro.rec.FailureCount),
		slog.String("error", opErr.Error()))
}

// persistFailure records one consumed retry. Returns false if the write
// failed, in which case the operation aborts for this cycle.
func (q *Queue) persistFailure(ro *runningOperation, attemptErr error) bool {
	ctx := context.Background()
	ro.rec.FailureCount++
	remaining := ro.remaining - 1
	if remaining < 0 {
		remaining = 0
	}
	err := q.db.Write(ctx, func(tx storage.Tx) error {
		if err := q.store.Update(ctx, tx, ro.rec); err != nil {
			return err
		}
		tx.OnCommit(func() { q.exts.EmitAttemptFailed(ctx, ro.rec, attemptErr, remaining) })
		return nil
	})
	if err != nil {
		ro.rec.FailureCount-- // keep the in-memory view honest
		q.logStorageError("persist attempt failure", ro.rec, err)
		return false
	}
	q.logger.Debug("retry consumed",
		slog.Int64("record_id", ro.rec.ID),
		slog.String("label", ro.rec.Label),
		slog.Int("failure_count", ro.rec.FailureCount),
		slog.Int("remaining", remaining),
		slog.String("error", attemptErr.Error()))
	return true
}

func (q *Queue) logStorageError(op string, rec *record.Record, err error) {
	q.logger.Error("storage error, aborting cycle",
		slog.String("op", op),
		slog.Int64("record_id", rec.ID),
		slog.String("label", rec.Label),
		slog.String("error", err.Error()))
}
