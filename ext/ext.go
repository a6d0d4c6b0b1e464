// Package ext defines the extension system for keel. Extensions are
// notified of record lifecycle events (enqueued, started, retried,
// succeeded, failed, pruned) and can react to them — metrics, audit
// logging, user notification, and so on.
//
// Each lifecycle hook is a separate interface so extensions opt in only
// to the events they care about. Since the queue itself never surfaces
// job outcomes to the caller that enqueued the work, an extension hook
// is the supported way for job-type code to observe outcomes.
package ext

import (
	"context"
	"time"

	"github.com/xraph/keel/record"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// RecordEnqueued is called after a record insert commits.
type RecordEnqueued interface {
	OnRecordEnqueued(ctx context.Context, rec *record.Record) error
}

// OperationStarted is called when a queue claims a record and hands it
// to an operation. operationID is the ephemeral in-memory execution id.
type OperationStarted interface {
	OnOperationStarted(ctx context.Context, rec *record.Record, operationID string) error
}

// AttemptFailed is called after a retryable failure is persisted.
// remaining is the retry budget left after this failure.
type AttemptFailed interface {
	OnAttemptFailed(ctx context.Context, rec *record.Record, attemptErr error, remaining int) error
}

// OperationSucceeded is called after a record's work completes and the
// record is removed from storage.
type OperationSucceeded interface {
	OnOperationSucceeded(ctx context.Context, rec *record.Record, elapsed time.Duration) error
}

// OperationFailed is called when a record is marked permanently failed,
// either by a non-retryable error or an exhausted retry budget.
type OperationFailed interface {
	OnOperationFailed(ctx context.Context, rec *record.Record, opErr error) error
}

// RecordObsoleted is called when job logic reports the record's work is
// no longer relevant and the record is marked obsolete.
type RecordObsoleted interface {
	OnRecordObsoleted(ctx context.Context, rec *record.Record) error
}

// RecordsRecovered is called after startup recovery resets orphaned
// running records back to ready.
type RecordsRecovered interface {
	OnRecordsRecovered(ctx context.Context, label string, count int) error
}

// RecordsPruned is called after a pruning pass deletes stale records.
type RecordsPruned interface {
	OnRecordsPruned(ctx context.Context, label string, count int) error
}

// Shutdown is called when the engine is stopping.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
