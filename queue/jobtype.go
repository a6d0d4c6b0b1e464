package queue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/xraph/keel"
	"github.com/xraph/keel/backoff"
	"github.com/xraph/keel/record"
	"github.com/xraph/keel/storage"
)

// UnlimitedRetries is a MaxRetries value meaning the retry budget is
// effectively unbounded.
const UnlimitedRetries = math.MaxInt32

// Operation performs the work described by one claimed record, once.
// Run returns nil on success; otherwise the error is classified by the
// owning job type's IsRetryable (or by a Permanent/Obsolete wrapper) to
// decide whether a retry is consumed or the record fails terminally.
//
// Cancellation is cooperative: the context is cancelled on forced
// shutdown, and an attempt that returns the context's error leaves the
// record claimed for crash recovery to reset.
type Operation interface {
	Run(ctx context.Context) error
}

// OperationFunc adapts a function to the Operation interface.
type OperationFunc func(ctx context.Context) error

// Run implements Operation.
func (f OperationFunc) Run(ctx context.Context) error { return f(ctx) }

// JobType is the per-label collaborator contract. One implementation
// exists per record label; the registry maps labels to implementations
// and the engine builds one Queue per registered JobType.
type JobType interface {
	// Label identifies the job type. Each Queue operates on exactly
	// one label.
	Label() string

	// MaxRetries is the retry ceiling: the number of retryable failures
	// a record may consume after its first before failing permanently.
	// Use UnlimitedRetries for effectively unbounded.
	MaxRetries() int

	// RequiresInternet reports whether this job type's queue should
	// subscribe to the reachability signal and accelerate in-flight
	// retries when connectivity returns.
	RequiresInternet() bool

	// Concurrency is the worker pool size for this label. Values <= 0
	// mean unbounded; 1 gives strict in-order execution.
	Concurrency() int

	// BuildOperation constructs the runtime operation for a claimed
	// record. It may fail before any work begins (e.g. a malformed
	// payload): return an error wrapped with Obsolete or anything else
	// — non-obsolete construction failures are always permanent.
	BuildOperation(rec *record.Record) (Operation, error)

	// IsRetryable classifies an attempt error. Retryable errors
	// consume one retry; everything else escalates immediately to
	// permanent failure regardless of remaining budget.
	IsRetryable(err error) bool
}

// BackoffProvider is an optional JobType extension supplying a custom
// retry delay strategy. Job types without it get backoff.Default().
type BackoffProvider interface {
	Backoff() backoff.Strategy
}

// RecoveryHook is an optional JobType extension invoked once per record
// reset by startup recovery, inside the recovery write transaction, so
// type-specific cleanup (discarding partially-sent state, say) commits
// atomically with the status reset.
type RecoveryHook interface {
	DidRecoverRecord(ctx context.Context, tx storage.Tx, rec *record.Record)
}

// ── error classification ─────────────────────────────────────────

// PermanentError marks an attempt error as non-retryable regardless of
// the job type's classifier or remaining budget.
type PermanentError struct {
	Err error
}

// Permanent wraps err as a PermanentError.
func Permanent(err error) error { return &PermanentError{Err: err} }

// Error implements error.
func (e *PermanentError) Error() string { return "permanent: " + e.Err.Error() }

// Unwrap supports errors.Is/As through the wrapper.
func (e *PermanentError) Unwrap() error { return e.Err }

// ObsoleteError marks the record's work as no longer relevant. The
// record is marked obsolete and treated as a successful no-op for
// cleanup purposes.
type ObsoleteError struct {
	Err error
}

// Obsolete wraps err as an ObsoleteError.
func Obsolete(err error) error { return &ObsoleteError{Err: err} }

// Error implements error.
func (e *ObsoleteError) Error() string { return "obsolete: " + e.Err.Error() }

// Unwrap supports errors.Is/As through the wrapper.
func (e *ObsoleteError) Unwrap() error { return e.Err }

// IsObsolete reports whether err carries an ObsoleteError.
func IsObsolete(err error) bool {
	var oe *ObsoleteError
	return errors.As(err, &oe)
}

// IsPermanent reports whether err carries a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// ── registry ─────────────────────────────────────────────────────

// Registry maps record labels to job type implementations. It is safe
// for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	types map[string]JobType
}

// NewRegistry creates an empty job type registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]JobType)}
}

// Register adds a job type. Registering a label twice is an error.
func (r *Registry) Register(jt JobType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	label := jt.Label()
	if _, exists := r.types[label]; exists {
		return fmt.Errorf("%w: %q", keel.ErrDuplicateLabel, label)
	}
	r.types[label] = jt
	return nil
}

// Get returns the job type for the given label.
func (r *Registry) Get(label string) (JobType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	jt, ok := r.types[label]
	return jt, ok
}

// Labels returns all registered labels, sorted.
func (r *Registry) Labels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	labels := make([]string, 0, len(r.types))
	for label := range r.types {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
