package ext

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/keel/record"
)

// Named entry types pair a hook implementation with the extension name
// captured at registration time. This avoids type-asserting back to
// Extension inside the emit methods.
type recordEnqueuedEntry struct {
	name string
	hook RecordEnqueued
}

type operationStartedEntry struct {
	name string
	hook OperationStarted
}

type attemptFailedEntry struct {
	name string
	hook AttemptFailed
}

type operationSucceededEntry struct {
	name string
	hook OperationSucceeded
}

type operationFailedEntry struct {
	name string
	hook OperationFailed
}

type recordObsoletedEntry struct {
	name string
	hook RecordObsoleted
}

type recordsRecoveredEntry struct {
	name string
	hook RecordsRecovered
}

type recordsPrunedEntry struct {
	name string
	hook RecordsPruned
}

type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
type Registry struct {
	extensions []Extension
	logger     *slog.Logger

	// Type-cached slices for each lifecycle hook.
	recordEnqueued     []recordEnqueuedEntry
	operationStarted   []operationStartedEntry
	attemptFailed      []attemptFailedEntry
	operationSucceeded []operationSucceededEntry
	operationFailed    []operationFailedEntry
	recordObsoleted    []recordObsoletedEntry
	recordsRecovered   []recordsRecoveredEntry
	recordsPruned      []recordsPrunedEntry
	shutdown           []shutdownEntry
}

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(RecordEnqueued); ok {
		r.recordEnqueued = append(r.recordEnqueued, recordEnqueuedEntry{name, h})
	}
	if h, ok := e.(OperationStarted); ok {
		r.operationStarted = append(r.operationStarted, operationStartedEntry{name, h})
	}
	if h, ok := e.(AttemptFailed); ok {
		r.attemptFailed = append(r.attemptFailed, attemptFailedEntry{name, h})
	}
	if h, ok := e.(OperationSucceeded); ok {
		r.operationSucceeded = append(r.operationSucceeded, operationSucceededEntry{name, h})
	}
	if h, ok := e.(OperationFailed); ok {
		r.operationFailed = append(r.operationFailed, operationFailedEntry{name, h})
	}
	if h, ok := e.(RecordObsoleted); ok {
		r.recordObsoleted = append(r.recordObsoleted, recordObsoletedEntry{name, h})
	}
	if h, ok := e.(RecordsRecovered); ok {
		r.recordsRecovered = append(r.recordsRecovered, recordsRecoveredEntry{name, h})
	}
	if h, ok := e.(RecordsPruned); ok {
		r.recordsPruned = append(r.recordsPruned, recordsPrunedEntry{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// EmitRecordEnqueued notifies all extensions that implement RecordEnqueued.
func (r *Registry) EmitRecordEnqueued(ctx context.Context, rec *record.Record) {
	for _, e := range r.recordEnqueued {
		if err := e.hook.OnRecordEnqueued(ctx, rec); err != nil {
			r.logHookError("OnRecordEnqueued", e.name, err)
		}
	}
}

// EmitOperationStarted notifies all extensions that implement OperationStarted.
func (r *Registry) EmitOperationStarted(ctx context.Context, rec *record.Record, operationID string) {
	for _, e := range r.operationStarted {
		if err := e.hook.OnOperationStarted(ctx, rec, operationID); err != nil {
			r.logHookError("OnOperationStarted", e.name, err)
		}
	}
}

// EmitAttemptFailed notifies all extensions that implement AttemptFailed.
func (r *Registry) EmitAttemptFailed(ctx context.Context, rec *record.Record, attemptErr error, remaining int) {
	for _, e := range r.attemptFailed {
		if err := e.hook.OnAttemptFailed(ctx, rec, attemptErr, remaining); err != nil {
			r.logHookError("OnAttemptFailed", e.name, err)
		}
	}
}

// EmitOperationSucceeded notifies all extensions that implement OperationSucceeded.
func (r *Registry) EmitOperationSucceeded(ctx context.Context, rec *record.Record, elapsed time.Duration) {
	for _, e := range r.operationSucceeded {
		if err := e.hook.OnOperationSucceeded(ctx, rec, elapsed); err != nil {
			r.logHookError("OnOperationSucceeded", e.name, err)
		}
	}
}

// EmitOperationFailed notifies all extensions that implement OperationFailed.
func (r *Registry) EmitOperationFailed(ctx context.Context, rec *record.Record, opErr error) {
	for _, e := range r.operationFailed {
		if err := e.hook.OnOperationFailed(ctx, rec, opErr); err != nil {
			r.logHookError("OnOperationFailed", e.name, err)
		}
	}
}

// EmitRecordObsoleted notifies all extensions that implement RecordObsoleted.
func (r *Registry) EmitRecordObsoleted(ctx context.Context, rec *record.Record) {
	for _, e := range r.recordObsoleted {
		if err := e.hook.OnRecordObsoleted(ctx, rec); err != nil {
			r.logHookError("OnRecordObsoleted", e.name, err)
		}
	}
}

// EmitRecordsRecovered notifies all extensions that implement RecordsRecovered.
func (r *Registry) EmitRecordsRecovered(ctx context.Context, label string, count int) {
	for _, e := range r.recordsRecovered {
		if err := e.hook.OnRecordsRecovered(ctx, label, count); err != nil {
			r.logHookError("OnRecordsRecovered", e.name, err)
		}
	}
}

// EmitRecordsPruned notifies all extensions that implement RecordsPruned.
func (r *Registry) EmitRecordsPruned(ctx context.Context, label string, count int) {
	for _, e := range r.recordsPruned {
		if err := e.hook.OnRecordsPruned(ctx, label, count); err != nil {
			r.logHookError("OnRecordsPruned", e.name, err)
		}
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the queue.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
