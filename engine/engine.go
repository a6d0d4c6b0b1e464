// Package engine wires keel's subsystems together: it owns the job
// type registry, builds one queue per registered label, shares a single
// extension registry and reachability hub across them, and drives the
// startup sequence (migrate, recover, prune) and graceful shutdown.
//
// This package sits above all subsystem packages and below the
// application layer; nothing in it is required to use queue.Queue
// directly, it just removes the boilerplate.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/keel"
	"github.com/xraph/keel/backoff"
	"github.com/xraph/keel/ext"
	mw "github.com/xraph/keel/middleware"
	"github.com/xraph/keel/queue"
	"github.com/xraph/keel/reachability"
	"github.com/xraph/keel/record"
	"github.com/xraph/keel/storage"
)

// RateLimit configures per-label claim rate limiting.
type RateLimit struct {
	Label     string
	PerSecond float64
	Burst     int
}

// Engine owns one queue per registered job type plus the shared
// extension registry and reachability hub.
type Engine struct {
	db        storage.Database
	store     record.Store
	registry  *queue.Registry
	queues    map[string]*queue.Queue
	exts      *ext.Registry
	reach     *reachability.Hub
	logger    *slog.Logger
	config    keel.Config
	processID string

	jobTypes   []queue.JobType
	mws        []mw.Middleware
	rateLimits map[string]RateLimit

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider

	started bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger, inherited by every queue.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithConfig overrides the default engine configuration.
func WithConfig(cfg keel.Config) Option {
	return func(e *Engine) { e.config = cfg }
}

// WithProcessID sets the exclusive-process identifier for every queue.
// Generate one per local process with id.NewProcessID, or reuse an
// existing installation identifier.
func WithProcessID(processID string) Option {
	return func(e *Engine) { e.processID = processID }
}

// WithJobType registers a job type; one queue is built per label.
func WithJobType(jt queue.JobType) Option {
	return func(e *Engine) { e.jobTypes = append(e.jobTypes, jt) }
}

// WithExtension registers a lifecycle extension.
func WithExtension(x ext.Extension) Option {
	return func(e *Engine) { e.exts.Register(x) }
}

// WithMiddleware appends middleware around every operation attempt, on
// every queue, after the built-in stack.
func WithMiddleware(m mw.Middleware) Option {
	return func(e *Engine) { e.mws = append(e.mws, m) }
}

// WithRateLimit caps claim rates for one label's queue.
func WithRateLimit(rl RateLimit) Option {
	return func(e *Engine) { e.rateLimits[rl.Label] = rl }
}

// WithTracerProvider sets a custom OTel TracerProvider. If not set, the
// global provider is used (a noop unless configured).
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider. If not set, the
// global provider is used (a noop unless configured).
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(e *Engine) { e.meterProvider = mp }
}

// Build creates an Engine over the given database and record store.
// The caller owns the database lifecycle; Stop does not close it.
func Build(db storage.Database, store record.Store, opts ...Option) (*Engine, error) {
	if db == nil {
		return nil, keel.ErrNoDatabase
	}

	e := &Engine{
		db:         db,
		store:      store,
		registry:   queue.NewRegistry(),
		queues:     make(map[string]*queue.Queue),
		reach:      reachability.NewHub(),
		logger:     slog.Default(),
		config:     keel.DefaultConfig(),
		rateLimits: make(map[string]RateLimit),
	}
	e.exts = ext.NewRegistry(e.logger)

	for _, opt := range opts {
		opt(e)
	}

	// Build tracing middleware (custom provider or global).
	var tracingMw mw.Middleware
	if e.tracerProvider != nil {
		tracingMw = mw.TracingWithTracer(e.tracerProvider.Tracer("github.com/xraph/keel"))
	} else {
		tracingMw = mw.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw mw.Middleware
	if e.meterProvider != nil {
		metricsMw = mw.MetricsWithMeter(e.meterProvider.Meter("github.com/xraph/keel"))
	} else {
		metricsMw = mw.Metrics()
	}

	// Default stack: tracing, then metrics, then logging, then user middleware.
	// Recover is built into every queue as the outermost wrapper.
	stack := []mw.Middleware{tracingMw, metricsMw, mw.Logging(e.logger)}
	stack = append(stack, e.mws...)

	for _, jt := range e.jobTypes {
		if err := e.registry.Register(jt); err != nil {
			return nil, err
		}

		qopts := []queue.Option{
			queue.WithLogger(e.logger),
			queue.WithProcessID(e.processID),
			queue.WithExtensions(e.exts),
			queue.WithReachability(e.reach),
			queue.WithMiddleware(stack...),
		}
		if e.config.BackoffInitial > 0 {
			// Fallback strategy; a job type's own BackoffProvider wins.
			qopts = append(qopts, queue.WithBackoff(backoff.Exponential{
				Initial: e.config.BackoffInitial,
				Max:     e.config.BackoffMax,
				Jitter:  true,
			}))
		}
		if rl, ok := e.rateLimits[jt.Label()]; ok {
			qopts = append(qopts, queue.WithRateLimit(rl.PerSecond, rl.Burst))
		}
		e.queues[jt.Label()] = queue.New(jt, db, store, qopts...)
	}

	return e, nil
}

// Start migrates the schema and starts every queue. Each queue's
// startup sequence (recovery, then pruning) completes before its work
// loop opens.
func (e *Engine) Start(ctx context.Context) error {
	if e.started {
		return nil
	}

	if err := e.db.Migrate(ctx); err != nil {
		return fmt.Errorf("engine: migrate: %w", err)
	}

	for _, label := range e.labels() {
		if err := e.queues[label].Start(ctx); err != nil {
			return fmt.Errorf("engine: start queue %q: %w", label, err)
		}
	}

	e.started = true
	e.logger.Info("engine started", slog.Int("queues", len(e.queues)))
	return nil
}

// Stop gracefully shuts down every queue, bounded by the configured
// shutdown timeout, then notifies Shutdown extensions.
func (e *Engine) Stop(ctx context.Context) error {
	if !e.started {
		return nil
	}

	stopCtx, cancel := context.WithTimeout(ctx, e.config.ShutdownTimeout)
	defer cancel()

	for _, label := range e.labels() {
		if err := e.queues[label].Stop(stopCtx); err != nil {
			e.logger.Error("queue stop error",
				slog.String("label", label),
				slog.String("error", err.Error()))
		}
	}

	e.exts.EmitShutdown(ctx)
	e.started = false
	return nil
}

// Add inserts a record for the given label inside the caller's write
// transaction. The queue steps once the transaction commits.
func (e *Engine) Add(ctx context.Context, tx storage.Tx, label string, payload []byte, opts ...queue.AddOption) (*record.Record, error) {
	q, ok := e.queues[label]
	if !ok {
		return nil, fmt.Errorf("%w: %q", keel.ErrUnknownLabel, label)
	}
	return q.Add(ctx, tx, payload, opts...)
}

// Enqueue marshals a typed payload and inserts a record for the label
// inside its own write transaction.
func Enqueue[T any](ctx context.Context, e *Engine, label string, payload T, opts ...queue.AddOption) (*record.Record, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("engine: marshal payload for %q: %w", label, err)
	}

	var rec *record.Record
	err = e.db.Write(ctx, func(tx storage.Tx) error {
		var addErr error
		rec, addErr = e.Add(ctx, tx, label, data, opts...)
		return addErr
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// NotifyReachable broadcasts the became-reachable signal to every
// queue whose job type requires internet. Call it from whatever owns
// platform connectivity monitoring.
func (e *Engine) NotifyReachable() { e.reach.NotifyReachable() }

// Queue returns the queue for a label.
func (e *Engine) Queue(label string) (*queue.Queue, bool) {
	q, ok := e.queues[label]
	return q, ok
}

// Extensions returns the shared extension registry.
func (e *Engine) Extensions() *ext.Registry { return e.exts }

// Reachability returns the shared reachability hub.
func (e *Engine) Reachability() *reachability.Hub { return e.reach }

func (e *Engine) labels() []string {
	labels := make([]string, 0, len(e.queues))
	for label := range e.queues {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}
