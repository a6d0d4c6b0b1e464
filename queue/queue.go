// Package queue implements the per-label coordinator for durable work:
// claiming records in FIFO order inside write transactions, driving
// operations through a bounded worker pool, persisting retry
// bookkeeping, recovering orphaned records at startup, pruning stale
// ones, and accelerating in-flight retries when reachability returns.
package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/keel/backoff"
	"github.com/xraph/keel/ext"
	"github.com/xraph/keel/middleware"
	"github.com/xraph/keel/reachability"
	"github.com/xraph/keel/record"
	"github.com/xraph/keel/storage"
)

// Queue drives one label's records from ready to a terminal outcome.
// Create one with New, call Start once, and enqueue records with Add
// inside your own write transactions.
type Queue struct {
	jobType   JobType
	db        storage.Database
	store     record.Store
	processID string
	logger    *slog.Logger
	bo        backoff.Strategy
	mw        middleware.Middleware
	mws       []middleware.Middleware
	exts      *ext.Registry
	reach     *reachability.Hub
	limiter   *rate.Limiter

	// trigger coalesces work step requests: the work loop drains to
	// empty per wakeup, so one pending signal is always enough.
	trigger chan struct{}
	// sem holds worker pool slots; nil means unbounded concurrency.
	sem    chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	runCtx    context.Context
	runCancel context.CancelFunc

	mu       sync.Mutex
	ready    bool
	stopped  bool
	deferred bool
	// active is the auxiliary index of live operations, keyed by record
	// id, used for reachability pokes. Storage remains the source of
	// truth for what is claimed; this map only mirrors it.
	active map[int64]*runningOperation
}

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the queue's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) { q.logger = logger }
}

// WithProcessID sets the exclusive-process identifier this queue claims
// under. Queues in different local processes sharing one store must use
// distinct identifiers.
func WithProcessID(processID string) Option {
	return func(q *Queue) { q.processID = processID }
}

// WithBackoff overrides the retry delay strategy. A job type
// implementing BackoffProvider takes precedence over this option.
func WithBackoff(bo backoff.Strategy) Option {
	return func(q *Queue) { q.bo = bo }
}

// WithMiddleware appends middleware around each operation attempt.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(q *Queue) { q.mws = append(q.mws, mws...) }
}

// WithExtensions sets the lifecycle extension registry.
func WithExtensions(r *ext.Registry) Option {
	return func(q *Queue) { q.exts = r }
}

// WithReachability subscribes the queue to the became-reachable signal.
// Only job types with RequiresInternet() true use the subscription.
func WithReachability(hub *reachability.Hub) Option {
	return func(q *Queue) { q.reach = hub }
}

// WithRateLimit caps sustained claims at perSecond with the given
// burst, using a token bucket. Zero perSecond disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(q *Queue) {
		if perSecond > 0 {
			if burst <= 0 {
				burst = 1
			}
			q.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// New creates a Queue for the job type's label. The queue is inert
// until Start runs recovery and pruning; triggers arriving before then
// are deferred, not dropped.
func New(jobType JobType, db storage.Database, store record.Store, opts ...Option) *Queue {
	q := &Queue{
		jobType: jobType,
		db:      db,
		store:   store,
		logger:  slog.Default(),
		trigger: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		active:  make(map[int64]*runningOperation),
	}
	for _, opt := range opts {
		opt(q)
	}

	q.logger = q.logger.With(slog.String("label", jobType.Label()))

	if bp, ok := jobType.(BackoffProvider); ok {
		q.bo = bp.Backoff()
	}
	if q.bo == nil {
		q.bo = backoff.Default()
	}
	if q.exts == nil {
		q.exts = ext.NewRegistry(q.logger)
	}
	if concurrency := jobType.Concurrency(); concurrency > 0 {
		q.sem = make(chan struct{}, concurrency)
	}

	q.mw = middleware.Chain(append([]middleware.Middleware{
		middleware.Recover(q.logger),
	}, q.mws...)...)

	q.runCtx, q.runCancel = context.WithCancel(context.Background())
	return q
}

// Label returns the label this queue drains.
func (q *Queue) Label() string { return q.jobType.Label() }

// ── enqueue ──────────────────────────────────────────────────────

// AddOption configures one enqueue.
type AddOption func(*addConfig)

type addConfig struct {
	exclusive bool
}

// ExclusiveToThisProcess restricts the record to the enqueuing
// process: no other process sharing the store will ever claim it.
func ExclusiveToThisProcess() AddOption {
	return func(c *addConfig) { c.exclusive = true }
}

// Add inserts a new ready record inside the caller's write transaction
// and arranges for a work step once the transaction commits. The call
// is fire-and-forget: the record's eventual outcome is never reported
// back through the queue's API.
func (q *Queue) Add(ctx context.Context, tx storage.Tx, payload []byte, opts ...AddOption) (*record.Record, error) {
	var cfg addConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	rec := &record.Record{
		Label:   q.jobType.Label(),
		Status:  record.StatusReady,
		Payload: payload,
	}
	if cfg.exclusive {
		rec.ExclusiveProcessID = q.processID
	}

	if err := q.store.Insert(ctx, tx, rec); err != nil {
		return nil, err
	}

	tx.OnCommit(func() { q.exts.EmitRecordEnqueued(context.Background(), rec) })
	tx.OnCommitAsync(q.TriggerWorkStep)
	return rec, nil
}

// ── lifecycle ────────────────────────────────────────────────────

// Start runs the startup sequence — recovery of orphaned running
// records, then pruning of stale ones — and opens the work loop. Until
// Start returns, work step triggers are deferred.
func (q *Queue) Start(ctx context.Context) error {
	if err := q.restartOldJobs(ctx); err != nil {
		return err
	}
	if err := q.pruneStaleJobs(ctx); err != nil {
		return err
	}

	q.wg.Add(1)
	go q.workLoop()

	if q.reach != nil && q.jobType.RequiresInternet() {
		ch, cancel := q.reach.Subscribe()
		q.wg.Add(1)
		go q.reachabilityLoop(ch, cancel)
	}

	q.mu.Lock()
	q.ready = true
	q.deferred = false
	q.mu.Unlock()

	q.logger.Info("queue started")

	// Recovery may have produced ready records, and triggers may have
	// been deferred while setup ran; either way, step now.
	q.TriggerWorkStep()
	return nil
}

// Stop closes the queue: no new claims are made, and in-flight
// operations are waited for until ctx expires, after which their
// contexts are cancelled. Cancellation is cooperative; a record whose
// operation ignores it stays claimed and recovers on next launch.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	q.mu.Unlock()

	close(q.stopCh)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("queue stopped gracefully")
	case <-ctx.Done():
		q.logger.Warn("queue shutdown timed out, cancelling in-flight operations")
		q.runCancel()
		q.wg.Wait()
	}

	q.runCancel()
	return nil
}

// TriggerWorkStep asks the queue to attempt a claim. Before Start
// completes the trigger is deferred; after Stop it is dropped. Safe to
// call from any goroutine; triggers coalesce.
func (q *Queue) TriggerWorkStep() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	if !q.ready {
		q.deferred = true
		q.mu.Unlock()
		return
	}
	q.mu.Unlock()

	select {
	case q.trigger <- struct{}{}:
	default: // a wakeup is already pending
	}
}

// ── work loop ────────────────────────────────────────────────────

func (q *Queue) workLoop() {
	defer q.wg.Done()
	for {
		select {
		case <-q.stopCh:
			return
		case <-q.trigger:
			// Drain to empty: one claim per transaction, chained, until
			// no eligible record remains or the pool is saturated.
			for q.workStep() {
			}
		}
	}
}

// workStep attempts to claim and launch exactly one record. It returns
// true when a claim was resolved (launched or terminal at build time)
// and the loop should try for another.
func (q *Queue) workStep() bool {
	q.mu.Lock()
	stopped := q.stopped
	q.mu.Unlock()
	if stopped {
		return false
	}

	if !q.acquireSlot() {
		return false
	}

	if q.limiter != nil {
		res := q.limiter.Reserve()
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			q.releaseSlot()
			time.AfterFunc(delay, q.TriggerWorkStep)
			return false
		}
	}

	ctx := q.runCtx
	var resolved, launched bool

	err := q.db.Write(ctx, func(tx storage.Tx) error {
		rec, err := q.store.NextReady(ctx, tx, q.jobType.Label(), q.processID)
		if err != nil {
			return err
		}
		if rec == nil {
			return nil // idle: the normal stopping condition, not an error
		}
		resolved = true

		// Claim: the transition to running commits atomically with the
		// read that selected the record, so no other queue instance can
		// claim it concurrently.
		rec.Status = record.StatusRunning
		if err := q.store.Update(ctx, tx, rec); err != nil {
			return err
		}

		op, buildErr := q.jobType.BuildOperation(rec)
		if buildErr != nil {
			// Construction failure: terminal before any work begins.
			if IsObsolete(buildErr) {
				rec.Status = record.StatusObsolete
				tx.OnCommit(func() { q.exts.EmitRecordObsoleted(context.Background(), rec) })
			} else {
				rec.Status = record.StatusPermanentlyFailed
				tx.OnCommit(func() { q.exts.EmitOperationFailed(context.Background(), rec, buildErr) })
			}
			q.logger.Warn("operation construction failed",
				slog.Int64("record_id", rec.ID),
				slog.String("status", string(rec.Status)),
				slog.String("error", buildErr.Error()))
			return q.store.Update(ctx, tx, rec)
		}

		ro := newRunningOperation(q, rec, op)
		launched = true
		tx.OnCommit(func() {
			q.track(ro)
			q.exts.EmitOperationStarted(context.Background(), rec, ro.opID.String())
			q.wg.Add(1)
			go ro.run(q.runCtx)
		})
		return nil
	})

	if err != nil {
		// Storage failure: abort this cycle. There is no retry timer;
		// the next insert, completion, or reachability event re-runs
		// the step. An isolated failure can stall the queue until then.
		q.releaseSlot()
		q.logger.Error("work step aborted",
			slog.String("error", err.Error()))
		return false
	}
	if !launched {
		// Idle, or the claim resolved terminally at build time.
		q.releaseSlot()
	}
	return resolved
}

func (q *Queue) acquireSlot() bool {
	if q.sem == nil {
		return true
	}
	select {
	case q.sem <- struct{}{}:
		return true
	default:
		// Pool saturated; a completion will trigger the next step.
		return false
	}
}

func (q *Queue) releaseSlot() {
	if q.sem == nil {
		return
	}
	<-q.sem
}

func (q *Queue) track(ro *runningOperation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.active[ro.rec.ID] = ro
}

func (q *Queue) untrack(recordID int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.active, recordID)
}

// ActiveCount returns the number of live operations, for inspection.
func (q *Queue) ActiveCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

// ── reachability ─────────────────────────────────────────────────

func (q *Queue) reachabilityLoop(ch <-chan struct{}, cancel func()) {
	defer q.wg.Done()
	defer cancel()
	for {
		select {
		case <-q.stopCh:
			return
		case <-ch:
			q.retryActiveNow()
		}
	}
}

// retryActiveNow pokes every in-flight operation to retry without
// waiting out its backoff. It also triggers a work step, since a ready
// record may have been waiting on connectivity too.
func (q *Queue) retryActiveNow() {
	q.mu.Lock()
	ops := make([]*runningOperation, 0, len(q.active))
	for _, ro := range q.active {
		ops = append(ops, ro)
	}
	q.mu.Unlock()

	for _, ro := range ops {
		ro.TriggerRetry()
	}
	if len(ops) > 0 {
		q.logger.Debug("reachability restored, accelerated retries",
			slog.Int("operations", len(ops)))
	}
	q.TriggerWorkStep()
}

// ── startup recovery and pruning ─────────────────────────────────

// restartOldJobs resets records orphaned in running status back to
// ready. A crash mid-execution is indistinguishable from abandonment;
// retrying is the safe default. Records claimed under a different
// exclusive process id are left alone — that process may still be
// live, and it recovers its own records at its own startup.
func (q *Queue) restartOldJobs(ctx context.Context) error {
	var count int
	err := q.db.Write(ctx, func(tx storage.Tx) error {
		recs, err := q.store.AllWithStatus(ctx, tx, q.jobType.Label(), record.StatusRunning)
		if err != nil {
			return err
		}
		hook, hasHook := q.jobType.(RecoveryHook)
		for _, rec := range recs {
			if rec.ExclusiveProcessID != "" && rec.ExclusiveProcessID != q.processID {
				continue
			}
			rec.Status = record.StatusReady
			if err := q.store.Update(ctx, tx, rec); err != nil {
				return err
			}
			if hasHook {
				hook.DidRecoverRecord(ctx, tx, rec)
			}
			count++
		}
		if count > 0 {
			tx.OnCommit(func() {
				q.exts.EmitRecordsRecovered(context.Background(), q.jobType.Label(), count)
			})
		}
		return nil
	})
	if err != nil {
		return err
	}
	if count > 0 {
		q.logger.Info("recovered orphaned records", slog.Int("count", count))
	}
	return nil
}

// pruneStaleJobs deletes terminal records and ready records that can
// never run in this process. Running it twice is a no-op the second
// time: pruning only ever removes records that were already stale.
func (q *Queue) pruneStaleJobs(ctx context.Context) error {
	var count int
	err := q.db.Write(ctx, func(tx storage.Tx) error {
		stale, err := q.store.Stale(ctx, tx, q.jobType.Label(), q.processID)
		if err != nil {
			return err
		}
		for _, rec := range stale {
			if err := q.store.Delete(ctx, tx, rec.ID); err != nil {
				return err
			}
			count++
		}
		if count > 0 {
			tx.OnCommit(func() {
				q.exts.EmitRecordsPruned(context.Background(), q.jobType.Label(), count)
			})
		}
		return nil
	})
	if err != nil {
		return err
	}
	if count > 0 {
		q.logger.Info("pruned stale records", slog.Int("count", count))
	}
	return nil
}
