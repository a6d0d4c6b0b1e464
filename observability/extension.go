// Package observability provides a metrics extension that counts
// record lifecycle events through OpenTelemetry instruments. Register
// it with the engine to track enqueue rates, success/failure counts,
// consumed retries, and pruning volume without touching job-type code.
package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/keel/ext"
	"github.com/xraph/keel/record"
)

// meterName is the instrumentation scope name for lifecycle metrics.
const meterName = "github.com/xraph/keel/observability"

// Compile-time interface checks.
var (
	_ ext.Extension          = (*MetricsExtension)(nil)
	_ ext.RecordEnqueued     = (*MetricsExtension)(nil)
	_ ext.OperationStarted   = (*MetricsExtension)(nil)
	_ ext.AttemptFailed      = (*MetricsExtension)(nil)
	_ ext.OperationSucceeded = (*MetricsExtension)(nil)
	_ ext.OperationFailed    = (*MetricsExtension)(nil)
	_ ext.RecordObsoleted    = (*MetricsExtension)(nil)
	_ ext.RecordsRecovered   = (*MetricsExtension)(nil)
	_ ext.RecordsPruned      = (*MetricsExtension)(nil)
)

// MetricsExtension records lifecycle counters, one increment per event,
// attributed by record label.
type MetricsExtension struct {
	enqueued  metric.Int64Counter
	started   metric.Int64Counter
	retried   metric.Int64Counter
	succeeded metric.Int64Counter
	failed    metric.Int64Counter
	obsoleted metric.Int64Counter
	recovered metric.Int64Counter
	pruned    metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global OTel
// MeterProvider. With no provider configured the instruments are noops.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter, for injecting a specific MeterProvider in tests.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		_ = err // noop fallback guaranteed by OTel API contract
		return c
	}
	return &MetricsExtension{
		enqueued:  counter("keel.record.enqueued", "Records inserted"),
		started:   counter("keel.operation.started", "Operations claimed and started"),
		retried:   counter("keel.record.retried", "Retries consumed"),
		succeeded: counter("keel.operation.succeeded", "Records completed and removed"),
		failed:    counter("keel.operation.failed", "Records marked permanently failed"),
		obsoleted: counter("keel.record.obsoleted", "Records marked obsolete"),
		recovered: counter("keel.record.recovered", "Orphaned running records reset at startup"),
		pruned:    counter("keel.record.pruned", "Stale records deleted"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func labelAttr(label string) metric.AddOption {
	return metric.WithAttributes(attribute.String("label", label))
}

// OnRecordEnqueued implements ext.RecordEnqueued.
func (m *MetricsExtension) OnRecordEnqueued(ctx context.Context, rec *record.Record) error {
	m.enqueued.Add(ctx, 1, labelAttr(rec.Label))
	return nil
}

// OnOperationStarted implements ext.OperationStarted.
func (m *MetricsExtension) OnOperationStarted(ctx context.Context, rec *record.Record, _ string) error {
	m.started.Add(ctx, 1, labelAttr(rec.Label))
	return nil
}

// OnAttemptFailed implements ext.AttemptFailed.
func (m *MetricsExtension) OnAttemptFailed(ctx context.Context, rec *record.Record, _ error, _ int) error {
	m.retried.Add(ctx, 1, labelAttr(rec.Label))
	return nil
}

// OnOperationSucceeded implements ext.OperationSucceeded.
func (m *MetricsExtension) OnOperationSucceeded(ctx context.Context, rec *record.Record, _ time.Duration) error {
	m.succeeded.Add(ctx, 1, labelAttr(rec.Label))
	return nil
}

// OnOperationFailed implements ext.OperationFailed.
func (m *MetricsExtension) OnOperationFailed(ctx context.Context, rec *record.Record, _ error) error {
	m.failed.Add(ctx, 1, labelAttr(rec.Label))
	return nil
}

// OnRecordObsoleted implements ext.RecordObsoleted.
func (m *MetricsExtension) OnRecordObsoleted(ctx context.Context, rec *record.Record) error {
	m.obsoleted.Add(ctx, 1, labelAttr(rec.Label))
	return nil
}

// OnRecordsRecovered implements ext.RecordsRecovered.
func (m *MetricsExtension) OnRecordsRecovered(ctx context.Context, label string, count int) error {
	m.recovered.Add(ctx, int64(count), labelAttr(label))
	return nil
}

// OnRecordsPruned implements ext.RecordsPruned.
func (m *MetricsExtension) OnRecordsPruned(ctx context.Context, label string, count int) error {
	m.pruned.Add(ctx, int64(count), labelAttr(label))
	return nil
}
