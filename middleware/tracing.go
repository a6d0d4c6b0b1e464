package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/keel/record"
)

// tracerName is the instrumentation scope name for keel tracing.
const tracerName = "github.com/xraph/keel"

// Tracing returns middleware that wraps each attempt in an
// OpenTelemetry span. If no TracerProvider is configured globally, the
// default noop tracer is used and this middleware becomes a
// pass-through with zero overhead.
func Tracing() Middleware {
	tracer := otel.Tracer(tracerName)
	return TracingWithTracer(tracer)
}

// TracingWithTracer returns tracing middleware using the provided
// tracer. This variant allows injecting a specific TracerProvider for
// testing or when multiple providers are in use.
func TracingWithTracer(tracer trace.Tracer) Middleware {
	return func(ctx context.Context, rec *record.Record, next Handler) error {
		ctx, span := tracer.Start(ctx, "keel.operation.attempt",
			trace.WithAttributes(
				attribute.Int64("keel.record.id", rec.ID),
				attribute.String("keel.record.label", rec.Label),
				attribute.Int("keel.record.failure_count", rec.FailureCount),
			),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		err := next(ctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}

		return err
	}
}
