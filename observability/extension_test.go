package observability_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/xraph/keel/ext"
	"github.com/xraph/keel/observability"
	"github.com/xraph/keel/record"
)

func TestMetricsExtensionHandlesAllLifecycleEvents(t *testing.T) {
	t.Parallel()

	// With no MeterProvider configured the instruments are noops; the
	// point here is that every hook dispatches without error.
	m := observability.NewMetricsExtension()
	if m.Name() == "" {
		t.Fatal("extension has no name")
	}

	reg := ext.NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
	reg.Register(m)

	ctx := context.Background()
	rec := &record.Record{ID: 1, Label: "upload", Status: record.StatusReady}

	reg.EmitRecordEnqueued(ctx, rec)
	reg.EmitOperationStarted(ctx, rec, "op_123")
	reg.EmitAttemptFailed(ctx, rec, errors.New("transient"), 2)
	reg.EmitOperationSucceeded(ctx, rec, 10*time.Millisecond)
	reg.EmitOperationFailed(ctx, rec, errors.New("fatal"))
	reg.EmitRecordObsoleted(ctx, rec)
	reg.EmitRecordsRecovered(ctx, "upload", 3)
	reg.EmitRecordsPruned(ctx, "upload", 2)
}
