package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/keel/record"
)

// Recover returns middleware that recovers from panics in the attempt.
// Panics are converted to errors and logged with a stack trace; the
// job type's retry classifier then decides whether a panicking attempt
// consumes a retry or fails the record permanently.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, rec *record.Record, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := string(debug.Stack())
				logger.Error("operation panicked",
					slog.Int64("record_id", rec.ID),
					slog.String("label", rec.Label),
					slog.Any("panic", r),
					slog.String("stack", stack),
				)
				retErr = fmt.Errorf("panic in %s record %d: %v", rec.Label, rec.ID, r)
			}
		}()
		return next(ctx)
	}
}
