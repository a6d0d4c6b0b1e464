package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/keel/record"
)

// Logging returns middleware that logs attempt start and completion.
// Attempt failures log at Debug: a retryable failure is routine, and
// the queue logs the terminal outcome itself.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, rec *record.Record, next Handler) error {
		logger.Debug("attempt started",
			slog.Int64("record_id", rec.ID),
			slog.String("label", rec.Label),
			slog.Int("failure_count", rec.FailureCount),
		)

		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start)

		if err != nil {
			logger.Debug("attempt failed",
				slog.Int64("record_id", rec.ID),
				slog.String("label", rec.Label),
				slog.Duration("elapsed", elapsed),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Debug("attempt completed",
				slog.Int64("record_id", rec.ID),
				slog.String("label", rec.Label),
				slog.Duration("elapsed", elapsed),
			)
		}

		return err
	}
}
