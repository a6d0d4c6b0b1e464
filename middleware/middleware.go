// Package middleware provides composable middleware around durable
// operation attempts. Middleware wraps each attempt synchronously and
// can modify execution (recover from panics, log, trace, record
// metrics).
//
// There is deliberately no timeout middleware: the queue imposes no
// deadline on in-flight operations, and a stuck running record is
// recovered only across a process restart. Job types that want a
// per-attempt deadline wrap their own context inside Run.
package middleware

import (
	"context"

	"github.com/xraph/keel/record"
)

// Handler is the terminal function that executes one attempt.
type Handler func(ctx context.Context) error

// Middleware wraps a Handler with cross-cutting logic. It receives the
// record being executed and the next handler to call. Middleware MUST
// call next to continue the chain (unless short-circuiting on error).
type Middleware func(ctx context.Context, rec *record.Record, next Handler) error

// Chain composes multiple middleware into a single Middleware.
// Middleware are applied right-to-left: the first middleware in the
// list is the outermost wrapper.
func Chain(mws ...Middleware) Middleware {
	return func(ctx context.Context, rec *record.Record, next Handler) error {
		h := next
		for i := len(mws) - 1; i >= 0; i-- {
			mw := mws[i]
			prev := h
			h = func(ctx context.Context) error {
				return mw(ctx, rec, prev)
			}
		}
		return h(ctx)
	}
}
