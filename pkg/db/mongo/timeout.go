package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// WithTimeout bounds ctx by timeout unless it already carries an earlier deadline.
// A SessionContext is returned unchanged with a no-op cancel: wrapping it would
// detach the operation from its transaction.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	if remaining := time.Until(deadline); remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}
