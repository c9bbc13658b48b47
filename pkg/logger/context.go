package logger

import (
	"context"
	"log/slog"
)

type correlationKey struct{}

// WithCorrelationID stores the operation correlation id in ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFromContext returns the id stored by WithCorrelationID, if any.
func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(correlationKey{}).(string)
	return id, ok && id != ""
}

// CorrelationExtractor adds the context correlation id to every record logged
// with that context.
func CorrelationExtractor(ctx context.Context) (slog.Attr, bool) {
	id, ok := CorrelationIDFromContext(ctx)
	if !ok {
		return slog.Attr{}, false
	}
	return CorrelationID(id), true
}
