package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// Ctx retrieves the logger from the context.
// If no logger is found, the global logger is returned.
func Ctx(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return l
	}
	return L()
}

// WithConnection derives a child logger tagged with the connection and its
// owner and stores it in the returned context. An empty userID is omitted,
// which is the case before the handshake completes.
func WithConnection(ctx context.Context, connID, userID string) context.Context {
	c := Ctx(ctx).With().Str(FieldConnectionID, connID)
	if userID != "" {
		c = c.Str(FieldUserID, userID)
	}
	return WithLogger(ctx, c.Logger())
}
