package logging

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey struct{}

// New returns the global sugared logger
func New() *zap.SugaredLogger {
	return zap.S()
}

// WithLogger stores a logger in the context
func WithLogger(ctx context.Context, l *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the request scoped logger, or the global logger when
// none was stored
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*zap.SugaredLogger); ok {
			return l
		}
	}
	return zap.S()
}
