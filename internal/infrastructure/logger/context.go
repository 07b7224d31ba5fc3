package logger

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type contextKey string

const (
	loggerKey      contextKey = "logger"
	requestIDKey   contextKey = "request_id"
	storeIDKey     contextKey = "store_id"
	orderNumberKey contextKey = "order_number"
)

// WithContext attaches log to ctx.
func WithContext(ctx context.Context, log *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, log)
}

// FromContext returns the logger attached to ctx, or a no-op logger.
func FromContext(ctx context.Context) *zap.Logger {
	if log, ok := ctx.Value(loggerKey).(*zap.Logger); ok && log != nil {
		return log
	}
	return zap.NewNop()
}

// WithRequestID stores the request id and returns a context whose logger carries it.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	ctx = context.WithValue(ctx, requestIDKey, requestID)
	return WithContext(ctx, FromContext(ctx).With(zap.String("request_id", requestID)))
}

// WithOrder scopes the context logger to one order of one store.
// Pipeline stages use it so every entry of a per-order run is correlated.
func WithOrder(ctx context.Context, storeID int64, orderNumber string) context.Context {
	ctx = context.WithValue(ctx, storeIDKey, storeID)
	ctx = context.WithValue(ctx, orderNumberKey, orderNumber)
	return WithContext(ctx, FromContext(ctx).With(
		zap.Int64("store_id", storeID),
		zap.String("order_number", orderNumber),
	))
}

// GetRequestID returns the request id stored in ctx, if any.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// GetOrderNumber returns the order number stored by WithOrder, if any.
func GetOrderNumber(ctx context.Context) string {
	n, _ := ctx.Value(orderNumberKey).(string)
	return n
}

// L returns the context logger enriched with trace_id and span_id when ctx
// carries a valid span.
//
//	logger.L(ctx).Info("label saved", zap.String("path", path))
func L(ctx context.Context) *zap.Logger {
	log := FromContext(ctx)
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return log
	}
	return log.With(
		zap.String("trace_id", spanCtx.TraceID().String()),
		zap.String("span_id", spanCtx.SpanID().String()),
	)
}
