package logging

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	// TraceIDHeader carries the trace identifier on viewer requests and responses.
	TraceIDHeader = "X-Trace-ID"
	// TraceIDField names the trace identifier in log lines.
	TraceIDField = "trace_id"
)

type ctxKey int

const (
	loggerKey ctxKey = iota
	traceKey
)

// ContextWithLogger stores logger in ctx.
func ContextWithLogger(ctx context.Context, logger *Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// LoggerFromContext returns the logger stored in ctx, or the global one.
func LoggerFromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey).(*Logger); ok && logger != nil {
			return logger
		}
	}
	return L()
}

// TraceIDFromContext returns the trace identifier stored in ctx.
func TraceIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(traceKey).(string)
	return id
}

// WithTrace tags ctx and a child of base with traceID, minting one when it is blank.
func WithTrace(ctx context.Context, base *Logger, traceID string) (context.Context, *Logger, string) {
	id := strings.TrimSpace(traceID)
	if id == "" {
		id = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	derived := base.With(String(TraceIDField, id))
	ctx = context.WithValue(ctx, traceKey, id)
	return ContextWithLogger(ctx, derived), derived, id
}

// HTTPTraceMiddleware echoes or mints a trace identifier per request and stores the traced
// logger in the request context.
func HTTPTraceMiddleware(base *Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, logger, id := WithTrace(r.Context(), base, r.Header.Get(TraceIDHeader))
			w.Header().Set(TraceIDHeader, id)
			logger.Debug("viewer request", String("method", r.Method), String("path", r.URL.Path))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
