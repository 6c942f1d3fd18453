package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"sales-dashboard/internal/config"
)

const serviceName = "sales-dashboard"

func NewLogger(cfg config.LoggerConfig) *slog.Logger {
	return NewLoggerTo(os.Stdout, cfg)
}

// NewLoggerTo builds the process logger on w. Source locations are only
// recorded at debug level.
func NewLoggerTo(w io.Writer, cfg config.LoggerConfig) *slog.Logger {
	level := parseLogLevel(cfg.Level)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With("service", serviceName)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type requestIDKey struct{}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return requestID
	}
	return ""
}

// FromContext returns logger annotated with the request id and trace id
// carried by ctx, if any.
func FromContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	var attrs []any
	if id := GetRequestID(ctx); id != "" {
		attrs = append(attrs, "request_id", id)
	}
	if span := GetSpan(ctx); span != nil {
		attrs = append(attrs, "trace_id", span.TraceID)
	}
	if len(attrs) == 0 {
		return logger
	}
	return logger.With(attrs...)
}
