package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"sales-dashboard/internal/config"
)

func TestStartSpan_Nesting(t *testing.T) {
	ctx, parent := StartSpan(context.Background(), "GET /api/summary")
	_, child := StartSpan(ctx, "dashboard.summarize")

	if child.TraceID != parent.TraceID {
		t.Errorf("child trace id = %s, want %s", child.TraceID, parent.TraceID)
	}
	if child.ParentID != parent.SpanID {
		t.Errorf("child parent id = %s, want %s", child.ParentID, parent.SpanID)
	}
	if len(parent.SpanID) != 16 {
		t.Errorf("span id %q should be 16 hex chars", parent.SpanID)
	}
	if GetSpan(ctx) != parent {
		t.Error("GetSpan() should return the span stored in ctx")
	}
}

func TestLogSpan(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	_, span := StartSpan(context.Background(), "insights.generate")
	span.SetTag("prompt_chars", "1200")
	span.SetError(errors.New("rate limited"))
	span.Finish()
	LogSpan(logger, span)

	out := buf.String()
	for _, want := range []string{"level=WARN", "operation=insights.generate", "status=ERROR", `error="rate limited"`, "tags.prompt_chars=1200"} {
		if !strings.Contains(out, want) {
			t.Errorf("span log %q missing %q", out, want)
		}
	}

	LogSpan(nil, span)
	LogSpan(logger, nil)
}

func TestRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-42")
	if got := GetRequestID(ctx); got != "req-42" {
		t.Errorf("GetRequestID() = %q", got)
	}
	if got := GetRequestID(context.Background()); got != "" {
		t.Errorf("GetRequestID() without id = %q", got)
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithRequestID(context.Background(), "req-7")
	ctx, span := StartSpan(ctx, "GET /sse/summary")
	FromContext(ctx, logger).Info("compute summary")

	out := buf.String()
	if !strings.Contains(out, "request_id=req-7") || !strings.Contains(out, "trace_id="+span.TraceID) {
		t.Errorf("log line %q lacks request context", out)
	}
	if FromContext(context.Background(), logger) != logger {
		t.Error("FromContext() without request context should return logger unchanged")
	}
}

func TestNewLoggerTo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, config.LoggerConfig{Level: "warn", Format: "json"})

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(out, `"service":"sales-dashboard"`) || strings.Contains(out, `"source"`) {
		t.Errorf("unexpected log output %q", out)
	}
}
