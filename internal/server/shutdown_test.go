package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"sales-dashboard/internal/config"
)

func newTestGracefulServer() *GracefulServer {
	cfg := &config.Config{Server: config.ServerConfig{ShutdownTimeout: time.Second}}
	return NewGracefulServer(&http.Server{Addr: "127.0.0.1:0"}, slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
}

func TestGracefulServer_RunsHooks(t *testing.T) {
	gs := newTestGracefulServer()

	var ran atomic.Int32
	for _, name := range []string{"dashboard", "exports"} {
		gs.RegisterShutdownHook(name, func(ctx context.Context) error {
			ran.Add(1)
			return nil
		})
	}

	if err := gs.shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
	if ran.Load() != 2 {
		t.Errorf("ran %d hooks, want 2", ran.Load())
	}
}

func TestGracefulServer_JoinsHookErrors(t *testing.T) {
	gs := newTestGracefulServer()
	errFlush := errors.New("flush failed")

	gs.RegisterShutdownHook("ok", func(ctx context.Context) error { return nil })
	gs.RegisterShutdownHook("cache", func(ctx context.Context) error { return errFlush })

	err := gs.shutdown(context.Background())
	if !errors.Is(err, errFlush) {
		t.Fatalf("shutdown() error = %v, want %v", err, errFlush)
	}
	if got := err.Error(); got != "shutdown hook cache: flush failed" {
		t.Errorf("error = %q", got)
	}
}

func TestGracefulServer_ShutdownTimeout(t *testing.T) {
	gs := newTestGracefulServer()
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })

	gs.RegisterShutdownHook("slow", func(ctx context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := gs.shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("shutdown() error = %v, want deadline exceeded", err)
	}
}
