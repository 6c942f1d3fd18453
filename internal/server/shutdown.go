package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"sales-dashboard/internal/config"
)

const hookTimeout = 10 * time.Second

type shutdownHook struct {
	name string
	fn   func(ctx context.Context) error
}

type GracefulServer struct {
	server *http.Server
	logger *slog.Logger
	config *config.Config
	hooks  []shutdownHook
	mu     sync.RWMutex
}

func NewGracefulServer(server *http.Server, logger *slog.Logger, config *config.Config) *GracefulServer {
	return &GracefulServer{
		server: server,
		logger: logger,
		config: config,
	}
}

// RegisterShutdownHook adds fn to the hooks run concurrently with the HTTP
// server shutdown. Each hook gets at most hookTimeout.
func (gs *GracefulServer) RegisterShutdownHook(name string, fn func(ctx context.Context) error) {
	gs.mu.Lock()
	defer gs.mu.Unlock()
	gs.hooks = append(gs.hooks, shutdownHook{name: name, fn: fn})
}

func (gs *GracefulServer) ListenAndServe() error {
	serverErrors := make(chan error, 1)

	go func() {
		gs.logger.Info("starting server",
			"addr", gs.server.Addr,
			"read_timeout", gs.config.Server.ReadTimeout,
			"write_timeout", gs.config.Server.WriteTimeout,
		)
		serverErrors <- gs.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil

	case sig := <-shutdown:
		gs.logger.Info("shutdown signal received", "signal", sig)

		ctx, cancel := context.WithTimeout(context.Background(), gs.config.Server.ShutdownTimeout)
		defer cancel()

		return gs.shutdown(ctx)
	}
}

func (gs *GracefulServer) shutdown(ctx context.Context) error {
	gs.logger.Info("starting graceful shutdown",
		"timeout", gs.config.Server.ShutdownTimeout,
	)

	gs.mu.RLock()
	hooks := append([]shutdownHook(nil), gs.hooks...)
	gs.mu.RUnlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	record := func(err error) {
		mu.Lock()
		errs = append(errs, err)
		mu.Unlock()
	}

	for _, hook := range hooks {
		wg.Add(1)
		go func() {
			defer wg.Done()

			hookCtx, cancel := context.WithTimeout(ctx, hookTimeout)
			defer cancel()

			gs.logger.Debug("executing shutdown hook", "hook", hook.name)
			if err := hook.fn(hookCtx); err != nil {
				gs.logger.Error("shutdown hook failed",
					"hook", hook.name,
					"error", err,
				)
				record(fmt.Errorf("shutdown hook %s: %w", hook.name, err))
				return
			}
			gs.logger.Debug("shutdown hook completed", "hook", hook.name)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		gs.logger.Info("stopping HTTP server")
		if err := gs.server.Shutdown(ctx); err != nil {
			gs.logger.Error("HTTP server shutdown failed", "error", err)
			record(fmt.Errorf("HTTP server shutdown: %w", err))
			return
		}
		gs.logger.Info("HTTP server stopped gracefully")
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		gs.logger.Info("graceful shutdown completed")
		mu.Lock()
		defer mu.Unlock()
		return errors.Join(errs...)

	case <-ctx.Done():
		gs.logger.Warn("shutdown timeout exceeded, forcing exit")
		return ctx.Err()
	}
}
