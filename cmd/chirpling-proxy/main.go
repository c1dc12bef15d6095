// Command chirpling-proxy fronts the platform API with a CORS-aware
// reverse proxy so browser consoles can call it directly.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/chirpling-ai/chirpling/internal/dotenv"
	"github.com/chirpling-ai/chirpling/pkg/proxy"
)

type proxyDeps struct {
	loadConfig   func() (proxy.Config, error)
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultProxyDeps() proxyDeps {
	return proxyDeps{
		loadConfig: proxy.LoadFromEnv,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func runProxy(ctx context.Context, logger *slog.Logger, deps proxyDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Logger = logger

	srv, err := proxy.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("build proxy: %w", err)
	}

	listenErrCh := make(chan error, 1)
	go func() {
		err := srv.Start()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown proxy: %w", err)
	}
	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("proxy stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps proxyDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewJSONHandler(stderr, nil))
	if err := runProxy(ctx, logger, deps); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(stderr, "chirpling-proxy: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	if err := dotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "chirpling-proxy: %v\n", err)
		os.Exit(1)
	}
	os.Exit(runMain(context.Background(), os.Stderr, defaultProxyDeps()))
}
