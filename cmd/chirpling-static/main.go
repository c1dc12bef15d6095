// Command chirpling-static serves the built console bundle. Unknown paths
// fall back to index.html so client-side routes deep-link correctly.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/chirpling-ai/chirpling/pkg/proxy"
)

type staticConfig struct {
	Addr string
	Dir  string
}

func parseStaticConfig(args []string, getenv func(string) string) (staticConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := staticConfig{}
	fs := flag.NewFlagSet("chirpling-static", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.Addr, "addr", envOr(getenv, "CHIRPLING_STATIC_ADDR", ":5173"), "listen address (or CHIRPLING_STATIC_ADDR)")
	fs.StringVar(&cfg.Dir, "dir", envOr(getenv, "CHIRPLING_STATIC_DIR", "dist"), "directory with the built console (or CHIRPLING_STATIC_DIR)")
	if err := fs.Parse(args); err != nil {
		return staticConfig{}, err
	}

	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return staticConfig{}, fmt.Errorf("dir %q: %w", cfg.Dir, err)
	}
	if !info.IsDir() {
		return staticConfig{}, fmt.Errorf("dir %q is not a directory", cfg.Dir)
	}
	return cfg, nil
}

func envOr(getenv func(string) string, key, def string) string {
	if v := strings.TrimSpace(getenv(key)); v != "" {
		return v
	}
	return def
}

// spaHandler serves files from dir, rewriting unresolved non-asset paths
// to index.html.
func spaHandler(dir string) http.Handler {
	files := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(filepath.Clean(r.URL.Path), "/")
		if path != "" {
			if _, err := os.Stat(filepath.Join(dir, path)); err == nil {
				files.ServeHTTP(w, r)
				return
			}
		}
		http.ServeFile(w, r, filepath.Join(dir, "index.html"))
	})
}

func runStatic(ctx context.Context, cfg staticConfig, logger *slog.Logger) error {
	handler := proxy.AccessLog(logger, proxy.Recover(logger, spaHandler(cfg.Dir)))
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	listenErrCh := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	logger.Info("static server starting", "addr", cfg.Addr, "dir", cfg.Dir)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-listenErrCh
}

func main() {
	cfg, err := parseStaticConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fmt.Fprintf(os.Stderr, "chirpling-static: %v\n", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	if err := runStatic(context.Background(), cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "chirpling-static: %v\n", err)
		os.Exit(1)
	}
}
