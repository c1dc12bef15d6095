// Package proxy provides the CORS-stripping reverse proxy that fronts the
// platform API for browser consoles, plus the static console file server.
package proxy

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Addr string

	// TargetURL is the platform API origin requests are forwarded to.
	TargetURL string

	// CORSAllowedOrigins is an exact-match allowlist; empty disables CORS
	// entirely and the proxy only serves same-origin callers.
	CORSAllowedOrigins map[string]struct{}

	MaxBodyBytes int64

	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration

	Logger *slog.Logger
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("CHIRPLING_PROXY_ADDR", ":8787"),
		TargetURL:           envOr("CHIRPLING_PROXY_TARGET", "https://api.coze.cn"),
		CORSAllowedOrigins:  make(map[string]struct{}),
		MaxBodyBytes:        envInt64Or("CHIRPLING_PROXY_MAX_BODY_BYTES", 4<<20),
		ReadHeaderTimeout:   envDurationOr("CHIRPLING_PROXY_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:         envDurationOr("CHIRPLING_PROXY_READ_TIMEOUT", 60*time.Second),
		ShutdownGracePeriod: envDurationOr("CHIRPLING_PROXY_SHUTDOWN_GRACE", 10*time.Second),
	}

	for _, origin := range splitCSV(os.Getenv("CHIRPLING_PROXY_ALLOWED_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	target, err := url.Parse(c.TargetURL)
	if err != nil {
		return fmt.Errorf("CHIRPLING_PROXY_TARGET: %w", err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return fmt.Errorf("CHIRPLING_PROXY_TARGET must be http or https, got %q", c.TargetURL)
	}
	if target.Host == "" {
		return fmt.Errorf("CHIRPLING_PROXY_TARGET has no host: %q", c.TargetURL)
	}
	return nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
