package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConsole(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>console</html>"), 0o600); err != nil {
		t.Fatalf("write index: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "assets"), 0o755); err != nil {
		t.Fatalf("mkdir assets: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "assets", "app.js"), []byte("console.log('hi')"), 0o600); err != nil {
		t.Fatalf("write asset: %v", err)
	}
	return dir
}

func get(t *testing.T, srv *httptest.Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	if err != nil {
		t.Fatalf("get %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestSPAHandler(t *testing.T) {
	srv := httptest.NewServer(spaHandler(writeConsole(t)))
	t.Cleanup(srv.Close)

	if status, body := get(t, srv, "/"); status != http.StatusOK || !strings.Contains(body, "console") {
		t.Fatalf("root: status=%d body=%q", status, body)
	}
	if status, body := get(t, srv, "/assets/app.js"); status != http.StatusOK || !strings.Contains(body, "console.log") {
		t.Fatalf("asset: status=%d body=%q", status, body)
	}
	// Client-side routes fall back to the SPA entry point.
	if status, body := get(t, srv, "/bots/7372howl/edit"); status != http.StatusOK || !strings.Contains(body, "console") {
		t.Fatalf("spa route: status=%d body=%q", status, body)
	}
}

func TestParseStaticConfig(t *testing.T) {
	dir := writeConsole(t)

	cfg, err := parseStaticConfig([]string{"-addr", ":0", "-dir", dir}, func(string) string { return "" })
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Dir != dir {
		t.Fatalf("dir=%q", cfg.Dir)
	}

	if _, err := parseStaticConfig([]string{"-dir", filepath.Join(dir, "missing")}, func(string) string { return "" }); err == nil {
		t.Fatal("expected error for missing dir")
	}
}
