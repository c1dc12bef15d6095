package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync/atomic"
)

// Server forwards console API traffic to the platform origin, handling the
// CORS negotiation the platform itself refuses to do for browser callers.
type Server struct {
	cfg    Config
	logger *slog.Logger
	target *url.URL

	mux        *http.ServeMux
	httpServer *http.Server

	shutdown atomic.Bool
}

func NewServer(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	target, err := url.Parse(cfg.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("parse target: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{cfg: cfg, logger: logger, target: target}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("/", s.withMiddleware(s.newReverseProxy()))
}

// Handler exposes the routed handler for tests and embedding.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) withMiddleware(handler http.Handler) http.Handler {
	// Innermost first.
	handler = Recover(s.logger, handler)
	handler = BodyLimit(s.cfg.MaxBodyBytes, handler)
	handler = CORS(s.cfg.CORSAllowedOrigins, handler)
	handler = AccessLog(s.logger, handler)
	return handler
}

func (s *Server) newReverseProxy() *httputil.ReverseProxy {
	target := s.target
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.Out.Host = target.Host
			// The platform sets its own CORS policy; ours wins.
			pr.Out.Header.Del("Origin")
		},
		ModifyResponse: func(resp *http.Response) error {
			resp.Header.Del("Access-Control-Allow-Origin")
			resp.Header.Del("Access-Control-Allow-Methods")
			resp.Header.Del("Access-Control-Allow-Headers")
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			s.logger.Warn("upstream request failed", "path", r.URL.Path, "error", err)
			http.Error(w, "upstream unavailable", http.StatusBadGateway)
		},
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "healthy",
		"target": s.target.Host,
	})
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	s.logger.Info("proxy starting", "addr", s.cfg.Addr, "target", s.target.String())
	return s.httpServer.Serve(listener)
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.shutdown.Swap(true) {
		return nil
	}
	s.logger.Info("proxy shutting down")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
