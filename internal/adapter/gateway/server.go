package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"fcfilter/internal/infra/config"
	"fcfilter/internal/infra/middleware"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Server exposes the filter over the pipelines HTTP contract.
type Server struct {
	deps   HandlerDeps
	cfg    config.GatewayConfig
	logger *slog.Logger

	mu        sync.Mutex
	httpSrv   *http.Server
	boundAddr string
}

// NewServer creates a gateway server.
func NewServer(deps HandlerDeps, cfg config.GatewayConfig) *Server {
	return &Server{deps: deps, cfg: cfg, logger: deps.Logger}
}

// Handler returns the routed handler wrapped in the middleware chain.
// ctx bounds background work such as rate limiter eviction.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	registerRoutes(mux, s.deps)

	var h http.Handler = mux
	h = middleware.RateLimit(ctx, middleware.RateLimitConfig{
		RequestsPerMin: s.cfg.RequestsPerMin,
		BurstSize:      s.cfg.BurstSize,
		TrustedProxies: s.cfg.TrustedProxies,
	})(h)
	h = middleware.BearerAuth(s.cfg.APIKey, "/health")(h)
	h = middleware.SecurityHeaders(h)
	h = middleware.AccessLog(s.logger)(h)
	return h
}

// Start listens on the configured address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	httpSrv := &http.Server{
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	s.mu.Lock()
	s.boundAddr = listener.Addr().String()
	s.httpSrv = httpSrv
	s.mu.Unlock()

	s.logger.Info("gateway started", "addr", listener.Addr().String(), "pipeline", s.deps.Pipeline.ID)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the gateway server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	httpSrv := s.httpSrv
	s.mu.Unlock()

	if httpSrv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

// BoundAddr returns the actual address the server bound to. Only valid after Start.
func (s *Server) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}
