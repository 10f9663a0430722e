package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"egg-arena/internal/config"
)

// Server is the HTTP API server with WebSocket support.
type Server struct {
	cfg         config.ServerConfig
	log         *zap.Logger
	hub         *Hub
	router      *chi.Mux
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
}

// NewServer wires the router and hub. Nothing listens until Start.
func NewServer(engine EngineInterface, hub *Hub, cfg config.AppConfig, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		cfg:         cfg.Server,
		log:         log,
		hub:         hub,
		rateLimiter: NewIPRateLimiter(cfg.RateLimit),
	}
	s.router = NewRouter(RouterConfig{
		Engine:      engine,
		Hub:         hub,
		RateLimiter: s.rateLimiter,
		CORSOrigins: cfg.Server.CORSOrigins,
		StaticDir:   cfg.Server.StaticDir,
		Logger:      log,
	})
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start listens on the configured port and serves until Shutdown.
// It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("api: listen %s: %w", s.httpServer.Addr, err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("server listening", zap.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, waits for in-flight requests, then
// disconnects WebSocket clients and waits until each has submitted its
// leave. All of it is bounded by the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultServer().ShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.rateLimiter.Stop()
	// Hijacked WebSocket connections are not tracked by http.Server.
	err := s.httpServer.Shutdown(ctx)
	if s.hub != nil {
		s.hub.CloseAll()
		if werr := s.hub.Wait(ctx); werr != nil {
			err = errors.Join(err, fmt.Errorf("api: websocket drain: %w", werr))
		}
	}
	return err
}
