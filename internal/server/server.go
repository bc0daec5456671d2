// Package server provides the HTTP server implementation.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/bookstore/internal/auth"
	"github.com/vyrodovalexey/bookstore/internal/config"
	"github.com/vyrodovalexey/bookstore/internal/handler"
	"github.com/vyrodovalexey/bookstore/internal/middleware"
	"github.com/vyrodovalexey/bookstore/internal/report"
)

// maxBodyBytes caps request bodies; a book record is far smaller.
const maxBodyBytes = 1 << 20

// Server represents the HTTP server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	config     *config.Config
	logger     *zap.Logger

	service       handler.BookService
	authenticator auth.Authenticator
	hub           *handler.EventHub
	ready         handler.ReadyFunc
	reports       *report.Generator
}

// Option configures optional server collaborators.
type Option func(*Server)

// WithAuthenticator protects write routes with a.
func WithAuthenticator(a auth.Authenticator) Option {
	return func(s *Server) {
		s.authenticator = a
	}
}

// WithEventHub exposes the change-event stream served by hub.
func WithEventHub(hub *handler.EventHub) Option {
	return func(s *Server) {
		s.hub = hub
	}
}

// WithReadiness sets the check behind /ready.
func WithReadiness(ready handler.ReadyFunc) Option {
	return func(s *Server) {
		s.ready = ready
	}
}

// WithReports sets the report generator.
func WithReports(g *report.Generator) Option {
	return func(s *Server) {
		s.reports = g
	}
}

// New creates a new Server instance serving svc.
func New(cfg *config.Config, logger *zap.Logger, svc handler.BookService, opts ...Option) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		config:  cfg,
		logger:  logger,
		service: svc,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	s.setupHTTPServer()

	return s
}

// setupRoutes registers routes and the middleware that needs a matched route.
func (s *Server) setupRoutes() {
	if s.config.MetricsEnabled {
		s.router.Use(mux.MiddlewareFunc(middleware.Metrics()))
	}
	s.router.Use(mux.MiddlewareFunc(middleware.Auth(s.authenticator, s.logger)))

	handler.NewProbeHandler(s.ready, s.logger).RegisterRoutes(s.router)

	if s.hub != nil {
		s.hub.RegisterRoutes(s.router)
	}

	handler.NewBookHandler(s.service, s.reports, s.logger, s.config.MaxPageSize).RegisterRoutes(s.router)

	if s.config.MetricsEnabled {
		s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "resource not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
}

// Handler returns the router wrapped in the outer middleware. CORS sits
// outside the router so preflights reach it even though no route accepts OPTIONS.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) outerMiddleware() middleware.Middleware {
	allowedMethods := []string{
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodDelete,
		http.MethodOptions,
	}
	allowedHeaders := []string{
		"Content-Type",
		"Authorization",
		auth.APIKeyHeader,
		middleware.RequestIDHeader,
	}

	return middleware.Chain(
		middleware.Recovery(s.logger),
		middleware.RequestID(),
		middleware.Logging(s.logger),
		middleware.CORS(s.config.AllowedOrigins, allowedMethods, allowedHeaders),
		middleware.BodyLimit(maxBodyBytes),
	)
}

// setupHTTPServer configures the HTTP server.
func (s *Server) setupHTTPServer() {
	s.httpServer = &http.Server{
		Addr:              s.config.Address(),
		Handler:           s.outerMiddleware()(s.router),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return fmt.Errorf("server listen: %w", err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting server",
		zap.String("address", ln.Addr().String()),
		zap.Bool("metrics_enabled", s.config.MetricsEnabled),
		zap.Bool("auth_enabled", s.authenticator != nil),
	)

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server serve: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	// Websockets are hijacked and not tracked by http.Server.
	if s.hub != nil {
		s.hub.CloseAllConnections()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Router returns the server's router for testing purposes.
func (s *Server) Router() *mux.Router {
	return s.router
}
