// Package core provides the HTTP chassis for the notification service. It
// builds a chi router and enforces cross-cutting concerns (security, logging,
// observability, error handling) before requests reach domain handlers.
package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzhttp"

	"zozbit-notify/internal/config"
)

// RouteRegistrar mounts domain routes onto the router. Populated by the
// entry point so that core never imports handler packages.
type RouteRegistrar func(r chi.Router)

// Server encapsulates all dependencies for the API, allowing for easy
// injection during testing.
type Server struct {
	Config         *config.Config
	Logger         *slog.Logger
	Validator      *Validator
	Metrics        MetricsCollector
	Authenticator  Authenticator
	RateLimitStore RateLimitStore
	CSRF           *CSRFProtector
	HealthProbes   []HealthProbe

	RouteRegistrars []RouteRegistrar

	// Internal router
	router *chi.Mux
}

// NewServer initializes dependencies and prepares the server for route
// mounting. The caller mounts routes via MountRoutes after construction.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	s := &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}

	if cfg.Security.CSRFEnabled {
		s.CSRF = NewCSRFProtector(cfg.Security.CSRFSecret.Unmask(), cfg.Security.CSRFCookieSecure)
	}

	return s, nil
}

// Handler returns the router wrapped with gzip response compression.
func (s *Server) Handler() http.Handler {
	return gzhttp.GzipHandler(s.router)
}

// Router returns the underlying chi.Mux for route registration and tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown releases server-owned resources such as the rate limit store's
// connection pool.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var errs []error
	if closer, ok := s.RateLimitStore.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			s.Logger.Error("error closing rate limit store", "error", err)
			errs = append(errs, fmt.Errorf("closing rate limit store: %w", err))
		}
	}

	s.Logger.Info("server shutdown complete")
	return errors.Join(errs...)
}
