package core

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"zozbit-notify/internal/types"
)

// defaultRequestTimeout is the soft deadline applied to request contexts.
// Background deliveries detach from it.
const defaultRequestTimeout = 15 * time.Second

// defaultRedactedHeaders lists header names whose values are masked in request
// logs to prevent accidental leakage of credentials or session tokens.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"X-API-KEY",
	"X-CSRFToken",
}

// MountRoutes defines the routing hierarchy: global middleware, the public
// health check, and the domain routes registered by the entry point.
func (s *Server) MountRoutes() {
	// Global Middleware Registration (strict order matters).
	s.registerGlobalMiddleware()

	s.router.Get("/health", s.HandleHealth)

	for _, registrar := range s.RouteRegistrars {
		registrar(s.router)
	}
}

// registerGlobalMiddleware applies middleware in strict order.
//
// Ordering Rationale:
//  1. Recoverer          - Catches panics; outermost to catch all failures.
//  2. ContextTimeout     - Soft deadline for the synchronous part of a request.
//  3. RequestID          - Generates/propagates correlation ID for tracing.
//  4. SecurityHeaders    - Ensures all responses include security headers.
//  5. RequestLogger      - Structured logging (redacted headers).
//  6. CORS               - Browser security headers, preflight short-circuit.
//  7. Metrics            - Request latency and count recording.
//  8. RateLimit          - Per-client fixed window, before auth so that key
//                          guessing is throttled too.
//  9. Auth               - X-API-KEY verification, injects Actor.
// 10. CSRF               - Double-submit cookie check on unsafe methods.
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(defaultRequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware(s.corsAllowedOrigins()))
	s.router.Use(s.MetricsMiddleware)
	s.router.Use(s.RateLimit)
	s.router.Use(s.AuthMiddleware)
	s.router.Use(s.CSRFMiddleware)
}

// corsAllowedOrigins returns the CORS allowed origins from configuration.
func (s *Server) corsAllowedOrigins() []string {
	if s.Config != nil && len(s.Config.Security.CorsAllowedOrigins) > 0 {
		return s.Config.Security.CorsAllowedOrigins
	}
	return []string{"*"}
}

// ContextTimeoutMiddleware sets a deadline on the request context.
func ContextTimeoutMiddleware(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware generates or propagates a unique request ID. An incoming
// X-Request-Id header is reused; otherwise a random UUID is generated. The ID
// is stored via types.WithRequestID and echoed in the response header.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}

		ctx := types.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
