package core

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"zozbit-notify/internal/types"
)

const (
	fallbackRateLimitMax    = 10
	fallbackRateLimitWindow = time.Minute
)

// rateLimitExemptPaths are never counted.
var rateLimitExemptPaths = map[string]bool{
	"/health": true,
}

// RateLimit enforces a fixed-window request limit per client IP using the
// configured RateLimitStore. Limits come from RATE_LIMIT_REQUESTS and
// RATE_LIMIT_WINDOW.
//
// Every counted response carries X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset; a rejected one also carries Retry-After. Store errors
// fail open. A nil store disables limiting.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	limit, window := s.rateLimitParams()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.RateLimitStore == nil || rateLimitExemptPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := extractClientIP(r)
		key := "ratelimit:" + clientIP

		result, err := s.RateLimitStore.IncrementAndCheck(r.Context(), key, limit, window)
		if err != nil {
			s.Logger.Error("rate limit store error",
				slog.String("client_ip", clientIP),
				slog.String("error", err.Error()),
			)
			next.ServeHTTP(w, r)
			return
		}

		setRateLimitHeaders(w, limit, result)

		if !result.Allowed {
			s.Logger.Warn("rate limit exceeded",
				slog.String("client_ip", clientIP),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)

			retryAfter := int(time.Until(result.ResetAt).Round(time.Second).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

			JSON(w, r, http.StatusTooManyRequests, APIErrorResponse{
				Error: ErrorDetail{
					Code:      string(types.ErrCodeRateLimit),
					Message:   "Rate limit exceeded. Please retry after the reset time.",
					Details:   map[string]any{"limit": limit, "window_seconds": int(window.Seconds())},
					RequestID: types.GetRequestID(r.Context()),
				},
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimitParams() (int, time.Duration) {
	limit, window := fallbackRateLimitMax, fallbackRateLimitWindow
	if s.Config != nil {
		if s.Config.RateLimit.Requests > 0 {
			limit = s.Config.RateLimit.Requests
		}
		if s.Config.RateLimit.Window > 0 {
			window = s.Config.RateLimit.Window
		}
	}
	return limit, window
}

// setRateLimitHeaders writes the standard X-RateLimit-* headers to the response.
func setRateLimitHeaders(w http.ResponseWriter, limit int, result RateLimitResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}
