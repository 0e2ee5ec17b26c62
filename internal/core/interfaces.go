package core

import (
	"context"
	"time"

	"zozbit-notify/internal/types"
)

// Authenticator decouples the HTTP layer from the key verification scheme,
// allowing for easy mocking in tests.
type Authenticator interface {
	// VerifyKey checks the presented X-API-KEY value and returns the Actor.
	// It returns an *types.AppError with ErrCodeAuthKeyInvalid on mismatch.
	VerifyKey(ctx context.Context, presented string) (*types.Actor, error)
}

// RateLimitStore abstracts the backing store for rate limiting.
// Single-instance deployments use the in-memory store; replicated deployments
// share counters through Redis.
type RateLimitStore interface {
	// IncrementAndCheck atomically increments the rate limit counter for the
	// given key and checks if the limit has been exceeded within the window.
	IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error)
}

// RateLimitResult contains the outcome of a rate limit check.
type RateLimitResult struct {
	// Allowed indicates whether the request is within the rate limit.
	Allowed bool
	// Remaining is the number of requests remaining in the current window.
	Remaining int
	// ResetAt is the time when the current rate limit window resets.
	ResetAt time.Time
}

// MetricsCollector defines the interface for recording API telemetry.
type MetricsCollector interface {
	// RecordRequest records API request latency and count.
	RecordRequest(method, endpoint, status string, duration time.Duration)
}
