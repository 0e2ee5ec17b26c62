package core

import (
	"context"
	"sync"
	"time"

	"zozbit-notify/internal/types"
)

// --- MockAuthenticator ---

// MockAuthenticator implements the Authenticator interface for testing.
//
// Usage:
//
//	mock := &MockAuthenticator{Actor: &types.Actor{Type: types.ActorTypeAPIKey}}
//
// To simulate a rejected key:
//
//	mock := &MockAuthenticator{
//	    Err: types.NewAppError(types.ErrCodeAuthKeyInvalid, "Invalid API key", nil),
//	}
type MockAuthenticator struct {
	// Actor is returned on success. If nil and Err is also nil, VerifyKey
	// returns (nil, nil).
	Actor *types.Actor

	// Err is returned by VerifyKey. When set, Actor is ignored.
	Err error

	// VerifyKeyFunc overrides Actor and Err when set.
	VerifyKeyFunc func(ctx context.Context, presented string) (*types.Actor, error)

	mu sync.Mutex

	// Calls records every key passed to VerifyKey.
	Calls []string
}

// VerifyKey implements the Authenticator interface.
func (m *MockAuthenticator) VerifyKey(ctx context.Context, presented string) (*types.Actor, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, presented)
	m.mu.Unlock()

	if m.VerifyKeyFunc != nil {
		return m.VerifyKeyFunc(ctx, presented)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Actor == nil {
		return nil, nil
	}
	actor := *m.Actor
	return &actor, nil
}

// --- MockRateLimitStore ---

// MockRateLimitStore implements the RateLimitStore interface for testing.
//
// Usage:
//
//	mock := &MockRateLimitStore{
//	    Result: RateLimitResult{Allowed: false, Remaining: 0, ResetAt: time.Now().Add(time.Minute)},
//	}
type MockRateLimitStore struct {
	// Result is returned by IncrementAndCheck.
	Result RateLimitResult

	// Err is returned alongside Result.
	Err error

	// IncrementAndCheckFunc overrides Result and Err when set.
	IncrementAndCheckFunc func(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error)

	mu sync.Mutex

	// Calls records every invocation.
	Calls []RateLimitCall
}

// RateLimitCall records the arguments of a single IncrementAndCheck invocation.
type RateLimitCall struct {
	Key    string
	Limit  int
	Window time.Duration
}

// IncrementAndCheck implements the RateLimitStore interface.
func (m *MockRateLimitStore) IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (RateLimitResult, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, RateLimitCall{Key: key, Limit: limit, Window: window})
	m.mu.Unlock()

	if m.IncrementAndCheckFunc != nil {
		return m.IncrementAndCheckFunc(ctx, key, limit, window)
	}
	return m.Result, m.Err
}

// CallCount returns the number of recorded calls.
func (m *MockRateLimitStore) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// --- MockMetricsCollector ---

// MockMetricsCollector records RecordRequest calls.
type MockMetricsCollector struct {
	mu    sync.Mutex
	Calls []RequestMetricCall
}

// RequestMetricCall records the arguments of a single RecordRequest call.
type RequestMetricCall struct {
	Method   string
	Endpoint string
	Status   string
	Duration time.Duration
}

// RecordRequest implements MetricsCollector.
func (m *MockMetricsCollector) RecordRequest(method, endpoint, status string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, RequestMetricCall{Method: method, Endpoint: endpoint, Status: status, Duration: duration})
}

// Compile-time interface assertions.
var (
	_ Authenticator    = (*MockAuthenticator)(nil)
	_ Authenticator    = (*APIKeyAuthenticator)(nil)
	_ RateLimitStore   = (*MockRateLimitStore)(nil)
	_ RateLimitStore   = (*MemoryRateLimitStore)(nil)
	_ RateLimitStore   = (*RedisRateLimitStore)(nil)
	_ MetricsCollector = (*MockMetricsCollector)(nil)
	_ HealthProbe      = RedisHealthProbe{}
)
