package types

import (
	"context"
	"time"
)

// Sender delivers a payload to some outbound channel. The email dispatcher
// and the background runner both satisfy it for their payload types.
type Sender[T any] interface {
	Send(ctx context.Context, payload T) error
}

// SenderFunc adapts a plain function to the Sender interface.
type SenderFunc[T any] func(ctx context.Context, payload T) error

// Send calls f(ctx, payload).
func (f SenderFunc[T]) Send(ctx context.Context, payload T) error {
	return f(ctx, payload)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant.
type FixedClock time.Time

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return time.Time(c) }
