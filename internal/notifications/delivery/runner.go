// Package delivery runs notification sends in the background, detached from
// the HTTP request that accepted them.
//
// A Runner admits a payload, returns immediately and executes the wrapped
// Sender on its own goroutine. The task keeps the request's context values
// (request ID, logger) but not its cancellation, and gets its own deadline.
// A weighted semaphore bounds how many sends are in flight at once; admitted
// tasks beyond that wait for a slot until their deadline passes.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"zozbit-notify/internal/types"
)

const (
	defaultTimeout       = 60 * time.Second
	defaultMaxConcurrent = 16

	// backlogFactor sizes the admission backlog relative to MaxConcurrent.
	backlogFactor = 4

	stageQueue = "queue"
	stagePanic = "panic"
)

var (
	// ErrRunnerClosed is returned by Send after Shutdown has started.
	ErrRunnerClosed = errors.New("delivery runner is shut down")
	// ErrSaturated is returned by Send when the backlog is full.
	ErrSaturated = errors.New("delivery runner is saturated")
)

// Recorder receives one observation per finished or rejected task.
type Recorder interface {
	RecordDelivery(status, stage string, duration time.Duration)
}

// Options configures a Runner. Zero values select the defaults.
type Options struct {
	// Timeout bounds each task, including the wait for a slot.
	Timeout time.Duration
	// MaxConcurrent bounds the number of sends in flight.
	MaxConcurrent int64
	// Sink receives failed tasks. Defaults to a LogSink on the runner logger.
	Sink ErrorSink
	// Metrics records outcomes. Optional.
	Metrics Recorder
	// StageOf classifies a send error for metrics and reporting. Optional.
	StageOf func(error) string
}

// Runner executes sends in the background. It implements types.Sender; a
// nil error from Send means the payload was admitted, not delivered.
type Runner[T any] struct {
	sender  types.Sender[T]
	sink    ErrorSink
	metrics Recorder
	stageOf func(error) string
	logger  *slog.Logger

	timeout    time.Duration
	sem        *semaphore.Weighted
	maxPending int64

	mu      sync.Mutex
	closed  bool
	pending int64
	wg      sync.WaitGroup
}

// NewRunner creates a Runner around sender.
func NewRunner[T any](sender types.Sender[T], opts Options, logger *slog.Logger) *Runner[T] {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	if opts.Sink == nil {
		opts.Sink = LogSink{Logger: logger}
	}

	return &Runner[T]{
		sender:     sender,
		sink:       opts.Sink,
		metrics:    opts.Metrics,
		stageOf:    opts.StageOf,
		logger:     logger,
		timeout:    opts.Timeout,
		sem:        semaphore.NewWeighted(opts.MaxConcurrent),
		maxPending: opts.MaxConcurrent * backlogFactor,
	}
}

// Send admits payload for background delivery and returns without waiting
// for it. It fails with ErrRunnerClosed or ErrSaturated when the payload is
// not admitted.
func (r *Runner[T]) Send(ctx context.Context, payload T) error {
	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		r.record(types.DeliveryRejected, stageQueue, 0)
		return ErrRunnerClosed
	case r.pending >= r.maxPending:
		r.mu.Unlock()
		r.record(types.DeliveryRejected, stageQueue, 0)
		return ErrSaturated
	}
	r.pending++
	r.wg.Add(1)
	r.mu.Unlock()

	taskCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)

	go func() {
		defer r.wg.Done()
		defer r.done()
		defer cancel()
		r.run(taskCtx, payload)
	}()
	return nil
}

// Pending reports the number of admitted tasks that have not finished.
func (r *Runner[T]) Pending() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pending
}

// Shutdown stops admitting work and waits for admitted tasks until ctx is
// done. Tasks still running when ctx expires are abandoned to their own
// deadlines.
func (r *Runner[T]) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		r.logger.Info("delivery runner drained")
		return nil
	case <-ctx.Done():
		pending := r.Pending()
		r.logger.Warn("delivery runner shutdown timed out", slog.Int64("pending", pending))
		return fmt.Errorf("waiting for %d deliveries: %w", pending, ctx.Err())
	}
}

func (r *Runner[T]) run(ctx context.Context, payload T) {
	start := time.Now()

	if err := r.sem.Acquire(ctx, 1); err != nil {
		r.fail(ctx, fmt.Errorf("waiting for delivery slot: %w", err), stageQueue, start)
		return
	}
	defer r.sem.Release(1)

	defer func() {
		if v := recover(); v != nil {
			err := fmt.Errorf("panic during delivery: %v", v)
			r.logger.Error("delivery panicked", slog.String("stack", string(debug.Stack())))
			r.fail(ctx, err, stagePanic, start)
		}
	}()

	if err := r.sender.Send(ctx, payload); err != nil {
		r.fail(ctx, err, r.classify(err), start)
		return
	}
	r.record(types.DeliverySuccess, "", time.Since(start))
}

func (r *Runner[T]) fail(ctx context.Context, err error, stage string, start time.Time) {
	r.record(types.DeliveryFailed, stage, time.Since(start))
	r.sink.Report(ctx, err, stage)
}

func (r *Runner[T]) classify(err error) string {
	if r.stageOf == nil {
		return ""
	}
	return r.stageOf(err)
}

func (r *Runner[T]) record(status, stage string, d time.Duration) {
	if r.metrics != nil {
		r.metrics.RecordDelivery(status, stage, d)
	}
}

func (r *Runner[T]) done() {
	r.mu.Lock()
	r.pending--
	r.mu.Unlock()
}
