// Package main is the entry point for the Zozbit notification API.
//
// It loads configuration, builds the email pipeline and the background
// delivery runner, mounts the HTTP chassis and serves until SIGINT or
// SIGTERM. Shutdown stops the listener first, then drains in-flight
// deliveries, flushes metrics and releases the rate limit store.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"

	"zozbit-notify/internal/api/handlers"
	"zozbit-notify/internal/config"
	"zozbit-notify/internal/core"
	"zozbit-notify/internal/notifications/delivery"
	"zozbit-notify/internal/notifications/email"
	"zozbit-notify/internal/telemetry"
	"zozbit-notify/internal/types"
)

// redisKeyPrefix namespaces rate limit counters in a shared Redis.
const redisKeyPrefix = "zozbit-notify:"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, sentryActive := telemetry.NewLogger(telemetry.LoggerOptions{
		Level:       cfg.SlogLevel(),
		SentryDSN:   cfg.Observability.SentryDSN.Unmask(),
		Environment: cfg.SentryEnv(),
		Release:     cfg.Build.Release(),
	})
	if sentryActive {
		defer telemetry.FlushSentry(2 * time.Second)
	}

	logger.Info("zozbit notify starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
		"sentry", sentryActive,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	return runHTTPServer(ctx, a, cfg, logger)
}

// app holds everything that must be shut down in order.
type app struct {
	server  *core.Server
	runner  *delivery.Runner[email.NotificationRequest]
	metrics *telemetry.CloudWatchMetrics
	logger  *slog.Logger
}

// buildApp wires configuration into the server, the email pipeline and the
// background runner.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}
	srv.Authenticator = core.NewAPIKeyAuthenticator(cfg.Security.APIKey)

	store, probes, err := newRateLimitStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	srv.RateLimitStore = store
	srv.HealthProbes = probes

	a := &app{server: srv, logger: logger}

	runnerOpts := delivery.Options{
		Timeout:       cfg.Delivery.Timeout,
		MaxConcurrent: cfg.Delivery.MaxConcurrent,
		StageOf:       func(err error) string { return string(email.StageOf(err)) },
	}

	if cfg.Observability.MetricsEnabled {
		metrics, err := newCloudWatchMetrics(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		a.metrics = metrics
		srv.Metrics = metrics
		runnerOpts.Metrics = metrics
	}

	assets := os.DirFS(cfg.Assets.Dir)
	pipeline := email.NewEmailSender(email.SenderConfig{
		Renderer:  email.NewRenderer(assets, logger),
		Assembler: email.NewAssembler(assets, types.RealClock{}, logger),
		Transport: email.NewDispatcher(cfg.SMTP, logger),
		From:      cfg.Email.Sender,
		To:        cfg.Email.Recipient,
		Logger:    logger,
	})

	a.runner = delivery.NewRunner[email.NotificationRequest](pipeline, runnerOpts, logger)

	notificationHandler := handlers.NewNotificationHandler(a.runner, srv.Validator, logger)
	srv.RouteRegistrars = append(srv.RouteRegistrars, notificationHandler.RegisterRoutes)

	srv.MountRoutes()
	return a, nil
}

// newRateLimitStore selects the in-memory or Redis store. Redis also
// registers a health probe.
func newRateLimitStore(ctx context.Context, cfg *config.Config) (core.RateLimitStore, []core.HealthProbe, error) {
	if cfg.RateLimit.Store != "redis" {
		return core.NewMemoryRateLimitStore(types.RealClock{}), nil, nil
	}

	client, err := core.OpenRedis(ctx, cfg.RateLimit.RedisURL.Unmask())
	if err != nil {
		return nil, nil, fmt.Errorf("opening rate limit store: %w", err)
	}
	return core.NewRedisRateLimitStore(client, redisKeyPrefix),
		[]core.HealthProbe{core.RedisHealthProbe{Client: client}},
		nil
}

// newCloudWatchMetrics builds the metrics publisher from the default AWS
// credential chain.
func newCloudWatchMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*telemetry.CloudWatchMetrics, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return telemetry.NewCloudWatchMetrics(
		cloudwatch.NewFromConfig(awsCfg),
		telemetry.CloudWatchOptions{Namespace: cfg.Observability.MetricNamespace},
		logger,
	), nil
}

// runHTTPServer serves until ctx is cancelled or the listener fails, then
// shuts everything down within cfg.Server.ShutdownTimeout.
func runHTTPServer(ctx context.Context, a *app, cfg *config.Config, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", ":"+cfg.Server.Port)
	if err != nil {
		return fmt.Errorf("listening on port %s: %w", cfg.Server.Port, err)
	}

	httpServer := &http.Server{
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Channel to capture server errors from Serve.
	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			serveErr = fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := a.shutdown(shutdownCtx); err != nil {
		return errors.Join(serveErr, err)
	}
	if serveErr != nil {
		return serveErr
	}

	logger.Info("server stopped cleanly")
	return nil
}

// shutdown drains deliveries before closing the metrics publisher they
// report to, then releases server resources.
func (a *app) shutdown(ctx context.Context) error {
	var errs []error

	if err := a.runner.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("draining deliveries: %w", err))
	}

	if a.metrics != nil {
		if err := a.metrics.Close(ctx); err != nil {
			a.logger.Error("metrics flush error", "error", err)
			errs = append(errs, fmt.Errorf("flushing metrics: %w", err))
		}
	}

	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}

	return errors.Join(errs...)
}
