// Package config defines the configuration structure for the notification
// service. Configuration is loaded once at process start and is immutable
// thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> struct defaults (Lowest)
//
// Any missing required value or invalid format aborts startup.
package config

import (
	"log/slog"
	"strings"
	"time"

	"zozbit-notify/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the service.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"zozbit-notify"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`

	// Domain Configurations
	Server        ServerConfig
	SMTP          SMTPConfig
	Email         EmailConfig
	Security      SecurityConfig
	RateLimit     RateLimitConfig
	Delivery      DeliveryConfig
	Assets        AssetsConfig
	Observability ObservabilityConfig
	AWS           AWSConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP listener configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// SMTPConfig holds the mail relay connection settings.
type SMTPConfig struct {
	Host     string        `envconfig:"SMTP_HOST" default:"localhost" validate:"required,hostname_rfc1123|ip"`
	Port     int           `envconfig:"SMTP_PORT" default:"587" validate:"min=1,max=65535"`
	Username string        `envconfig:"SMTP_USERNAME"`
	Password SecretString  `envconfig:"SMTP_PASSWORD"`
	UseTLS   bool          `envconfig:"SMTP_USE_TLS" default:"true"`
	Timeout  time.Duration `envconfig:"SMTP_TIMEOUT" default:"30s" validate:"gt=0"`
}

// EmailConfig holds the fixed envelope addresses. Requests never choose them.
type EmailConfig struct {
	Sender    string `envconfig:"EMAIL_SENDER" validate:"required,email"`
	Recipient string `envconfig:"EMAIL_RECIPIENT" validate:"required,email"`
}

// SecurityConfig holds API key, CORS and CSRF settings.
type SecurityConfig struct {
	// APIKey is either the plaintext key or a bcrypt hash of it ("$2..." prefix).
	APIKey             SecretString `envconfig:"API_KEY" validate:"required"`
	CorsAllowedOrigins []string     `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	CSRFEnabled        bool         `envconfig:"CSRF_ENABLED" default:"false"`
	CSRFSecret         SecretString `envconfig:"CSRF_SECRET" validate:"required_if=CSRFEnabled true,omitempty,min=32"`
	CSRFCookieSecure   bool         `envconfig:"CSRF_COOKIE_SECURE" default:"true"`
}

// RateLimitConfig holds the fixed-window limiter settings.
type RateLimitConfig struct {
	Requests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10" validate:"min=1"`
	Window   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m" validate:"gt=0"`
	Store    string        `envconfig:"RATE_LIMIT_STORE" default:"memory" validate:"oneof=memory redis"`
	RedisURL SecretString  `envconfig:"REDIS_URL" validate:"required_if=Store redis"`
}

// DeliveryConfig bounds the background delivery runner.
type DeliveryConfig struct {
	Timeout       time.Duration `envconfig:"DELIVERY_TIMEOUT" default:"60s" validate:"gt=0"`
	MaxConcurrent int64         `envconfig:"DELIVERY_MAX_CONCURRENT" default:"16" validate:"min=1"`
}

// AssetsConfig locates the email template and logo.
type AssetsConfig struct {
	Dir string `envconfig:"ASSETS_DIR" default:"assets"`
}

// ObservabilityConfig holds error tracking and metrics settings.
type ObservabilityConfig struct {
	SentryDSN         SecretString `envconfig:"SENTRY_DSN"`
	SentryEnvironment string       `envconfig:"SENTRY_ENVIRONMENT"`
	MetricsEnabled    bool         `envconfig:"METRICS_ENABLED" default:"false"`
	MetricNamespace   string       `envconfig:"METRIC_NAMESPACE" default:"Zozbit/Notify"`
}

// AWSConfig holds regional configuration for the CloudWatch client.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// SlogLevel returns the effective log level. DEBUG=true forces debug output
// regardless of LOG_LEVEL.
func (c *Config) SlogLevel() slog.Level {
	if c.Debug {
		return slog.LevelDebug
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SentryEnv returns the environment name reported to Sentry.
func (c *Config) SentryEnv() string {
	if c.Observability.SentryEnvironment != "" {
		return c.Observability.SentryEnvironment
	}
	return c.Environment
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
