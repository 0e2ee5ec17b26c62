// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone so Date headers and log timestamps agree.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Populate BuildInfo from linker-injected variables.
//  5. Validate the struct using go-playground/validator.
package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig to aid debugging.
// It wraps a ConfigErrorType and an underlying error message.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// loaderDeps holds the injectable dependencies for the loader, enabling
// testing without touching the working directory.
type loaderDeps struct {
	loadDotenv func(filenames ...string) error
	dotenvPath []string
}

// defaultDeps returns the standard dependencies: godotenv reading ./.env.
func defaultDeps() loaderDeps {
	return loaderDeps{
		loadDotenv: godotenv.Load,
	}
}

// LoadConfig loads and validates the service configuration.
func LoadConfig() (*Config, error) {
	return loadConfigWithDeps(defaultDeps())
}

// LoadConfigFrom behaves like LoadConfig but reads the named dotenv files
// instead of ./.env.
func LoadConfigFrom(dotenvFiles ...string) (*Config, error) {
	deps := defaultDeps()
	deps.dotenvPath = dotenvFiles
	return loadConfigWithDeps(deps)
}

func loadConfigWithDeps(deps loaderDeps) (*Config, error) {
	time.Local = time.UTC

	// godotenv never overrides variables already present in the environment,
	// and a missing file is not an error here.
	if deps.loadDotenv != nil {
		_ = deps.loadDotenv(deps.dotenvPath...)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	if err := newConfigValidator().Struct(cfg); err != nil {
		return nil, classifyValidationError(err)
	}

	return &cfg, nil
}

// newConfigValidator reports failures by environment variable name rather
// than Go field name.
func newConfigValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("envconfig")
	})
	return v
}

// classifyValidationError returns ErrMissingEnv when every failure is a
// missing required value, and ErrValidation otherwise.
func classifyValidationError(err error) *ConfigError {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ConfigError{Type: ErrValidation, Message: "configuration validation failed", Err: err}
	}

	missing := make([]string, 0, len(fieldErrs))
	invalid := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		name := fe.Field()
		if name == "" {
			name = fe.StructNamespace()
		}
		switch fe.Tag() {
		case "required", "required_if":
			missing = append(missing, name)
		default:
			invalid = append(invalid, fmt.Sprintf("%s (%s)", name, fe.Tag()))
		}
	}

	if len(invalid) == 0 {
		return &ConfigError{
			Type:    ErrMissingEnv,
			Message: "missing required variables: " + strings.Join(missing, ", "),
			Err:     err,
		}
	}
	return &ConfigError{
		Type:    ErrValidation,
		Message: "invalid variables: " + strings.Join(append(invalid, missing...), ", "),
		Err:     err,
	}
}
