package core

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"zozbit-notify/internal/types"
)

// maxWebURLLength bounds absolute link URLs accepted from clients.
const maxWebURLLength = 2048

// ValidationError describes a single field-level violation.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult collects every violation found in one pass.
type ValidationResult struct {
	Errors []ValidationError
}

// IsValid reports whether the result has no blocking errors.
func (r ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator wraps go-playground/validator, reports fields by their JSON path
// and registers the service's custom tags.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a new Validator and registers custom validation tags:
//
//   - web_url: absolute http(s) URL with a host, at most 2048 characters
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	if err := v.RegisterValidation("web_url", validateWebURL); err != nil {
		// Registration only fails on an empty tag name or nil func.
		panic(fmt.Sprintf("registering web_url validation: %v", err))
	}

	return &Validator{
		validate: v,
		logger:   logger,
	}
}

// ValidateStruct validates s and returns an *types.AppError listing every
// violation under Details["validation_errors"]. The top-level code is the
// first violation's code.
func (v *Validator) ValidateStruct(s any) error {
	result := v.Violations(s)
	if result.IsValid() {
		return nil
	}

	first := result.Errors[0]
	return types.NewAppErrorWithDetails(
		types.ErrorCode(first.Code),
		first.Message,
		nil,
		map[string]any{"validation_errors": result.Errors},
	)
}

// Violations validates s and returns all violations without wrapping them in
// an error.
func (v *Validator) Violations(s any) ValidationResult {
	var result ValidationResult

	err := v.validate.Struct(s)
	if err == nil {
		return result
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		v.logger.Error("validator misuse", "error", err)
		result.Errors = append(result.Errors, ValidationError{
			Field:   "",
			Code:    string(types.ErrCodeValidationInvalidField),
			Message: "request could not be validated",
		})
		return result
	}

	for _, fe := range fieldErrs {
		result.Errors = append(result.Errors, toValidationError(fe))
	}
	return result
}

// toValidationError maps a go-playground FieldError to the API shape.
func toValidationError(fe validator.FieldError) ValidationError {
	field := fieldPath(fe.Namespace())

	switch fe.Tag() {
	case "required":
		return ValidationError{
			Field:   field,
			Code:    string(types.ErrCodeValidationMissingField),
			Message: fmt.Sprintf("%s is required", field),
		}
	case "min", "max", "len":
		return ValidationError{
			Field:   field,
			Code:    string(types.ErrCodeValidationLength),
			Message: lengthMessage(field, fe),
		}
	case "email":
		return ValidationError{
			Field:   field,
			Code:    string(types.ErrCodeValidationInvalidEmail),
			Message: fmt.Sprintf("%s must be a valid email address", field),
		}
	case "web_url", "url", "http_url":
		return ValidationError{
			Field:   field,
			Code:    string(types.ErrCodeValidationInvalidURL),
			Message: fmt.Sprintf("%s must be an absolute http or https URL of at most %d characters", field, maxWebURLLength),
		}
	default:
		return ValidationError{
			Field:   field,
			Code:    string(types.ErrCodeValidationInvalidField),
			Message: fmt.Sprintf("%s failed the %q rule", field, fe.Tag()),
		}
	}
}

func lengthMessage(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "min":
		if fe.Param() == "1" {
			return fmt.Sprintf("%s must not be empty", field)
		}
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s must be exactly %s characters", field, fe.Param())
	}
}

// fieldPath strips the root struct name from a validator namespace, turning
// "NotificationRequest.templateVariables.headline" into
// "templateVariables.headline".
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

// validateWebURL implements the web_url tag.
func validateWebURL(fl validator.FieldLevel) bool {
	raw := fl.Field().String()
	if raw == "" || len(raw) > maxWebURLLength {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
