package types

import "log/slog"

const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString holds a credential such as the SMTP password or the service
// API key. Every rendering path (fmt, JSON, slog) yields a placeholder; only
// Unmask returns the raw value.
type SecretString string

// String returns the redacted placeholder.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// GoString keeps %#v from printing the raw value.
func (s SecretString) GoString() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// LogValue implements slog.LogValuer.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(redactedPlaceholder)
}

// IsSet reports whether a non-empty value was configured.
func (s SecretString) IsSet() bool {
	return s != ""
}

// Unmask returns the raw plaintext value. Callers are limited to the SMTP
// authenticator and the API key comparison.
func (s SecretString) Unmask() string {
	return string(s)
}
