package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"zozbit-notify/internal/types"
)

// maxRequestBodySize is the maximum allowed size of a request body (1 MB).
const maxRequestBodySize = 1 << 20

// MessageResponse is the body of simple acknowledgement responses.
type MessageResponse struct {
	Message string `json:"message"`
}

// APIErrorResponse is the standard envelope for all error API responses.
type APIErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the structured error information returned to clients.
type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// JSON writes a JSON response with the given status code and data.
// If marshalling fails, it falls back to a 500 error envelope.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(APIErrorResponse{
			Error: ErrorDetail{
				Code:      string(types.ErrCodeInternalUnexpected),
				Message:   "failed to marshal response",
				RequestID: types.GetRequestID(r.Context()),
			},
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// Error writes an error response. A *types.AppError anywhere in the chain
// determines the status and code; anything else becomes an opaque 500.
// Wrapped causes are never exposed to the client.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	requestID := types.GetRequestID(r.Context())

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		JSON(w, r, appErr.HTTPStatus(), APIErrorResponse{
			Error: ErrorDetail{
				Code:      string(appErr.Code),
				Message:   appErr.Message,
				Details:   appErr.Details,
				RequestID: requestID,
			},
		})
		return
	}

	types.LoggerFromContext(r.Context(), nil).Error("unhandled error",
		"error", err,
		"path", r.URL.Path,
	)
	JSON(w, r, http.StatusInternalServerError, APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(types.ErrCodeInternalUnexpected),
			Message:   "an unexpected error occurred",
			RequestID: requestID,
		},
	})
}

// DecodeJSON reads the request body into dst. The body is capped at 1 MB and
// unknown fields are ignored.
//
// It returns a *types.AppError:
//   - unprocessable_invalid_json (422) for syntax errors, an empty body, or
//     trailing data after the first JSON value
//   - validation_invalid_field_type (400) when a known field has the wrong
//     JSON type
//   - validation_body_too_large (413) when the cap is exceeded
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return mapDecodeError(err)
	}

	// Anything but whitespace after the first value is rejected.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return types.NewAppError(
			types.ErrCodeUnprocessableJSON,
			"request body must contain a single JSON object",
			err,
		)
	}

	return nil
}

// mapDecodeError translates a json.Decoder error into a structured AppError.
func mapDecodeError(err error) *types.AppError {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return types.NewAppError(
			types.ErrCodeValidationBodyTooLarge,
			"request body must not exceed 1MB",
			err,
		)
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return types.NewAppErrorWithDetails(
			types.ErrCodeUnprocessableJSON,
			"malformed JSON in request body",
			err,
			map[string]any{"offset": syntaxErr.Offset},
		)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			return types.NewAppError(
				types.ErrCodeUnprocessableJSON,
				"request body must be a JSON object",
				err,
			)
		}
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationFieldType,
			fmt.Sprintf("%s must be of type %s", field, jsonTypeName(typeErr.Type.String())),
			err,
			map[string]any{
				"field":    field,
				"expected": jsonTypeName(typeErr.Type.String()),
				"actual":   typeErr.Value,
			},
		)
	}

	if errors.Is(err, io.EOF) {
		return types.NewAppError(
			types.ErrCodeUnprocessableJSON,
			"request body must not be empty",
			err,
		)
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		return types.NewAppError(
			types.ErrCodeUnprocessableJSON,
			"request body ended unexpectedly",
			err,
		)
	}

	return types.NewAppError(
		types.ErrCodeUnprocessableJSON,
		"invalid JSON in request body",
		err,
	)
}

// jsonTypeName maps a Go type name to the JSON type a client would send.
func jsonTypeName(goType string) string {
	switch goType {
	case "string", "*string":
		return "string"
	case "bool", "*bool":
		return "boolean"
	case "int", "int64", "float64", "*int", "*float64":
		return "number"
	}
	return "object"
}
