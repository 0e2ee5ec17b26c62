package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"zozbit-notify/internal/types"
)

type decodeTarget struct {
	Subject string `json:"subject"`
	Count   int    `json:"count"`
}

func TestDecodeJSON(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantCode   types.ErrorCode
		wantStatus int
	}{
		{name: "valid object", body: `{"subject":"hi","count":2}`},
		{name: "unknown fields ignored", body: `{"subject":"hi","extra":true}`},
		{name: "trailing whitespace ok", body: "{\"subject\":\"hi\"}\n  "},
		{name: "malformed", body: `{"subject":`, wantCode: types.ErrCodeUnprocessableJSON, wantStatus: http.StatusUnprocessableEntity},
		{name: "syntax error", body: `{"subject" "hi"}`, wantCode: types.ErrCodeUnprocessableJSON, wantStatus: http.StatusUnprocessableEntity},
		{name: "empty body", body: ``, wantCode: types.ErrCodeUnprocessableJSON, wantStatus: http.StatusUnprocessableEntity},
		{name: "trailing data", body: `{"subject":"a"}{"subject":"b"}`, wantCode: types.ErrCodeUnprocessableJSON, wantStatus: http.StatusUnprocessableEntity},
		{name: "top-level array", body: `[1,2]`, wantCode: types.ErrCodeUnprocessableJSON, wantStatus: http.StatusUnprocessableEntity},
		{name: "wrong field type", body: `{"subject":123}`, wantCode: types.ErrCodeValidationFieldType, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()

			var dst decodeTarget
			err := DecodeJSON(rec, req, &dst)

			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("DecodeJSON returned error: %v", err)
				}
				if dst.Subject != "hi" {
					t.Errorf("Subject = %q, want hi", dst.Subject)
				}
				return
			}

			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *types.AppError, got %v", err)
			}
			if appErr.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", appErr.Code, tt.wantCode)
			}
			if appErr.HTTPStatus() != tt.wantStatus {
				t.Errorf("status = %d, want %d", appErr.HTTPStatus(), tt.wantStatus)
			}
		})
	}
}

func TestDecodeJSON_FieldTypeDetails(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"subject":true}`))
	var dst decodeTarget
	err := DecodeJSON(httptest.NewRecorder(), req, &dst)

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %v", err)
	}
	if appErr.Details["field"] != "subject" {
		t.Errorf("details.field = %v, want subject", appErr.Details["field"])
	}
	if appErr.Details["expected"] != "string" {
		t.Errorf("details.expected = %v, want string", appErr.Details["expected"])
	}
	if appErr.Details["actual"] != "bool" {
		t.Errorf("details.actual = %v, want bool", appErr.Details["actual"])
	}
}

func TestDecodeJSON_BodyTooLarge(t *testing.T) {
	body := `{"subject":"` + strings.Repeat("a", maxRequestBodySize) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

	var dst decodeTarget
	err := DecodeJSON(httptest.NewRecorder(), req, &dst)

	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *types.AppError, got %v", err)
	}
	if appErr.Code != types.ErrCodeValidationBodyTooLarge {
		t.Errorf("code = %s, want %s", appErr.Code, types.ErrCodeValidationBodyTooLarge)
	}
	if appErr.HTTPStatus() != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", appErr.HTTPStatus())
	}
}

func TestError_AppErrorEnvelope(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req = req.WithContext(types.WithRequestID(req.Context(), "req-1"))
	rec := httptest.NewRecorder()

	Error(rec, req, types.NewAppErrorWithDetails(
		types.ErrCodeValidationMissingField,
		"subject is required",
		nil,
		map[string]any{"field": "subject"},
	))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp APIErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != string(types.ErrCodeValidationMissingField) {
		t.Errorf("code = %s", resp.Error.Code)
	}
	if resp.Error.RequestID != "req-1" {
		t.Errorf("request_id = %s, want req-1", resp.Error.RequestID)
	}
	if resp.Error.Details["field"] != "subject" {
		t.Errorf("details = %v", resp.Error.Details)
	}
}

func TestError_UnknownErrorIsOpaque(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(types.WithLogger(req.Context(), testLogger()))
	rec := httptest.NewRecorder()

	Error(rec, req, errors.New("dial tcp 10.0.0.5:587: connection refused"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "10.0.0.5") {
		t.Error("internal error detail leaked to client")
	}
	if !strings.Contains(rec.Body.String(), string(types.ErrCodeInternalUnexpected)) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestJSON_SetsContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusCreated, MessageResponse{Message: "ok"})

	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Body.String() != `{"message":"ok"}` {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestJSON_MarshalFailureFallsBack(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, httptest.NewRequest(http.MethodGet, "/", nil), http.StatusOK, map[string]any{"ch": make(chan int)})

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
