package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zozbit-notify/internal/config"
	"zozbit-notify/internal/core"
	"zozbit-notify/internal/notifications/delivery"
	"zozbit-notify/internal/notifications/email"
	"zozbit-notify/internal/types"
)

// =============================================================================
// Test Helpers
// =============================================================================

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// captureSender records payloads and returns err.
type captureSender struct {
	mu       sync.Mutex
	payloads []email.NotificationRequest
	ctxs     []context.Context
	err      error
}

func (c *captureSender) Send(ctx context.Context, req email.NotificationRequest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.payloads = append(c.payloads, req)
	c.ctxs = append(c.ctxs, ctx)
	return nil
}

func (c *captureSender) calls() []email.NotificationRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]email.NotificationRequest(nil), c.payloads...)
}

func newTestRouter(sender types.Sender[email.NotificationRequest]) chi.Router {
	h := NewNotificationHandler(sender, core.NewValidator(testLogger()), testLogger())
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func postJSON(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, SendEmailPath, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) core.ErrorDetail {
	t.Helper()
	var resp core.APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func validationFields(t *testing.T, detail core.ErrorDetail) map[string]string {
	t.Helper()
	raw, ok := detail.Details["validation_errors"].([]any)
	require.True(t, ok, "details must list validation_errors, got %v", detail.Details)

	fields := make(map[string]string, len(raw))
	for _, item := range raw {
		entry := item.(map[string]any)
		fields[entry["field"].(string)] = entry["code"].(string)
	}
	return fields
}

const validBody = `{
	"subject": "Welcome",
	"templateVariables": {
		"headline": "Hi <b>there</b>",
		"body": "Welcome aboard<script>alert(1)</script>",
		"actionUrl": "https://app.zozbit.com/dashboard"
	}
}`

// =============================================================================
// SendEmail
// =============================================================================

func TestSendEmail_Accepted(t *testing.T) {
	sender := &captureSender{}
	rec := postJSON(t, newTestRouter(sender), validBody)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"message":"Email sent successfully"}`, rec.Body.String())

	calls := sender.calls()
	require.Len(t, calls, 1)
	got := calls[0]
	assert.Equal(t, "Welcome", *got.Subject)
	assert.Equal(t, "Hi there", *got.TemplateVariables.Headline)
	assert.Equal(t, "Welcome aboard", *got.TemplateVariables.Body)
	assert.Equal(t, "https://app.zozbit.com/dashboard", *got.TemplateVariables.ActionURL)
}

func TestSendEmail_LogsAuthenticatedActor(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	h := NewNotificationHandler(&captureSender{}, core.NewValidator(testLogger()), logger)
	r := chi.NewRouter()
	h.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, SendEmailPath, strings.NewReader(validBody))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(types.WithActor(req.Context(), types.Actor{
		Type:     types.ActorTypeAPIKey,
		ClientIP: "203.0.113.9",
	}))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(logs.Bytes(), &entry))
	assert.Equal(t, "notification accepted", entry["msg"])
	assert.Equal(t, "api_key", entry["actor_type"])
	assert.Equal(t, "203.0.113.9", entry["client_ip"])
}

func TestSendEmail_MalformedJSON(t *testing.T) {
	sender := &captureSender{}
	rec := postJSON(t, newTestRouter(sender), `{"subject": "Welcome",`)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, string(types.ErrCodeUnprocessableJSON), decodeError(t, rec).Code)
	assert.Empty(t, sender.calls())
}

func TestSendEmail_ValidationFailures(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantCode   types.ErrorCode
		wantFields map[string]string
	}{
		{
			name:     "missing subject and variables",
			body:     `{}`,
			wantCode: types.ErrCodeValidationMissingField,
			wantFields: map[string]string{
				"subject":           string(types.ErrCodeValidationMissingField),
				"templateVariables": string(types.ErrCodeValidationMissingField),
			},
		},
		{
			name:     "empty headline",
			body:     `{"subject":"Hi","templateVariables":{"headline":"","body":"x"}}`,
			wantCode: types.ErrCodeValidationLength,
			wantFields: map[string]string{
				"templateVariables.headline": string(types.ErrCodeValidationLength),
			},
		},
		{
			name:     "relative action url",
			body:     `{"subject":"Hi","templateVariables":{"headline":"H","body":"x","actionUrl":"/dashboard"}}`,
			wantCode: types.ErrCodeValidationInvalidURL,
			wantFields: map[string]string{
				"templateVariables.actionUrl": string(types.ErrCodeValidationInvalidURL),
			},
		},
		{
			name:     "subject too long",
			body:     `{"subject":"` + strings.Repeat("a", 201) + `","templateVariables":{"headline":"H","body":"x"}}`,
			wantCode: types.ErrCodeValidationLength,
			wantFields: map[string]string{
				"subject": string(types.ErrCodeValidationLength),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &captureSender{}
			rec := postJSON(t, newTestRouter(sender), tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			detail := decodeError(t, rec)
			assert.Equal(t, string(tt.wantCode), detail.Code)
			assert.Equal(t, tt.wantFields, validationFields(t, detail))
			assert.Empty(t, sender.calls())
		})
	}
}

func TestSendEmail_AdmissionFailures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   types.ErrorCode
	}{
		{"saturated", delivery.ErrSaturated, http.StatusServiceUnavailable, types.ErrCodeUnavailableDelivery},
		{"shutting down", delivery.ErrRunnerClosed, http.StatusServiceUnavailable, types.ErrCodeUnavailableDelivery},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, types.ErrCodeInternalUnexpected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, newTestRouter(&captureSender{err: tt.err}), validBody)

			assert.Equal(t, tt.wantStatus, rec.Code)
			detail := decodeError(t, rec)
			assert.Equal(t, string(tt.wantCode), detail.Code)
			assert.NotContains(t, detail.Message, "boom")
		})
	}
}

// =============================================================================
// Full chain through core.Server and delivery.Runner
// =============================================================================

func newChainServer(t *testing.T, sender types.Sender[email.NotificationRequest]) (http.Handler, *delivery.Runner[email.NotificationRequest]) {
	t.Helper()

	cfg := &config.Config{
		Environment: "local",
		Security: config.SecurityConfig{
			APIKey:             "test-key",
			CorsAllowedOrigins: []string{"*"},
		},
		RateLimit: config.RateLimitConfig{Requests: 10, Window: time.Minute, Store: "memory"},
	}

	srv, err := core.NewServer(cfg, testLogger())
	require.NoError(t, err)
	srv.Authenticator = core.NewAPIKeyAuthenticator(cfg.Security.APIKey)
	srv.RateLimitStore = core.NewMemoryRateLimitStore(nil)

	runner := delivery.NewRunner(sender, delivery.Options{Timeout: 5 * time.Second}, testLogger())
	handler := NewNotificationHandler(runner, srv.Validator, testLogger())
	srv.RouteRegistrars = append(srv.RouteRegistrars, handler.RegisterRoutes)
	srv.MountRoutes()

	return srv.Handler(), runner
}

func TestSendEmail_ThroughServer(t *testing.T) {
	sender := &captureSender{}
	h, runner := newChainServer(t, sender)

	t.Run("missing api key", func(t *testing.T) {
		rec := postJSON(t, h, validBody)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, string(types.ErrCodeAuthKeyMissing), decodeError(t, rec).Code)
	})

	t.Run("accepted and delivered in the background", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, SendEmailPath, strings.NewReader(validBody))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-API-KEY", "test-key")
		req.Header.Set("X-Request-Id", "req-chain-1")
		rec := httptest.NewRecorder()

		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "req-chain-1", rec.Header().Get("X-Request-Id"))

		require.NoError(t, runner.Shutdown(context.Background()))
		calls := sender.calls()
		require.Len(t, calls, 1)
		assert.Equal(t, "Hi there", *calls[0].TemplateVariables.Headline)

		sender.mu.Lock()
		taskCtx := sender.ctxs[0]
		sender.mu.Unlock()
		assert.Equal(t, "req-chain-1", types.GetRequestID(taskCtx))
	})
}
