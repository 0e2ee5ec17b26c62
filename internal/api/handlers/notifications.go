// Package handlers contains the HTTP handler implementations for the
// notification API.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"zozbit-notify/internal/core"
	"zozbit-notify/internal/notifications/delivery"
	"zozbit-notify/internal/notifications/email"
	"zozbit-notify/internal/types"
)

// SendEmailPath is the route of the send endpoint.
const SendEmailPath = "/notifications/send-email"

// NotificationHandler accepts notification requests and hands them to the
// background runner.
type NotificationHandler struct {
	dispatcher types.Sender[email.NotificationRequest]
	validator  *core.Validator
	logger     *slog.Logger
}

// NewNotificationHandler creates a NotificationHandler. dispatcher is
// normally a *delivery.Runner, so Send returns as soon as the request is
// admitted.
func NewNotificationHandler(
	dispatcher types.Sender[email.NotificationRequest],
	v *core.Validator,
	l *slog.Logger,
) *NotificationHandler {
	if l == nil {
		l = slog.Default()
	}
	return &NotificationHandler{
		dispatcher: dispatcher,
		validator:  v,
		logger:     l,
	}
}

// RegisterRoutes mounts the notification routes onto the provided router.
func (h *NotificationHandler) RegisterRoutes(r chi.Router) {
	r.Post(SendEmailPath, h.SendEmail)
}

// SendEmail handles POST /notifications/send-email.
//
// Flow:
//  1. Decode the body (422 on malformed JSON).
//  2. Validate every field (400 listing all violations).
//  3. Sanitize free text once.
//  4. Admit the request to the background runner.
//  5. Respond 201 without waiting for delivery.
func (h *NotificationHandler) SendEmail(w http.ResponseWriter, r *http.Request) {
	var req email.NotificationRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.dispatcher.Send(r.Context(), req.Sanitized()); err != nil {
		core.Error(w, r, admissionError(err))
		return
	}

	logger := types.LoggerFromContext(r.Context(), h.logger)
	if actor, ok := types.GetActor(r.Context()); ok {
		logger = logger.With(
			slog.String("actor_type", string(actor.Type)),
			slog.String("client_ip", actor.ClientIP),
		)
	}
	logger.Info("notification accepted")

	core.JSON(w, r, http.StatusCreated, core.MessageResponse{
		Message: "Email sent successfully",
	})
}

// admissionError maps runner admission failures to client-facing errors.
func admissionError(err error) error {
	switch {
	case errors.Is(err, delivery.ErrSaturated):
		return types.NewAppError(types.ErrCodeUnavailableDelivery, "Too many notifications in flight, retry later", err)
	case errors.Is(err, delivery.ErrRunnerClosed):
		return types.NewAppError(types.ErrCodeUnavailableDelivery, "Service is shutting down", err)
	default:
		return err
	}
}
