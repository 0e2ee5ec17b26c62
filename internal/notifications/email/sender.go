package email

import (
	"context"
	"fmt"
	"log/slog"

	"zozbit-notify/internal/types"
)

// SenderConfig holds the dependencies of an EmailSender.
type SenderConfig struct {
	Renderer  *Renderer
	Assembler *Assembler
	// Transport delivers the assembled message, normally a *Dispatcher.
	Transport types.Sender[*OutboundEmail]
	From      string
	To        string
	Logger    *slog.Logger
}

// EmailSender runs render, assemble and dispatch for one sanitized request.
// Sender and recipient come from configuration, never from the request.
type EmailSender struct {
	renderer  *Renderer
	assembler *Assembler
	transport types.Sender[*OutboundEmail]
	from      string
	to        string
	logger    *slog.Logger
}

// NewEmailSender creates the email pipeline.
func NewEmailSender(cfg SenderConfig) *EmailSender {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailSender{
		renderer:  cfg.Renderer,
		assembler: cfg.Assembler,
		transport: cfg.Transport,
		from:      cfg.From,
		to:        cfg.To,
		logger:    logger,
	}
}

// Send implements types.Sender. The request must already be sanitized.
func (s *EmailSender) Send(ctx context.Context, req NotificationRequest) error {
	logger := types.LoggerFromContext(ctx, s.logger)

	rendered := s.renderer.Render(req)

	msg, err := s.assembler.Assemble(rendered, s.from, s.to)
	if err != nil {
		return fmt.Errorf("assembling message: %w", err)
	}

	logger.Info("dispatching email",
		slog.String("to", RedactEmail(msg.To)),
		slog.String("message_id", msg.MessageID),
	)

	if err := s.transport.Send(ctx, msg); err != nil {
		return err
	}

	logger.Info("email delivered",
		slog.String("to", RedactEmail(msg.To)),
		slog.String("message_id", msg.MessageID),
	)
	return nil
}

var (
	_ types.Sender[NotificationRequest] = (*EmailSender)(nil)
	_ types.Sender[*OutboundEmail]      = (*Dispatcher)(nil)
)
