package email

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"zozbit-notify/internal/config"
)

const (
	defaultSMTPTimeout = 30 * time.Second

	breakerTripAfter = 5
	breakerCooldown  = 30 * time.Second
)

// Dispatcher delivers assembled messages over one SMTP session each. Sessions
// run behind a circuit breaker; there are no retries.
type Dispatcher struct {
	cfg     config.SMTPConfig
	breaker *gobreaker.CircuitBreaker[struct{}]
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher for the configured relay.
func NewDispatcher(cfg config.SMTPConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}

	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Timeout:     breakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTripAfter
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &Dispatcher{cfg: cfg, breaker: breaker, logger: logger}
}

// Dispatch sends msg to msg.To. Every failure is a *DispatchError.
func (d *Dispatcher) Dispatch(ctx context.Context, msg *OutboundEmail) error {
	_, err := d.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, d.session(ctx, msg)
	})
	if err == nil {
		return nil
	}
	if IsCircuitOpen(err) {
		return &DispatchError{Stage: StageCircuit, Err: err}
	}
	return err
}

// Send implements types.Sender for already assembled messages.
func (d *Dispatcher) Send(ctx context.Context, msg *OutboundEmail) error {
	return d.Dispatch(ctx, msg)
}

// session runs connect, TLS, auth and transaction. The connection is closed
// on every path.
func (d *Dispatcher) session(ctx context.Context, msg *OutboundEmail) error {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	addr := net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port))
	dialer := &net.Dialer{Timeout: d.cfg.Timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &DispatchError{Stage: StageConnect, Err: err}
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	// Unblock pending reads and writes as soon as the caller gives up.
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	defer stop()

	tlsConfig := &tls.Config{ServerName: d.cfg.Host, MinVersion: tls.VersionTLS12}

	if d.cfg.UseTLS {
		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			return &DispatchError{Stage: StageTLS, Err: err}
		}
		conn = tlsConn
	}

	client, err := smtp.NewClient(conn, d.cfg.Host)
	if err != nil {
		return &DispatchError{Stage: StageConnect, Err: withContextErr(ctx, err)}
	}
	defer client.Close()

	if !d.cfg.UseTLS {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return &DispatchError{Stage: StageTLS, Err: withContextErr(ctx, err)}
			}
		}
	}

	if d.cfg.Username != "" {
		auth := smtp.PlainAuth("", d.cfg.Username, d.cfg.Password.Unmask(), d.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return &DispatchError{Stage: StageAuth, Err: withContextErr(ctx, err)}
		}
	}

	if err := transmit(client, msg); err != nil {
		return &DispatchError{Stage: StageSend, Err: withContextErr(ctx, err)}
	}

	if err := client.Quit(); err != nil {
		d.logger.Debug("smtp quit failed after delivery", slog.String("error", err.Error()))
	}
	return nil
}

func transmit(client *smtp.Client, msg *OutboundEmail) error {
	if err := client.Mail(msg.From); err != nil {
		return err
	}
	if err := client.Rcpt(msg.To); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg.Raw); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// withContextErr attaches the context error when a deadline or cancellation
// is what broke the connection.
func withContextErr(ctx context.Context, err error) error {
	ctxErr := ctx.Err()
	if ctxErr == nil {
		// The connection deadline can fire just before the context timer.
		if deadline, ok := ctx.Deadline(); ok && !time.Now().Before(deadline) {
			ctxErr = context.DeadlineExceeded
		}
	}
	if ctxErr != nil && !errors.Is(err, ctxErr) {
		return errors.Join(err, ctxErr)
	}
	return err
}
