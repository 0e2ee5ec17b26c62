// Package email turns a validated notification request into a branded
// multipart email and delivers it over SMTP. Rendering soft-fails to a
// minimal HTML document; delivery failures surface as *DispatchError.
package email

import (
	"errors"
	"fmt"

	"github.com/sony/gobreaker/v2"
)

// Stage identifies where an SMTP session failed.
type Stage string

const (
	StageConnect Stage = "connect"
	StageTLS     Stage = "tls"
	StageAuth    Stage = "auth"
	StageSend    Stage = "send"
	StageCircuit Stage = "circuit"
)

// RenderError reports a template that could not be loaded or executed. It is
// logged and absorbed; callers always receive a fallback body.
type RenderError struct {
	Template string
	Err      error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %v", e.Template, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// DispatchError reports a failed SMTP session.
type DispatchError struct {
	Stage Stage
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("smtp %s: %v", e.Stage, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// StageOf returns the stage of a *DispatchError in err's chain, or "" when
// there is none.
func StageOf(err error) Stage {
	var de *DispatchError
	if errors.As(err, &de) {
		return de.Stage
	}
	return ""
}

// IsCircuitOpen reports whether err was returned without contacting the
// server because the breaker is open.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
