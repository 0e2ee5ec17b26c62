package email

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"html/template"
	"io/fs"
	"log/slog"
)

const (
	// TemplateName is the template executed for every notification.
	TemplateName = "notification"
	templatePath = "templates/notification.html"

	// LogoContentID is referenced from the template as cid:zozbit_logo.
	LogoContentID = "zozbit_logo"
)

// RenderedMessage holds the bodies of one notification. All fields are
// decoded plain text except HTMLBody.
type RenderedMessage struct {
	Subject  string
	HTMLBody string
	TextBody string
}

// templateData is what the notification template sees. Values are plain text;
// html/template escapes them for their context.
type templateData struct {
	Subject     string
	PreviewText string
	Headline    string
	Body        string
	Badge       string
	ActionURL   string
	ActionLabel string
	FooterNote  string
	LogoCID     string
}

// Renderer produces the HTML and text bodies of a notification. The template
// is parsed once at construction; a missing or broken template leaves the
// renderer in fallback mode rather than failing.
type Renderer struct {
	tmpl    *template.Template
	loadErr error
	logger  *slog.Logger
}

// NewRenderer loads templates/notification.html from assets. A nil assets
// filesystem or an unreadable template is logged and every render falls back.
func NewRenderer(assets fs.FS, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Renderer{logger: logger}

	if assets == nil {
		r.loadErr = errors.New("no assets filesystem configured")
	} else if raw, err := fs.ReadFile(assets, templatePath); err != nil {
		r.loadErr = fmt.Errorf("reading %s: %w", templatePath, err)
	} else if r.tmpl, err = template.New(TemplateName).Parse(string(raw)); err != nil {
		r.loadErr = fmt.Errorf("parsing %s: %w", templatePath, err)
		r.tmpl = nil
	}

	if r.loadErr != nil {
		logger.Warn("notification template unavailable, minimal HTML will be used",
			slog.String("template", templatePath),
			slog.String("error", r.loadErr.Error()),
		)
	}
	return r
}

// Render builds the message bodies for an already sanitized request. It never
// fails: render errors are logged and the minimal fallback document is used.
func (r *Renderer) Render(req NotificationRequest) RenderedMessage {
	data := newTemplateData(req)

	return RenderedMessage{
		Subject:  data.Subject,
		HTMLBody: r.renderHTML(data),
		TextBody: renderText(req),
	}
}

func (r *Renderer) renderHTML(data templateData) string {
	if r.tmpl == nil {
		r.logRenderError(&RenderError{Template: TemplateName, Err: r.loadErr})
		return fallbackHTML(data.Body)
	}

	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, TemplateName, data); err != nil {
		r.logRenderError(&RenderError{Template: TemplateName, Err: err})
		return fallbackHTML(data.Body)
	}
	return buf.String()
}

func (r *Renderer) logRenderError(err *RenderError) {
	r.logger.Warn("template render failed, using fallback", slog.String("error", err.Error()))
}

// newTemplateData decodes the sanitized values back to plain text so that
// html/template escapes them exactly once.
func newTemplateData(req NotificationRequest) templateData {
	var vars TemplateVariables
	if req.TemplateVariables != nil {
		vars = *req.TemplateVariables
	}

	return templateData{
		Subject:     plain(deref(req.Subject)),
		PreviewText: plain(deref(req.PreviewText)),
		Headline:    plain(deref(vars.Headline)),
		Body:        plain(deref(vars.Body)),
		Badge:       plain(vars.BadgeText()),
		ActionURL:   deref(vars.ActionURL),
		ActionLabel: plain(vars.ActionLabelText()),
		FooterNote:  plain(deref(vars.FooterNote)),
		LogoCID:     LogoContentID,
	}
}

// renderText returns the preview text when present, otherwise the body.
// The text/plain part gets no escaping downstream, so decoded markup is
// stripped here.
func renderText(req NotificationRequest) string {
	if p := deref(req.PreviewText); p != "" {
		return PlainText(p)
	}
	if req.TemplateVariables == nil {
		return ""
	}
	return PlainText(deref(req.TemplateVariables.Body))
}

// fallbackHTML is the minimal document used when the template cannot render.
func fallbackHTML(body string) string {
	return `<!DOCTYPE html>` +
		`<html lang="en">` +
		`<head><meta charset="utf-8"></head>` +
		`<body style="font-family: Arial, sans-serif; color: #0f172a;">` +
		`<div style="max-width: 600px; margin: 0 auto;">` + template.HTMLEscapeString(body) + `</div>` +
		`</body>` +
		`</html>`
}

func plain(s string) string {
	return html.UnescapeString(s)
}
