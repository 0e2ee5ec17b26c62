package email

const (
	DefaultBadge       = "Notification"
	DefaultActionLabel = "View Details"
)

// NotificationRequest is the body of POST /notifications/send-email.
// Unknown JSON fields are ignored. Required text fields are pointers so that
// an absent field and an empty one fail different rules.
type NotificationRequest struct {
	Subject           *string            `json:"subject" validate:"required,min=1,max=200"`
	TemplateVariables *TemplateVariables `json:"templateVariables" validate:"required"`
	PreviewText       *string            `json:"previewText,omitempty" validate:"omitempty,max=200"`
}

// TemplateVariables fill the notification template.
type TemplateVariables struct {
	Headline    *string `json:"headline" validate:"required,min=1,max=200"`
	Body        *string `json:"body" validate:"required,min=1"`
	Badge       *string `json:"badge,omitempty" validate:"omitempty,max=50"`
	ActionURL   *string `json:"actionUrl,omitempty" validate:"omitempty,max=2048,web_url"`
	ActionLabel *string `json:"actionLabel,omitempty" validate:"omitempty,max=50"`
	FooterNote  *string `json:"footerNote,omitempty" validate:"omitempty,max=500"`
}

// BadgeText returns the badge, or DefaultBadge when it was omitted.
func (v TemplateVariables) BadgeText() string {
	if v.Badge == nil {
		return DefaultBadge
	}
	return *v.Badge
}

// ActionLabelText returns the button label, or DefaultActionLabel when it
// was omitted.
func (v TemplateVariables) ActionLabelText() string {
	if v.ActionLabel == nil {
		return DefaultActionLabel
	}
	return *v.ActionLabel
}

// Sanitized returns a copy with every free-text field passed through the
// sanitizer. ActionURL is copied as is; it is only ever rendered as an href.
func (r NotificationRequest) Sanitized() NotificationRequest {
	out := NotificationRequest{
		Subject:     Sanitize(r.Subject),
		PreviewText: Sanitize(r.PreviewText),
	}
	if r.TemplateVariables != nil {
		tv := TemplateVariables{
			Headline:    Sanitize(r.TemplateVariables.Headline),
			Body:        Sanitize(r.TemplateVariables.Body),
			Badge:       Sanitize(r.TemplateVariables.Badge),
			ActionLabel: Sanitize(r.TemplateVariables.ActionLabel),
			FooterNote:  Sanitize(r.TemplateVariables.FooterNote),
		}
		if r.TemplateVariables.ActionURL != nil {
			u := *r.TemplateVariables.ActionURL
			tv.ActionURL = &u
		}
		out.TemplateVariables = &tv
	}
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
