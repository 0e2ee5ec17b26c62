package email

import (
	"html"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// maxStripRounds bounds how often PlainText re-strips text whose decoded
// entities formed new markup.
const maxStripRounds = 4

var (
	strictPolicy     *bluemonday.Policy
	strictPolicyOnce sync.Once
)

// policy returns the shared strict policy. A bluemonday policy is safe for
// concurrent use once built.
func policy() *bluemonday.Policy {
	strictPolicyOnce.Do(func() {
		strictPolicy = bluemonday.StrictPolicy()
	})
	return strictPolicy
}

// SanitizeText strips every tag and attribute from s. The remaining text is
// HTML-escaped, so the result never contains '<' or '>'.
func SanitizeText(s string) string {
	return policy().Sanitize(s)
}

// Sanitize is SanitizeText for optional values; nil stays nil.
func Sanitize(s *string) *string {
	if s == nil {
		return nil
	}
	clean := SanitizeText(*s)
	return &clean
}

// PlainText decodes the entities in already sanitized s for use outside
// HTML. Decoding can turn escaped text such as "&lt;b&gt;" back into tags, so
// the result is stripped again until it no longer changes. If it has not
// settled after maxStripRounds the escaped form is returned.
func PlainText(s string) string {
	text := html.UnescapeString(s)
	for range maxStripRounds {
		clean := SanitizeText(text)
		decoded := html.UnescapeString(clean)
		if decoded == text {
			return text
		}
		text = decoded
	}
	return SanitizeText(text)
}
