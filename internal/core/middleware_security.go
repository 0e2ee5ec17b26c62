package core

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"zozbit-notify/internal/types"
)

const (
	// CSRFCookieName is the double-submit cookie issued on safe requests.
	CSRFCookieName = "csrftoken"
	// CSRFHeaderName must echo the cookie value on unsafe requests.
	CSRFHeaderName = "X-CSRFToken"

	csrfNonceSize = 32
)

// CSRFProtector issues and verifies HMAC-signed double-submit tokens.
// A token is base64url(nonce || HMAC-SHA256(secret, nonce)).
type CSRFProtector struct {
	secret       []byte
	cookieSecure bool
}

// NewCSRFProtector creates a protector keyed by secret.
func NewCSRFProtector(secret string, cookieSecure bool) *CSRFProtector {
	return &CSRFProtector{secret: []byte(secret), cookieSecure: cookieSecure}
}

// NewToken returns a fresh signed token.
func (p *CSRFProtector) NewToken() (string, error) {
	nonce := make([]byte, csrfNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(append(nonce, p.sign(nonce)...)), nil
}

// Valid reports whether token carries a signature made with this secret.
func (p *CSRFProtector) Valid(token string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != csrfNonceSize+sha256.Size {
		return false
	}
	return hmac.Equal(raw[csrfNonceSize:], p.sign(raw[:csrfNonceSize]))
}

func (p *CSRFProtector) sign(nonce []byte) []byte {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write(nonce)
	return mac.Sum(nil)
}

// cookie builds the CSRF cookie. It must be readable by browser scripts so
// that they can echo it in the header.
func (p *CSRFProtector) cookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		Secure:   p.cookieSecure,
		HttpOnly: false,
		SameSite: http.SameSiteLaxMode,
	}
}

// CSRFMiddleware enforces double-submit CSRF protection when enabled.
//
//   - Safe methods (GET, HEAD, OPTIONS) receive a csrftoken cookie if the
//     request does not already carry a valid one.
//   - Unsafe methods must send X-CSRFToken equal to the csrftoken cookie,
//     and the token must verify against the secret. Otherwise 403.
//
// A nil s.CSRF disables the middleware.
func (s *Server) CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.CSRF == nil {
			next.ServeHTTP(w, r)
			return
		}

		cookieToken := ""
		if c, err := r.Cookie(CSRFCookieName); err == nil {
			cookieToken = c.Value
		}

		if isSafeMethod(r.Method) {
			if !s.CSRF.Valid(cookieToken) {
				token, err := s.CSRF.NewToken()
				if err != nil {
					s.Logger.Error("csrf token generation failed", slog.String("error", err.Error()))
				} else {
					http.SetCookie(w, s.CSRF.cookie(token))
				}
			}
			next.ServeHTTP(w, r)
			return
		}

		headerToken := r.Header.Get(CSRFHeaderName)
		if headerToken == "" || cookieToken == "" ||
			subtle.ConstantTimeCompare([]byte(headerToken), []byte(cookieToken)) != 1 ||
			!s.CSRF.Valid(headerToken) {
			s.Logger.Warn("CSRF token rejected",
				slog.String("client_ip", extractClientIP(r)),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Bool("header_present", headerToken != ""),
				slog.Bool("cookie_present", cookieToken != ""),
			)
			JSON(w, r, http.StatusForbidden, APIErrorResponse{
				Error: ErrorDetail{
					Code:      string(types.ErrCodePermissionCSRF),
					Message:   "CSRF token missing or incorrect",
					RequestID: types.GetRequestID(r.Context()),
				},
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// extractClientIP extracts the client's IP address from the request. The
// first X-Forwarded-For entry wins; otherwise RemoteAddr without its port.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// isSafeMethod returns true for HTTP methods that should not cause state changes
// and are therefore exempt from CSRF validation.
func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}
