package core

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"zozbit-notify/internal/types"
)

// APIKeyHeader carries the service API key.
const APIKeyHeader = "X-API-KEY"

// authPublicPaths lists URL paths that are exempt from authentication.
var authPublicPaths = map[string]bool{
	"/health": true,
}

// APIKeyAuthenticator verifies the X-API-KEY header against the configured
// key. A configured value starting with "$2" is treated as a bcrypt hash.
type APIKeyAuthenticator struct {
	expected []byte
	hashed   bool
}

// NewAPIKeyAuthenticator creates an authenticator for the configured key.
func NewAPIKeyAuthenticator(key types.SecretString) *APIKeyAuthenticator {
	raw := key.Unmask()
	return &APIKeyAuthenticator{
		expected: []byte(raw),
		hashed:   strings.HasPrefix(raw, "$2"),
	}
}

// VerifyKey implements Authenticator.
func (a *APIKeyAuthenticator) VerifyKey(_ context.Context, presented string) (*types.Actor, error) {
	if len(a.expected) == 0 {
		return nil, types.NewAppError(types.ErrCodeAuthKeyInvalid, "Invalid API key", nil)
	}

	var ok bool
	if a.hashed {
		ok = bcrypt.CompareHashAndPassword(a.expected, []byte(presented)) == nil
	} else {
		ok = subtle.ConstantTimeCompare(a.expected, []byte(presented)) == 1
	}
	if !ok {
		return nil, types.NewAppError(types.ErrCodeAuthKeyInvalid, "Invalid API key", nil)
	}

	return &types.Actor{Type: types.ActorTypeAPIKey}, nil
}

// AuthMiddleware requires a valid X-API-KEY header on every non-public path.
//
//   - Missing header -> 401 auth_api_key_missing "Missing X-API-KEY header"
//   - Wrong key      -> 401 auth_api_key_invalid "Invalid API key"
//
// Both failures are logged at warn with the client address. A nil
// Authenticator disables the check. CORS preflights never reach this point.
func (s *Server) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil || authPublicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := extractClientIP(r)

		presented := r.Header.Get(APIKeyHeader)
		if presented == "" {
			s.Logger.Warn("missing API key",
				slog.String("client_ip", clientIP),
				slog.String("path", r.URL.Path),
			)
			s.writeAuthError(w, r, types.ErrCodeAuthKeyMissing, "Missing X-API-KEY header")
			return
		}

		actor, err := s.Authenticator.VerifyKey(r.Context(), presented)
		if err != nil {
			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				s.Logger.Error("api key verification failed",
					slog.String("client_ip", clientIP),
					slog.String("error", err.Error()),
				)
			} else {
				s.Logger.Warn("invalid API key",
					slog.String("client_ip", clientIP),
					slog.String("path", r.URL.Path),
				)
			}
			s.writeAuthError(w, r, types.ErrCodeAuthKeyInvalid, "Invalid API key")
			return
		}
		if actor == nil {
			s.writeAuthError(w, r, types.ErrCodeAuthKeyInvalid, "Invalid API key")
			return
		}

		actor.ClientIP = clientIP
		next.ServeHTTP(w, r.WithContext(types.WithActor(r.Context(), *actor)))
	})
}

// writeAuthError writes a 401 Unauthorized JSON response with the given code.
func (s *Server) writeAuthError(w http.ResponseWriter, r *http.Request, code types.ErrorCode, message string) {
	w.Header().Set("WWW-Authenticate", `APIKey header="`+APIKeyHeader+`"`)
	JSON(w, r, http.StatusUnauthorized, APIErrorResponse{
		Error: ErrorDetail{
			Code:      string(code),
			Message:   message,
			RequestID: types.GetRequestID(r.Context()),
		},
	})
}
