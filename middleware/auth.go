package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"auditmgt/utils"
)

// TokenValidator verifies a bearer token and returns its claims.
type TokenValidator interface {
	ValidateJWT(token string) (*utils.Claims, error)
}

// Session identifies the authenticated caller.
type Session struct {
	UserID string
	Name   string
	Email  string
}

type sessionKey struct{}

func WithSession(ctx context.Context, s Session) context.Context {
	setLogUser(ctx, s.UserID)
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFrom returns the caller's session, if the request carried a valid
// token.
func SessionFrom(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok && s.UserID != ""
}

// BearerToken extracts the token from "Authorization: Bearer <token>".
func BearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
}

// Auth rejects requests without a valid bearer token with 401.
func Auth(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			tokenString := BearerToken(r)
			if tokenString == "" {
				utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			claims, err := tokens.ValidateJWT(tokenString)
			if err != nil {
				slog.DebugContext(r.Context(), "token rejected", "error", err, "request_id", GetRequestID(r.Context()))
				utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			ctx := WithSession(r.Context(), sessionFromClaims(claims))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches a session when a valid token is present and lets
// the request through either way.
func OptionalAuth(tokens TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenString := BearerToken(r); tokenString != "" {
				if claims, err := tokens.ValidateJWT(tokenString); err == nil {
					r = r.WithContext(WithSession(r.Context(), sessionFromClaims(claims)))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func sessionFromClaims(c *utils.Claims) Session {
	return Session{UserID: c.UserID, Name: c.Name, Email: c.Email}
}
