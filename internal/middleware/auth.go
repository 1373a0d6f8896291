// Package middleware carries the session authentication middleware and the
// role-based access gates in front of the payment and subscription routes.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/accessi-au/subscription-backend/internal/models"
)

// sessionCookieName is the browser-facing session cookie. API clients may
// send the same token as a bearer Authorization header instead.
const sessionCookieName = "session_token"

type contextKey string

const (
	userContextKey  contextKey = "auth_user"
	tokenContextKey contextKey = "auth_token"
)

// TokenStore resolves a session token to its user.
type TokenStore interface {
	UserBySessionToken(ctx context.Context, token string) (*models.User, error)
}

// Authenticate resolves the request's session token, when present, and
// attaches the user and token to the request context. Requests without a
// valid session pass through anonymously; the gates decide what requires
// one.
func Authenticate(store TokenStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := requestToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, err := store.UserBySessionToken(r.Context(), token)
			if err != nil {
				// Expired or unknown token: continue anonymously.
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey, user)
			ctx = context.WithValue(ctx, tokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func requestToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(sessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// UserFrom returns the authenticated user attached to the context, if any.
func UserFrom(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userContextKey).(*models.User)
	return user, ok
}

// SessionToken returns the session token attached to the context, or "".
func SessionToken(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey).(string)
	return token
}

// WithUser attaches a user and token to a context. Exposed for handler
// tests.
func WithUser(ctx context.Context, user *models.User, token string) context.Context {
	ctx = context.WithValue(ctx, userContextKey, user)
	return context.WithValue(ctx, tokenContextKey, token)
}
