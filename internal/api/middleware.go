package api

import (
	"context"
	"net/http"
	"strings"

	"catalog-service/internal/auth"
)

type contextKey string

const (
	// userIDKey is the context key for the authenticated user's ID.
	userIDKey contextKey = "user_id"
	// usernameKey is the context key for the authenticated user's name.
	usernameKey contextKey = "username"
)

// RequireAuth returns middleware that validates a Bearer access token and
// injects the user's identity into the request context. Unauthenticated
// requests receive a 401 JSON response.
func RequireAuth(jwtManager *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondWithError(w, http.StatusUnauthorized, "Missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				respondWithError(w, http.StatusUnauthorized, "Invalid authorization format")
				return
			}

			claims, err := jwtManager.ValidateToken(parts[1])
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
			ctx = context.WithValue(ctx, usernameKey, claims.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserFromContext extracts the authenticated user's ID from the request
// context. Returns false if no user is authenticated.
func UserFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(userIDKey).(int64)
	return id, ok
}
