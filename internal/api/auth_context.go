package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/fuelupapp/fuelup-server/internal/auth"
	"github.com/fuelupapp/fuelup-server/internal/errors"
)

// TokenVerifier checks bearer tokens.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*auth.AccessClaims, error)
}

// ctxKey is the type for context keys to avoid collisions.
type ctxKey string

const (
	userIDKey  ctxKey = "userID"
	authErrKey ctxKey = "authErr"
)

// GetUserID returns the authenticated user ID from context, or the reason
// there is none.
func GetUserID(ctx context.Context) (string, error) {
	if userID, ok := UserFromContext(ctx); ok {
		return userID, nil
	}
	if err, ok := ctx.Value(authErrKey).(error); ok {
		return "", err
	}
	return "", errors.Unauthorized("Authentication required")
}

// UserFromContext returns the authenticated user ID, if any.
func UserFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}

func setUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// authMiddleware validates Bearer tokens and stores the user ID in context.
// Requests without a valid token continue anonymously; handlers that need a
// user call GetUserID, which reports why verification failed.
func authMiddleware(tokens TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := tokens.VerifyAccessToken(token)
			if err != nil {
				ctx := context.WithValue(r.Context(), authErrKey, err)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			next.ServeHTTP(w, r.WithContext(setUserID(r.Context(), claims.UserID)))
		})
	}
}
