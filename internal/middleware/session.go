package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/roomcast/internal/logger"
	"github.com/roomcast/internal/storage"
)

// BearerAuth resolves the Authorization bearer token against the session
// store and puts the user id on the request context. WebSocket upgrades
// cannot set headers from a browser, so ?token= is accepted as fallback.
func BearerAuth(sessions storage.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			userID, err := sessions.GetSession(r.Context(), token)
			if err != nil {
				logger.Errorf("auth middleware token=%s: %v", MaskToken(token), err)
				http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
				return
			}
			if userID == "" {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), UserIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("token")
}
