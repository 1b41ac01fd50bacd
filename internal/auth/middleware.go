package auth

import (
	"net/http"
	"strings"
)

// Verifier checks a presented API key.
type Verifier interface {
	Verify(key string) error
}

// BearerAuth returns an HTTP middleware that requires an
// "Authorization: Bearer <key>" header accepted by v.
func BearerAuth(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "authorization header required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				unauthorized(w, "invalid authorization format, expected Bearer <token>")
				return
			}

			apiKey := strings.TrimSpace(parts[1])
			if apiKey == "" {
				unauthorized(w, "empty API key")
				return
			}

			if err := v.Verify(apiKey); err != nil {
				unauthorized(w, "invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
