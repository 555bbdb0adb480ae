// Package middleware holds HTTP middleware for the bot's API.
package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/newthinker/upbot/internal/api/response"
	"github.com/newthinker/upbot/internal/core"
)

// ErrUnauthorized is returned for a missing or wrong API key.
var ErrUnauthorized = &core.Error{Code: "UNAUTHORIZED", Message: "missing or invalid api key"}

// APIKeyAuth returns middleware that validates the X-API-Key header or a
// bearer token. If apiKey is empty, authentication is disabled.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			providedKey := r.Header.Get("X-API-Key")
			if providedKey == "" {
				if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
					providedKey = strings.TrimSpace(token)
				}
			}

			// constant-time comparison
			if providedKey == "" || subtle.ConstantTimeCompare([]byte(providedKey), []byte(apiKey)) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="upbot"`)
				response.Error(w, http.StatusUnauthorized, ErrUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
