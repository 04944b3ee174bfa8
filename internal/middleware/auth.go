package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dukerupert/pantry/internal/auth"
)

// SessionCookieName is the cookie that carries the session token for
// browser clients.
const SessionCookieName = "pantry_session"

// Authenticator turns a session token into the caller's identity.
type Authenticator interface {
	Authenticate(token string) (auth.AuthContext, error)
}

// RequireAuth validates the bearer token or session cookie and populates
// AuthContext.
func RequireAuth(a Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "sign in required")
				return
			}

			ac, err := a.Authenticate(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "session expired, please sign in again")
				return
			}

			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenFromRequest returns the Authorization bearer token, falling back to
// the session cookie.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if scheme, token, ok := strings.Cut(h, " "); ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
