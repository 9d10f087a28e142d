package middleware

import (
	"net/http"
	"strings"

	"github.com/kiranshivaraju/labubify/internal/api/response"
	"golang.org/x/crypto/bcrypt"
)

// Auth guards operator endpoints with a single admin token. Only its bcrypt
// hash is configured; an empty hash rejects every request.
type Auth struct {
	tokenHash []byte
}

// NewAuth creates a new Auth middleware from a bcrypt hash.
func NewAuth(tokenHash string) *Auth {
	return &Auth{tokenHash: []byte(strings.TrimSpace(tokenHash))}
}

// RequireAdmin validates the Bearer token against the configured hash.
func (a *Auth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractBearerToken(r)
		if raw == "" {
			response.Error(w, http.StatusUnauthorized, "Missing or invalid Authorization header")
			return
		}
		if len(a.tokenHash) == 0 || bcrypt.CompareHashAndPassword(a.tokenHash, []byte(raw)) != nil {
			response.Error(w, http.StatusUnauthorized, "Invalid admin token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
