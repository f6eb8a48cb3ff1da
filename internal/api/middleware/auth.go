package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/apihub/internal/api/response"
)

// AdminAuth guards management routes with a static bearer token.
// With an empty token every request passes.
type AdminAuth struct {
	token string
}

func NewAdminAuth(token string) *AdminAuth {
	return &AdminAuth{token: token}
}

func (a *AdminAuth) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a == nil || a.token == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearerToken(r)
		if token == "" {
			response.Error(w, http.StatusUnauthorized,
				"Admin token required", "Include Authorization: Bearer <token>", nil)
			return
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(a.token)) != 1 {
			response.Error(w, http.StatusUnauthorized, "Invalid admin token", "", nil)
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
