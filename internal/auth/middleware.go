package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/backend-fruver/internal/common"
)

// Middleware wires authentication context into HTTP handlers.
type Middleware struct {
	Verifier *Verifier
}

// Authenticate attaches the caller identity when a valid token is present.
// Requests without a token continue anonymously. Invalid tokens are rejected.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" || m.Verifier == nil {
			next.ServeHTTP(w, r)
			return
		}
		id, err := m.Verifier.Verify(token)
		if err != nil {
			common.WriteError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(common.WithIdentity(r.Context(), id)))
	})
}

// RequireAuth enforces that an identity was attached by Authenticate.
func (m Middleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := common.IdentityFrom(r.Context()); !ok {
			common.WriteError(w, unauthorized("missing or invalid token", errors.New("auth: token missing")))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin restricts the route to back-office accounts.
func (m Middleware) RequireAdmin(next http.Handler) http.Handler {
	return m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := common.IdentityFrom(r.Context())
		if !id.IsAdmin() {
			common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "admin access required", nil)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
