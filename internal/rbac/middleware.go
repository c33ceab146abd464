package rbac

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// Require lets the request through when the caller's role holds perm under
// DefaultPolicy.
func Require(perm string) func(http.Handler) http.Handler {
	return DefaultPolicy.Require(perm)
}

func RequireAny(perms ...string) func(http.Handler) http.Handler {
	return DefaultPolicy.RequireAny(perms...)
}

func (p Policy) Require(perm string) func(http.Handler) http.Handler {
	return p.gate([]string{perm})
}

func (p Policy) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return p.gate(perms)
}

func (p Policy) gate(perms []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := RoleFromContext(r.Context())
			if role == "" || !p.AllowsAny(role, perms...) {
				slog.DebugContext(r.Context(), "permission denied", "role", role, "need", perms, "path", r.URL.Path)
				deny(w, perms)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func deny(w http.ResponseWriter, perms []string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusForbidden)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   "forbidden",
		"message": "requires " + strings.Join(perms, " or "),
	})
}
