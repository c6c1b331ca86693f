package api

import (
	"net/http"
	"strings"

	"poleplan/internal/auth"
)

// getPrincipal extracts tenant and role from the bearer token, with a header
// fallback for dev setups.
func (s *Server) getPrincipal(r *http.Request) auth.Principal {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
		tok := strings.TrimSpace(authz[len("Bearer "):])
		if pr, err := s.Auth.Verify(tok); err == nil {
			return pr
		}
	}
	tenant := r.Header.Get("X-Tenant-Id")
	role := r.Header.Get("X-Role")
	if tenant == "" {
		tenant = "t_demo"
	}
	if role == "" {
		role = auth.RoleAdmin
	}
	return auth.Principal{Tenant: tenant, Role: strings.ToLower(role)}
}

// requireRole writes a problem response and returns false when the caller's
// role does not cover required.
func requireRole(w http.ResponseWriter, r *http.Request, p auth.Principal, required string) bool {
	if p.Allows(required) {
		return true
	}
	writeProblem(w, http.StatusForbidden, "Forbidden", required+" role required", r.URL.Path)
	return false
}
