package api

import (
	"net/http"
	"strings"

	"droc/internal/auth"
)

const defaultTenant = "default"

// getPrincipal extracts tenant and role from the bearer token. In dev mode a
// request without a token falls back to the X-Tenant-Id and X-Role headers.
func (s *Server) getPrincipal(r *http.Request) (auth.Principal, bool) {
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		pr, err := s.Auth.Verify(strings.TrimSpace(authz[len("Bearer "):]))
		if err != nil {
			return auth.Principal{}, false
		}
		return pr, true
	}
	if s.Auth.Mode != "dev" {
		return auth.Principal{}, false
	}
	tenant := r.Header.Get("X-Tenant-Id")
	if tenant == "" {
		tenant = defaultTenant
	}
	role := strings.ToLower(r.Header.Get("X-Role"))
	if role == "" {
		role = auth.RoleAdmin
	}
	return auth.Principal{Tenant: tenant, Role: role}, true
}

// principal writes 401 and reports false when the caller is not authenticated.
func (s *Server) principal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := s.getPrincipal(r)
	if !ok {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", "missing or invalid bearer token", r.URL.Path)
	}
	return p, ok
}

// admin is principal plus the admin role check.
func (s *Server) admin(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, ok := s.principal(w, r)
	if !ok {
		return p, false
	}
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return p, false
	}
	return p, true
}
