// Package api implements the HTTP surface of the fleet optimizer.
package api

import "net/http"

type Principal struct {
	Tenant string
	Role   string // admin, planner, viewer
}

// getPrincipal extracts tenant and role from headers. The service runs
// inside a trusted network; there is no token verification layer.
func (s *Server) getPrincipal(r *http.Request) Principal {
	tenant := r.Header.Get("X-Tenant-Id")
	role := r.Header.Get("X-Role")
	if tenant == "" {
		tenant = "t_demo"
	}
	if role == "" {
		role = "admin"
	}
	return Principal{Tenant: tenant, Role: role}
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// CanPlan reports whether the principal may create or cancel runs.
func (p Principal) CanPlan() bool { return p.Role == "admin" || p.Role == "planner" }
