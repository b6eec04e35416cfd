package auth

import (
	"net/http"
)

type Permission string

const (
	PermAnalysesRead  Permission = "analyses:read"
	PermAnalysesWrite Permission = "analyses:write"
	PermWildcard      Permission = "*"
)

const (
	RoleAdmin  = "admin"
	RoleGrader = "grader"
	RoleViewer = "viewer"
)

var rolePermissions = map[string][]Permission{
	RoleAdmin:  {PermWildcard},
	RoleGrader: {PermAnalysesRead, PermAnalysesWrite},
	RoleViewer: {PermAnalysesRead},
}

// HasPermission reports whether role grants perm.
func HasPermission(role string, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == PermWildcard || p == perm {
			return true
		}
	}
	return false
}

// RequirePermission must run after Authenticate.
func RequirePermission(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				writeError(w, http.StatusForbidden, "no claims in context")
				return
			}
			if !HasPermission(claims.Role, perm) {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
