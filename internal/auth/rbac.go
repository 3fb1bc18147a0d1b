package auth

import (
	"net/http"
)

type Permission string

const (
	PermPatientsDecrypt Permission = "patients:decrypt"
	PermPatientsReset   Permission = "patients:reset"
	PermPromptsEvolve   Permission = "prompts:evolve"
	PermWildcard        Permission = "*"
)

const (
	RoleAdmin     = "admin"
	RoleClinician = "clinician"
)

var rolePermissions = map[string][]Permission{
	RoleAdmin:     {PermWildcard},
	RoleClinician: {PermPatientsDecrypt},
}

// RequirePermission must run after Authenticate.
func RequirePermission(perm Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			claims := ClaimsFromContext(req.Context())
			if claims == nil {
				writeError(w, http.StatusForbidden, "no claims in context")
				return
			}
			if !HasPermission(claims.Role, perm) {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

func HasPermission(role string, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == PermWildcard || p == perm {
			return true
		}
	}
	return false
}
