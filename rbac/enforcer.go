package rbac

import (
	"net/http"

	"github.com/flightmap/tracker/httpx"
)

// RoleResolver extracts roles for the current request.
type RoleResolver func(r *http.Request) []Role

// Enforcer gates handlers on the permissions in RoleMatrix.
type Enforcer struct {
	resolve RoleResolver
}

// NewEnforcer constructs an enforcer with the provided resolver.
func NewEnforcer(resolver RoleResolver) *Enforcer {
	return &Enforcer{resolve: resolver}
}

// Allowed reports whether the caller holds permission.
func (e *Enforcer) Allowed(r *http.Request, permission Permission) bool {
	return hasIntersection(e.resolve(r), RoleMatrix[permission])
}

// Authorize rejects callers that resolve to no roles with 401 and callers
// lacking permission with 403.
func (e *Enforcer) Authorize(permission Permission) func(http.Handler) http.Handler {
	allowed := RoleMatrix[permission]
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			roles := e.resolve(r)
			switch {
			case len(roles) == 0:
				httpx.Error(w, http.StatusUnauthorized, "authentication required")
			case !hasIntersection(roles, allowed):
				httpx.Error(w, http.StatusForbidden, "operator role required")
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func hasIntersection(have, want []Role) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}
