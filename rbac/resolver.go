package rbac

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// TokenResolver grants viewer access to anonymous callers and operator access
// to callers presenting operatorToken as a bearer token. A caller presenting
// any other token resolves to no roles. An empty operatorToken disables the
// check and every caller is an operator.
func TokenResolver(operatorToken string) RoleResolver {
	return func(r *http.Request) []Role {
		if operatorToken == "" {
			return []Role{RoleViewer, RoleOperator}
		}

		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			return []Role{RoleViewer}
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return nil
		}
		if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(operatorToken)) == 1 {
			return []Role{RoleViewer, RoleOperator}
		}
		return nil
	}
}
