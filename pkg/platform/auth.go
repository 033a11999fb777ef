package platform

import "net/http"

// RoleHeader carries the caller's resolved role. In production the API sits
// behind a gateway that validates the identity token and forwards the group
// claim in this header.
const RoleHeader = "X-User-Role"

// Roles recognized by the service.
const (
	RoleAdmin   = "admin"
	RoleFinance = "finance"
	RolePM      = "pm"
	RoleViewer  = "viewer"
)

// RequireRole returns middleware that rejects requests whose role header is
// not in the allowed set. An empty allowed set means any authenticated role.
func RequireRole(allowed ...string) func(http.Handler) http.Handler {
	permitted := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		permitted[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := r.Header.Get(RoleHeader)
			if role == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if len(permitted) > 0 {
				if _, ok := permitted[role]; !ok {
					http.Error(w, "Forbidden", http.StatusForbidden)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
