package platform

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func roleProbe(allowed ...string) http.Handler {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return RequireRole(allowed...)(ok)
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		role    string
		want    int
	}{
		{"missing header", []string{RoleAdmin}, "", http.StatusUnauthorized},
		{"permitted role", []string{RoleAdmin, RoleFinance}, RoleFinance, http.StatusNoContent},
		{"rejected role", []string{RoleAdmin}, RoleViewer, http.StatusForbidden},
		{"any role when unrestricted", nil, RoleViewer, http.StatusNoContent},
		{"unrestricted still needs a role", nil, "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.role != "" {
				req.Header.Set(RoleHeader, tt.role)
			}
			rec := httptest.NewRecorder()
			roleProbe(tt.allowed...).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
