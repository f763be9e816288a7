// ABOUTME: Tests for operator identity middleware.
// ABOUTME: Verifies token parsing and the write guard.

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware_ExtractsOperator(t *testing.T) {
	tests := []struct {
		name         string
		authHeader   string
		wantOperator string
	}{
		{"operator token", "Bearer operator:dispatch", "dispatch"},
		{"padded name", "Bearer operator: foreman ", "foreman"},
		{"no header", "", Anonymous},
		{"empty bearer", "Bearer ", Anonymous},
		{"empty operator", "Bearer operator:", Anonymous},
		{"opaque token", "Bearer ya29.a0AfH6SMC", Anonymous},
		{"basic auth", "Basic ZGlzcGF0Y2g6c2VjcmV0", Anonymous},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = OperatorFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/reports/daily/2025-10-06", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.wantOperator {
				t.Errorf("OperatorFromContext() = %q, want %q", got, tt.wantOperator)
			}
		})
	}
}

func TestRequireOperator(t *testing.T) {
	handler := Middleware(RequireOperator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	req := httptest.NewRequest(http.MethodDelete, "/calendar/v1/calendars/site/events/evt_1", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("anonymous status = %d, want 401", w.Code)
	}

	req.Header.Set("Authorization", "Bearer operator:foreman")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Errorf("operator status = %d, want 204", w.Code)
	}
}
