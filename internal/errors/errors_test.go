// ABOUTME: Unit tests for standardized error response helpers.
// ABOUTME: Checks body shape, optional fields and headers.

package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decode(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   string
	}{
		{"not found", http.StatusNotFound, ErrNotFound},
		{"bad body", http.StatusBadRequest, ErrInvalidBody},
		{"configuration", http.StatusInternalServerError, ErrConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, tt.status, tt.code, "something went wrong")

			if w.Code != tt.status {
				t.Errorf("status = %d, want %d", w.Code, tt.status)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			resp := decode(t, w)
			if resp.Code != tt.code || resp.Status != tt.status || resp.Message != "something went wrong" {
				t.Errorf("unexpected body %+v", resp)
			}
			if resp.Field != "" || resp.Details != "" {
				t.Errorf("optional fields set: %+v", resp)
			}
		})
	}
}

func TestWriteErrorWithField(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorWithField(w, http.StatusBadRequest, ErrInvalidReportDate, "date must be YYYY-MM-DD", "date")

	resp := decode(t, w)
	if resp.Field != "date" || resp.Code != ErrInvalidReportDate {
		t.Errorf("unexpected body %+v", resp)
	}
}

func TestWriteErrorWithDetails(t *testing.T) {
	w := httptest.NewRecorder()
	WriteErrorWithDetails(w, http.StatusInternalServerError, ErrDatabaseError, "failed to load events", "database is locked")

	resp := decode(t, w)
	if resp.Details != "database is locked" || resp.Status != http.StatusInternalServerError {
		t.Errorf("unexpected body %+v", resp)
	}
}

func TestErrorResponse_OmitsEmptyOptionalFields(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusUnauthorized, ErrUnauthorized, "missing bearer token")

	var raw map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"field", "details"} {
		if _, ok := raw[key]; ok {
			t.Errorf("%s present in %v", key, raw)
		}
	}
}
