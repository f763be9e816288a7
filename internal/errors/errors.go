// ABOUTME: Standardized JSON error responses for HTTP handlers.
// ABOUTME: Every non-2xx response from the API uses the same body shape.

package errors

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every error response.
//
//	{"code":"invalid_report_date","message":"...","status":400,"field":"date"}
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

func WriteError(w http.ResponseWriter, status int, code, message string) {
	writeErrorResponse(w, ErrorResponse{Code: code, Message: message, Status: status})
}

// WriteErrorWithField names the request field that failed validation.
func WriteErrorWithField(w http.ResponseWriter, status int, code, message, field string) {
	writeErrorResponse(w, ErrorResponse{Code: code, Message: message, Status: status, Field: field})
}

// WriteErrorWithDetails adds the underlying cause for operators.
func WriteErrorWithDetails(w http.ResponseWriter, status int, code, message, details string) {
	writeErrorResponse(w, ErrorResponse{Code: code, Message: message, Status: status, Details: details})
}

func writeErrorResponse(w http.ResponseWriter, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	json.NewEncoder(w).Encode(resp)
}

// Error codes
const (
	// 4xx
	ErrInvalidRequest    = "invalid_request"
	ErrInvalidBody       = "invalid_request_body"
	ErrMissingField      = "missing_field"
	ErrValidationFailed  = "validation_failed"
	ErrInvalidReportDate = "invalid_report_date"
	ErrInvalidReportMode = "invalid_report_mode"
	ErrInvalidEventRange = "invalid_event_range"
	ErrInvalidPageToken  = "invalid_page_token"
	ErrNotFound          = "not_found"
	ErrUnauthorized      = "unauthorized"

	// 5xx
	ErrInternal      = "internal_error"
	ErrConfiguration = "configuration_error"
	ErrDatabaseError = "database_error"
)
