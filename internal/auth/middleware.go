// ABOUTME: Operator identity middleware for the fieldops API.
// ABOUTME: Reads "Bearer operator:<name>" tokens into the request context and guards writes.

package auth

import (
	"context"
	"net/http"
	"strings"

	apierrors "github.com/2389/fieldops/internal/errors"
)

type contextKey string

const operatorContextKey contextKey = "operator"

// Anonymous is the operator recorded for requests without a usable token.
const Anonymous = "anonymous"

func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		operator := extractOperator(r.Header.Get("Authorization"))
		ctx := context.WithValue(r.Context(), operatorContextKey, operator)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireOperator rejects requests that did not identify an operator.
// It must run after Middleware.
func RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if OperatorFromContext(r.Context()) == Anonymous {
			apierrors.WriteError(w, http.StatusUnauthorized, apierrors.ErrUnauthorized,
				"this operation requires an operator token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func OperatorFromContext(ctx context.Context) string {
	operator, ok := ctx.Value(operatorContextKey).(string)
	if !ok || operator == "" {
		return Anonymous
	}
	return operator
}

func extractOperator(authHeader string) string {
	token, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok {
		return Anonymous
	}
	name, ok := strings.CutPrefix(strings.TrimSpace(token), "operator:")
	if !ok {
		return Anonymous
	}
	if name = strings.TrimSpace(name); name == "" {
		return Anonymous
	}
	return name
}
