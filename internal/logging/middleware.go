// ABOUTME: HTTP request audit logging middleware.
// ABOUTME: Records method, path, status, duration, operator and error code for every API call.

package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/2389/fieldops/internal/auth"
	"github.com/2389/fieldops/internal/store"
)

// maxErrorBody bounds how much of an error response is kept to read its code.
const maxErrorBody = 4 * 1024

// RequestLogger persists audit entries.
type RequestLogger interface {
	LogRequest(log *store.RequestLog) error
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
	body       *bytes.Buffer
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	// only error bodies are worth keeping
	if rw.statusCode >= 400 && rw.body.Len() < maxErrorBody {
		n := min(len(b), maxErrorBody-rw.body.Len())
		rw.body.Write(b[:n])
	}
	return rw.ResponseWriter.Write(b)
}

// Hijack hands the connection to a WebSocket upgrade; the request is logged
// as 101.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rw.statusCode = http.StatusSwitchingProtocols
	rw.written = true
	return h.Hijack()
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// errorCode pulls the "code" field out of a captured error response.
func (rw *responseWriter) errorCode() string {
	if rw.statusCode < 400 || rw.body.Len() == 0 {
		return ""
	}
	var resp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rw.body.Bytes(), &resp); err != nil {
		return http.StatusText(rw.statusCode)
	}
	return resp.Code
}

// Middleware logs every request except health checks. Writes happen off the
// request goroutine, and a failed write is dropped.
func Middleware(logger RequestLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/healthz" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				body:           &bytes.Buffer{},
			}

			next.ServeHTTP(wrapped, r)

			ip := r.RemoteAddr
			if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
				ip = strings.TrimSpace(strings.Split(forwarded, ",")[0])
			}

			entry := &store.RequestLog{
				Method:     r.Method,
				Path:       r.URL.Path,
				StatusCode: wrapped.statusCode,
				DurationMs: int(time.Since(start).Milliseconds()),
				UserID:     auth.OperatorFromContext(r.Context()),
				IPAddress:  ip,
				UserAgent:  r.Header.Get("User-Agent"),
				Error:      wrapped.errorCode(),
			}
			go logger.LogRequest(entry)
		})
	}
}
