package api

import (
	"net/http"
	"runtime/debug"

	"github.com/gorilla/mux"

	"github.com/nidscan/nid-ocr-service/internal/logging"
)

// securityHeaders are set on every response
var securityHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"X-XSS-Protection":          "1; mode=block",
	"Content-Security-Policy":   "default-src 'self'",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Cache-Control":             "no-store, no-cache",
}

// SecurityHeaders adds the security headers before the wrapped handler runs
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range securityHeaders {
			w.Header().Set(k, v)
		}
		next.ServeHTTP(w, r)
	})
}

// Recoverer turns a handler panic into a JSON 500
func Recoverer(logger *logging.Logger) mux.MiddlewareFunc {
	if logger == nil {
		logger = logging.Discard()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("Handler panic", "path", r.URL.Path, "panic", rec, "stack", string(debug.Stack()))
					sendError(w, http.StatusInternalServerError, "Internal server error", "", "")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
