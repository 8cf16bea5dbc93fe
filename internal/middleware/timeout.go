package middleware

import (
	"net/http"
	"time"
)

const defaultRequestTimeout = 30 * time.Second

// Timeout bounds handler time. A request that overruns gets 503 with a
// REQUEST_TIMEOUT envelope, and the handler's context is cancelled.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	body := mustMarshalEnvelope("REQUEST_TIMEOUT", "request timed out")

	return func(next http.Handler) http.Handler {
		bounded := http.TimeoutHandler(next, timeout, body)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Handler headers replace this on the normal path; the timeout path keeps it.
			w.Header().Set("Content-Type", "application/json")
			bounded.ServeHTTP(w, r)
		})
	}
}
