package middleware

import (
	"context"
	"net/http"
	"time"
)

const timeoutBody = `{"error":"Service unavailable","code":"TIMEOUT","message":"Request timeout"}`

// Timeout bounds the request with a deadline and answers 503 when it fires.
// rest.WriteError maps context.DeadlineExceeded to the same status and title.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			r = r.WithContext(ctx)

			timeoutHandler := http.TimeoutHandler(next, timeout, timeoutBody)

			timeoutHandler.ServeHTTP(w, r)
		})
	}
}
