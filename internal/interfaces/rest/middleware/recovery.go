package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/DanielPopoola/x402-gateway/internal/application"
	"github.com/DanielPopoola/x402-gateway/internal/interfaces/rest"
	"github.com/DanielPopoola/x402-gateway/internal/metrics"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Recovery turns a handler panic into a 500 INTERNAL_ERROR. If the handler had
// already started its response, the status cannot change and only the log and
// counter record the panic. http.ErrAbortHandler is re-raised for net/http.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				recoverPanic(ww, r, rec, logger)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func recoverPanic(ww chimw.WrapResponseWriter, r *http.Request, rec any, logger *slog.Logger) {
	metrics.PanicsRecovered.Inc()

	started := ww.Status() != 0
	logger.ErrorContext(r.Context(), "handler panicked",
		slog.String("request_id", GetRequestID(r.Context())),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Bool("response_started", started),
		slog.Any("panic", rec),
		slog.String("stack", string(debug.Stack())),
	)
	if started {
		return
	}

	rest.WriteError(ww, application.NewInternalError(fmt.Errorf("handler panic: %v", rec)), logger)
}
