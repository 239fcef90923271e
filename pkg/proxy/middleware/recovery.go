package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"mercator-hq/passthrough/pkg/proxy/types"
)

// Recovery turns a handler panic into a 500 error envelope. The stack is
// logged; clients only see a generic message. http.ErrAbortHandler is
// re-panicked so the server aborts the connection as intended.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if p == http.ErrAbortHandler {
					panic(p)
				}
				logger.ErrorContext(r.Context(), "panic in handler",
					"panic", p,
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)
				types.WriteError(w, types.NewErrorResponse(http.StatusInternalServerError,
					"an internal error occurred", types.ErrorTypeServerError, ""))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
