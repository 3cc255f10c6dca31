package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"rdapd/pkg/requestcontext"
)

// Recovery turns handler panics into 500 responses instead of dropped
// connections. The stack is logged, never sent to the client.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					ctx := r.Context()
					logger.ErrorContext(ctx, "panic serving request",
						"request_id", requestcontext.RequestID(ctx),
						"method", r.Method,
						"path", r.URL.Path,
						"panic", rec,
						"stack", string(debug.Stack()),
					)
					w.Header().Set("Content-Type", "application/rdap+json")
					w.WriteHeader(http.StatusInternalServerError)
					if _, err := w.Write([]byte(`{"rdapConformance":["rdap_level_0"],"errorCode":500,"title":"Internal Error"}`)); err != nil {
						logger.ErrorContext(ctx, "failed to write error response",
							"request_id", requestcontext.RequestID(ctx),
							"error", err,
						)
					}
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
