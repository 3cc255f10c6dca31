// Package middleware holds the HTTP middleware chain: request identity,
// client metadata, panic recovery, request logging, and per-request
// timeouts. Values middleware extracts are published through
// pkg/requestcontext so handlers and services stay free of HTTP types.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"rdapd/pkg/requestcontext"
)

// HeaderRequestID carries the request ID on both requests and responses.
const HeaderRequestID = "X-Request-ID"

// RequestID assigns each request an ID and echoes it on the response. An
// inbound X-Request-ID is honored so IDs stay stable across proxies.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, reqID)

		ctx := requestcontext.WithRequestID(r.Context(), reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
