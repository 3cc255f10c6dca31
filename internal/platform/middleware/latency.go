package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"rdapd/internal/platform/metrics"
)

// Latency records duration and in-flight metrics per request. Routes are
// labelled by their chi pattern, not the raw path, to keep cardinality
// bounded.
func Latency(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			done := m.TrackInFlight()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(rec, r)
			done()

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				route = rctx.RoutePattern()
			}
			m.ObserveRequest(route, r.Method, rec.status, start)
		})
	}
}
