package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eugener/libris/internal/telemetry"
)

// statusLabels holds the label for every valid status code so the hot path
// never formats integers.
var statusLabels = func() []string {
	l := make([]string, 600)
	for code := 100; code < len(l); code++ {
		l[code] = strconv.Itoa(code)
	}
	return l
}()

func statusLabel(code int) string {
	if code >= 100 && code < len(statusLabels) {
		return statusLabels[code]
	}
	return strconv.Itoa(code)
}

// instrument feeds request count, latency and in-flight gauge. Requests are
// labelled by chi route pattern; anything that matched no route shares one
// label so unknown paths cannot blow up cardinality.
func instrument(m *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.ActiveRequests.Inc()
			defer m.ActiveRequests.Dec()

			start := time.Now()
			sw := acquireStatusWriter(w)
			defer releaseStatusWriter(sw)

			next.ServeHTTP(sw, r)

			route := routeLabel(r)
			m.RequestsTotal.WithLabelValues(r.Method, route, statusLabel(sw.status)).Inc()
			m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

func routeLabel(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
