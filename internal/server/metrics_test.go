package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/eugener/libris/internal/telemetry"
)

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	env := newTestEnv(t, func(d *Deps) {
		d.Metrics = telemetry.NewMetrics(reg)
		d.MetricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	})

	// Hit a normal endpoint first to generate metrics.
	if rec := env.do(http.MethodGet, "/api/authors", ""); rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d; body = %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	env.h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: status = %d; body = %s", rec.Code, rec.Body.String())
	}
	metricsBody := rec.Body.String()
	if !strings.Contains(metricsBody, "libris_requests_total") {
		t.Error("metrics should contain libris_requests_total")
	}
	if !strings.Contains(metricsBody, "libris_request_duration_seconds") {
		t.Error("metrics should contain libris_request_duration_seconds")
	}
}

func TestMetricsMiddleware_RoutePattern(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	env := newTestEnv(t, func(d *Deps) { d.Metrics = telemetry.NewMetrics(reg) })
	env.store.AddAuthor("Lem")

	for range 3 {
		env.do(http.MethodGet, "/api/authors/1", "")
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}

	found := false
	for _, f := range families {
		if f.GetName() != "libris_requests_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "path" && l.GetValue() == "/api/authors/{id}" {
					found = true
					if m.GetCounter().GetValue() < 3 {
						t.Errorf("requests_total for /api/authors/{id} = %f, want >= 3", m.GetCounter().GetValue())
					}
				}
			}
		}
	}
	if !found {
		t.Error("requests_total should be labelled with the route pattern")
	}
}

func TestStatusLabel(t *testing.T) {
	t.Parallel()
	for code, want := range map[int]string{200: "200", 404: "404", 599: "599", 99: "99", 600: "600"} {
		if got := statusLabel(code); got != want {
			t.Errorf("statusLabel(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestMetricsMiddleware_UnmatchedRoute(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := telemetry.NewMetrics(reg)
	env := newTestEnv(t, func(d *Deps) { d.Metrics = m })

	env.do(http.MethodGet, "/nope/1", "")
	env.do(http.MethodGet, "/nope/2", "")

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues(http.MethodGet, "unmatched", "404")); got != 2 {
		t.Errorf("unmatched 404s = %v, want 2", got)
	}
}
