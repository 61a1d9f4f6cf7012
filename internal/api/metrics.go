package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/btasdelen/arrview/pkg/visualization"
)

// Metrics holds the Prometheus collectors of one router. Each instance has its
// own registry so routers in tests do not collide.
type Metrics struct {
	registry *prometheus.Registry

	httpDuration    *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
	sessionsCreated prometheus.Counter
	framesRendered  prometheus.Counter
}

// NewMetrics registers the collectors and, when host is non-nil, hooks session
// creation and the open-session gauge to it.
func NewMetrics(host *visualization.Host) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "arrview_http_response_time_seconds",
			Help: "Duration of HTTP requests.",
		}, []string{"route"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "arrview_http_requests_total",
			Help: "Number of HTTP requests.",
		}, []string{"route", "method"}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arrview_sessions_created_total",
			Help: "Number of viewer sessions created.",
		}),
		framesRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "arrview_frames_rendered_total",
			Help: "Number of frames served as PNG.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		m.httpDuration,
		m.httpRequests,
		m.sessionsCreated,
		m.framesRendered,
	)

	if host != nil {
		host.OnCreate(func(*visualization.Viewer) { m.sessionsCreated.Inc() })
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "arrview_sessions_open",
			Help: "Number of open viewer sessions.",
		}, func() float64 { return float64(host.Len()) }))
	}
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and durations by route pattern, so that
// session IDs do not become label values.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		m.httpRequests.WithLabelValues(route, r.Method).Inc()
	})
}
