package service

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService owns the process's Prometheus registry. All observation
// methods are nil-receiver safe so callers never need to guard for a disabled
// metrics setup.
type MetricsService struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	admissionsTotal     *prometheus.CounterVec
	lockWaitDuration    *prometheus.HistogramVec
	waitlistDepth       *prometheus.GaugeVec
}

func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollment_http_requests_total",
			Help: "HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "enrollment_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		admissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollment_admissions_total",
			Help: "Admission decisions by outcome.",
		}, []string{"outcome"}),
		lockWaitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "enrollment_lock_wait_seconds",
			Help:    "Time spent waiting on course and student locks.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"scope"}),
		waitlistDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "enrollment_waitlist_depth",
			Help: "Current waitlist length per course.",
		}, []string{"course_code"}),
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.admissionsTotal,
		m.lockWaitDuration,
		m.waitlistDepth,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MetricsService) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

func (m *MetricsService) IncAdmission(outcome string) {
	if m == nil {
		return
	}
	m.admissionsTotal.WithLabelValues(outcome).Inc()
}

func (m *MetricsService) ObserveLockWait(scope string, duration time.Duration) {
	if m == nil {
		return
	}
	m.lockWaitDuration.WithLabelValues(scope).Observe(duration.Seconds())
}

func (m *MetricsService) SetWaitlistDepth(courseCode string, depth int) {
	if m == nil {
		return
	}
	m.waitlistDepth.WithLabelValues(courseCode).Set(float64(depth))
}
