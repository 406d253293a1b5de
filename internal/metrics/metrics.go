// Package metrics exposes Prometheus metrics for the composite service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stac_composite"

// Label names
const (
	LabelMethod  = "method"
	LabelRoute   = "route"
	LabelStatus  = "status"
	LabelKind    = "kind"
	LabelOutcome = "outcome"
	LabelService = "service"
	LabelOp      = "op"
)

// Outcome label values
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Metrics holds the service collectors and the registry they are served from.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	compositeRuns     *prometheus.CounterVec
	compositeDuration *prometheus.HistogramVec
	compositeRecords  *prometheus.HistogramVec

	serviceCalls    *prometheus.CounterVec
	serviceDuration *prometheus.HistogramVec
}

// New creates the service metrics on a fresh registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{LabelMethod, LabelRoute, LabelStatus}),

		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{LabelMethod, LabelRoute}),

		compositeRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compositor",
			Name:      "runs_total",
			Help:      "Total number of moving-window composite runs",
		}, []string{LabelKind, LabelOutcome}),

		compositeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "compositor",
			Name:      "run_duration_seconds",
			Help:      "Composite run latency, fetch included",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{LabelKind}),

		compositeRecords: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "compositor",
			Name:      "records",
			Help:      "Number of composites produced per run",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{LabelKind}),

		serviceCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collection_service",
			Name:      "calls_total",
			Help:      "Total number of collection service calls",
		}, []string{LabelService, LabelOp, LabelOutcome}),

		serviceDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "collection_service",
			Name:      "call_duration_seconds",
			Help:      "Collection service call latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{LabelService, LabelOp}),
	}
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Middleware records request counts and latency labeled by chi route pattern,
// so path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// ObserveComposite records one composite run of the given kind.
func (m *Metrics) ObserveComposite(kind string, start time.Time, produced int, err error) {
	m.compositeRuns.WithLabelValues(kind, outcome(err)).Inc()
	m.compositeDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err == nil {
		m.compositeRecords.WithLabelValues(kind).Observe(float64(produced))
	}
}

func (m *Metrics) observeCall(service, op string, start time.Time, err error) {
	m.serviceCalls.WithLabelValues(service, op, outcome(err)).Inc()
	m.serviceDuration.WithLabelValues(service, op).Observe(time.Since(start).Seconds())
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
