// Package metrics holds the prometheus collectors of the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the HTTP and repository collectors.
type Metrics struct {
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	repoOps      *prometheus.CounterVec
	ordersStored prometheus.Counter
}

// New registers the collectors on registerer. A nil registerer uses the
// prometheus default registry.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderflow_http_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		}, []string{"method", "route", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orderflow_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"method", "route"}),
		repoOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderflow_repository_operations_total",
			Help: "Total number of repository operations by result",
		}, []string{"op", "result"}),
		ordersStored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderflow_orders_created_total",
			Help: "Total number of orders created",
		}),
	}
	m.requests = register(registerer, m.requests)
	m.duration = register(registerer, m.duration)
	m.repoOps = register(registerer, m.repoOps)
	m.ordersStored = register(registerer, m.ordersStored)
	return m
}

// register returns the already registered collector on a duplicate
// registration so New can be called more than once per registry.
func register[C prometheus.Collector](registerer prometheus.Registerer, c C) C {
	if err := registerer.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

// ObserveRepository counts a repository operation outcome.
func (m *Metrics) ObserveRepository(op, result string) {
	m.repoOps.WithLabelValues(op, result).Inc()
	if op == "create" && result == "ok" {
		m.ordersStored.Inc()
	}
}

// Middleware records request counts and latency per mux route template.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if cr := mux.CurrentRoute(r); cr != nil {
			if tpl, err := cr.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
		m.duration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
