// Package api exposes the order repository over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
	gootel "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	_ "orderflow/docs"
	"orderflow/pkg/logger"
	"orderflow/pkg/metrics"
	"orderflow/pkg/order"
	"orderflow/pkg/otel"
	"orderflow/pkg/session"
)

// SessionStore opens login sessions.
type SessionStore interface {
	Create(ctx context.Context, user string) (string, error)
	TTL() time.Duration
}

// Config wires the router's collaborators.
type Config struct {
	Repo     order.Repository
	Log      *logger.Logger
	Resolver session.Resolver

	// Optional.
	Sessions SessionStore
	Tracer   trace.Tracer
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Counter  func() int
	Version  string
	Timeout  time.Duration
}

type handlers struct {
	repo     order.Repository
	log      *logger.Logger
	resolver session.Resolver
	sessions SessionStore
	tracer   trace.Tracer
	counter  func() int
	version  string
	timeout  time.Duration
}

// @title OrderFlow API
// @version 1.0
// @description API for managing orders
// @host localhost:8443
// @BasePath /

// NewRouter builds the HTTP handler of the service.
func NewRouter(cfg Config) http.Handler {
	h := &handlers{
		repo:     cfg.Repo,
		log:      cfg.Log,
		resolver: cfg.Resolver,
		sessions: cfg.Sessions,
		tracer:   cfg.Tracer,
		counter:  cfg.Counter,
		version:  cfg.Version,
		timeout:  cfg.Timeout,
	}
	if h.tracer == nil {
		h.tracer = noop.NewTracerProvider().Tracer("orderflow")
	}
	if h.timeout <= 0 {
		h.timeout = 5 * time.Second
	}

	r := mux.NewRouter()
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(h.traceMiddleware, h.timeoutMiddleware)

	r.HandleFunc("/", h.root).Methods(http.MethodGet)
	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	if h.sessions != nil {
		r.HandleFunc("/login", h.login).Methods(http.MethodPost)
	}

	api := r.PathPrefix("/orders").Subrouter()
	api.Use(h.authMiddleware)
	api.HandleFunc("", h.createOrder).Methods(http.MethodPost)
	api.HandleFunc("", h.listOrders).Methods(http.MethodGet)
	api.HandleFunc("/{id}", h.getOrder).Methods(http.MethodGet)
	api.HandleFunc("/{id}/item", h.addItem).Methods(http.MethodPost)
	api.HandleFunc("/{id}/item/{index}", h.deleteItem).Methods(http.MethodDelete)

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	r.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)
	r.NotFoundHandler = http.HandlerFunc(h.fallback)

	return r
}

// traceMiddleware starts a server span per request, continuing any trace
// propagated by the caller.
func (h *handlers) traceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := gootel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx = otel.InjectTracing(ctx, h.tracer)

		name := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				name = tpl
			}
		}
		ctx, span := otel.AddSpan(ctx, r.Method+" "+name, attribute.String("http.method", r.Method))
		defer span.End()

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// timeoutMiddleware bounds the request context. Handlers answer 408 when the
// deadline passes before the repository returns.
func (h *handlers) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authMiddleware resolves the principal of the request.
func (h *handlers) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := h.resolver.Principal(r)
		if err != nil {
			if !errors.Is(err, session.ErrNoSession) {
				h.log.Error(r.Context(), "resolve principal", "error", err)
			}
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(session.WithPrincipal(r.Context(), user)))
	})
}

func (h *handlers) fallback(w http.ResponseWriter, r *http.Request) {
	h.log.Error(r.Context(), "no route", "uri", r.URL.String())
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("No route for " + r.URL.String()))
}

func (h *handlers) span(r *http.Request, name string) (context.Context, trace.Span) {
	return otel.AddSpan(r.Context(), name)
}
