// Package server wires the resource server's HTTP routes and optional gRPC health listener.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"coffee-shop-demo/internal/health"
	healthhandler "coffee-shop-demo/internal/health/handler"
	"coffee-shop-demo/internal/logging"
	"coffee-shop-demo/internal/security"
	"coffee-shop-demo/internal/server/middleware"
	"coffee-shop-demo/internal/telemetry"
	trialhandler "coffee-shop-demo/internal/trialdetails/handler"
)

// PublicPrefixes are reachable without a bearer token.
var PublicPrefixes = []string{"/actuator/"}

// Deps holds the resource server's collaborators.
type Deps struct {
	// Validator checks bearer tokens. Required.
	Validator security.Validator
	// Sampler produces TrialDetails. Required.
	Sampler trialhandler.Sampler
	// Health aggregates readiness checks. If nil, /actuator/health always reports UP.
	Health *health.Service
	// Registry backs /actuator/prometheus. If nil, a private registry is created.
	Registry *prometheus.Registry
	// Emitter receives auth rejection events. May be nil.
	Emitter telemetry.EventEmitter
	Log     zerolog.Logger
	// ServiceName and Version are reported by /actuator/info.
	ServiceName string
	Version     string
}

// NewRouter returns the resource server handler.
//
// Routes:
//   - GET /trialDetails          → internal/trialdetails/handler (bearer token required)
//   - GET /actuator/health       → internal/health/handler
//   - GET /actuator/info         → internal/health/handler
//   - GET /actuator/prometheus   → promhttp
//
// Every other path requires a token too, so unauthenticated callers get 401 before 404.
func NewRouter(d Deps) http.Handler {
	if d.Health == nil {
		d.Health = health.NewService()
	}
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}
	metrics := middleware.NewMetrics(d.Registry, "resourceserver")
	actuator := healthhandler.NewActuator(d.Health, d.ServiceName, d.Version)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(logging.RequestLogger(d.Log))
	r.Use(metrics.Handler)
	r.Use(middleware.Auth(d.Validator, PublicPrefixes, d.Emitter, d.Log))

	// A fresh handler per request; it holds no state between calls.
	trialDetails := func(w http.ResponseWriter, r *http.Request) {
		trialhandler.New(d.Sampler, d.Log).ServeHTTP(w, r)
	}
	r.Get("/trialDetails", trialDetails)
	r.Head("/trialDetails", trialDetails)

	r.Route("/actuator", func(r chi.Router) {
		r.Get("/health", actuator.Health)
		r.Get("/info", actuator.Info)
		r.Method(http.MethodGet, "/prometheus", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))
	})

	return otelhttp.NewHandler(r, "resourceserver",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
