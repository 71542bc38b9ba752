package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/tenantd/pkg/httputil"
	"github.com/platinummonkey/tenantd/pkg/middleware"
	"github.com/platinummonkey/tenantd/pkg/observability"
)

// DefaultMaxBodyBytes bounds request bodies; a full bulk batch fits comfortably
const DefaultMaxBodyBytes = 1 << 20

// ServerConfig holds the collaborators of the API server. Tenants, Bulk and
// Auth are required; the rest are optional.
type ServerConfig struct {
	Tenants *TenantHandlers
	Bulk    *BulkHandlers
	Auth    *middleware.AuthMiddleware

	Health   *observability.HealthChecker
	Metrics  *observability.Metrics
	Registry *prometheus.Registry
	Logger   *observability.Logger

	MaxBodyBytes int64
}

// Server represents our API server
type Server struct {
	router  *mux.Router
	handler http.Handler
}

// NewServer creates a new API server. Health and metrics endpoints are
// public; every tenant route requires a bearer token.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}

	s := &Server{router: mux.NewRouter()}
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusNotFound, "route not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteErrorMessage(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	if cfg.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(cfg.Metrics))
	}
	if cfg.Health != nil {
		observability.RegisterHealthRoutes(s.router, cfg.Health)
	}
	if cfg.Registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(cfg.Registry)).Methods("GET")
	}

	authed := s.router.NewRoute().Subrouter()
	authed.Use(cfg.Auth.Handler)
	// the bulk route goes first so /members/bulk never reaches /members/{user_id}
	var registrars []RouteRegistrar
	if cfg.Bulk != nil {
		registrars = append(registrars, cfg.Bulk)
	}
	registrars = append(registrars, cfg.Tenants)
	for _, registrar := range registrars {
		registrar.RegisterRoutes(authed)
	}

	s.handler = httputil.Chain(
		httputil.RequestIDMiddleware(logger),
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
		httputil.MaxBytesMiddleware(maxBody),
		httputil.ContentTypeMiddleware,
	)(s.router)
	return s
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// RouteRegistrar is an interface for types that can register routes
type RouteRegistrar interface {
	RegisterRoutes(router *mux.Router)
}
