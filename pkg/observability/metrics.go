package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthzDecisionsTotal *prometheus.CounterVec

	// Membership lifecycle metrics
	MembershipOperationsTotal   *prometheus.CounterVec
	MembershipOperationDuration *prometheus.HistogramVec

	// Provisioning metrics
	ProvisioningRecordsTotal  *prometheus.CounterVec
	ProvisioningBatchDuration prometheus.Histogram
	CompensationsTotal        *prometheus.CounterVec

	// Identity provider metrics
	IdentityRequestsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantd_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_authz_decisions_total",
				Help: "Total number of authorization decisions",
			},
			[]string{"decision", "source"},
		),

		MembershipOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_membership_operations_total",
				Help: "Total number of membership lifecycle operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		MembershipOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tenantd_membership_operation_duration_seconds",
				Help:    "Membership lifecycle operation duration in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"operation"},
		),

		ProvisioningRecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_provisioning_records_total",
				Help: "Total number of bulk provisioning records by action and status",
			},
			[]string{"action", "status"},
		),
		ProvisioningBatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tenantd_provisioning_batch_duration_seconds",
				Help:    "Bulk provisioning batch duration in seconds",
				Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		CompensationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_identity_compensations_total",
				Help: "Total number of compensating identity deletions",
			},
			[]string{"status"},
		),

		IdentityRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tenantd_identity_requests_total",
				Help: "Total number of identity provider calls",
			},
			[]string{"operation", "status"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.MembershipOperationsTotal,
		m.MembershipOperationDuration,
		m.ProvisioningRecordsTotal,
		m.ProvisioningBatchDuration,
		m.CompensationsTotal,
		m.IdentityRequestsTotal,
	)

	return m
}

// ObserveAuthz records an authorization decision. Safe on a nil receiver.
func (m *Metrics) ObserveAuthz(allowed bool, source string) {
	if m == nil {
		return
	}
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	m.AuthzDecisionsTotal.WithLabelValues(decision, source).Inc()
}

// ObserveOperation records a lifecycle operation outcome and latency. Safe on a nil receiver.
func (m *Metrics) ObserveOperation(operation, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.MembershipOperationsTotal.WithLabelValues(operation, outcome).Inc()
	m.MembershipOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveProvisionedRecord records one bulk record result. Safe on a nil receiver.
func (m *Metrics) ObserveProvisionedRecord(action string, success bool) {
	if m == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	m.ProvisioningRecordsTotal.WithLabelValues(action, status).Inc()
}

// ObserveBatch records the duration of one bulk batch. Safe on a nil receiver.
func (m *Metrics) ObserveBatch(start time.Time) {
	if m == nil {
		return
	}
	m.ProvisioningBatchDuration.Observe(time.Since(start).Seconds())
}

// ObserveCompensation records a compensating deletion attempt. Safe on a nil receiver.
func (m *Metrics) ObserveCompensation(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.CompensationsTotal.WithLabelValues(status).Inc()
}

// ObserveIdentityCall records an identity provider call. Safe on a nil receiver.
func (m *Metrics) ObserveIdentityCall(operation string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.IdentityRequestsTotal.WithLabelValues(operation, status).Inc()
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests, labelling them by route template
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := "unmatched"
			if current := mux.CurrentRoute(r); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					route = tpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
