// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health probes and graceful shutdown for tenantd.
//
// Logging is JSON via log/slog:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithTenant(tenantID, actorID).Info("member invited")
//
// Request-scoped loggers travel in the context and pick up trace ids:
//
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx, logger).Warn("invitation email failed")
//
// Engine metrics are registered on a caller-supplied registry and every
// observer is safe on a nil *Metrics:
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.ObserveOperation("update_role", "ok", start)
//
// Spans use the global tracer provider installed by InitOTel:
//
//	ctx, span := observability.StartSpan(ctx, "tenants.Invite")
//	defer func() { observability.EndSpan(span, err) }()
package observability
