// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health probes and graceful shutdown.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("organization_id", orgID).Info("Team properties assigned")
//
// Request-scoped loggers pick up request, user and organization IDs:
//
//	observability.FromContext(r.Context()).WithError(err).Error("permission check failed")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordDecision("lease", "read", true, "team_property", elapsed)
//
// All metric helpers are safe on a nil *Metrics.
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "leasehold",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
//
// Spans are started from observability.Tracer().
package observability
