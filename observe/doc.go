// Package observe provides the telemetry surface for resilient call
// execution: a structured logger, OpenTelemetry tracing and metrics, and
// an event sink that turns executor attempt and breaker transition events
// into log lines, metric points, and span events.
//
// The Observer facade owns provider lifecycle:
//
//	obs, err := observe.NewObserver(ctx, observe.Config{
//	    ServiceName: "payments-gateway",
//	    Metrics:     observe.MetricsConfig{Enabled: true, Exporter: "prometheus"},
//	    Logging:     observe.LoggingConfig{Enabled: true, Level: "info"},
//	})
//	defer obs.Shutdown(ctx)
//
//	sink, err := observe.NewSink(obs)
//	e := exec.New(reg, exec.WithEventSink(sink))
//
// Disabled subsystems fall back to no-op providers, so callers never
// branch on configuration.
package observe
