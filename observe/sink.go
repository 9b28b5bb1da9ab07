package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jonwraymond/bulwark/exec"
)

// Sink turns executor events into log lines, metric points, and span
// events. It implements exec.EventSink.
type Sink struct {
	logger      Logger
	tracer      trace.Tracer
	attempts    metric.Int64Counter
	errors      metric.Int64Counter
	duration    metric.Float64Histogram
	transitions metric.Int64Counter
}

// NewSink creates a sink backed by the observer's logger, meter, and tracer.
func NewSink(obs Observer) (*Sink, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}
	meter := obs.Meter()

	attempts, err := meter.Int64Counter(
		"call.attempts.total",
		metric.WithDescription("Total call attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	errorsC, err := meter.Int64Counter(
		"call.attempts.errors",
		metric.WithDescription("Failed call attempts"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"call.attempt.duration_ms",
		metric.WithDescription("Call attempt duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter(
		"call.breaker.transitions",
		metric.WithDescription("Circuit breaker state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	return &Sink{
		logger:      obs.Logger(),
		tracer:      obs.Tracer(),
		attempts:    attempts,
		errors:      errorsC,
		duration:    duration,
		transitions: transitions,
	}, nil
}

// Attempt records one attempt: a counter point, a duration sample, and one
// log line.
func (s *Sink) Attempt(ctx context.Context, ev exec.AttemptEvent) {
	attrs := []attribute.KeyValue{
		attribute.String("call.key", ev.Key),
	}
	if !ev.Success() {
		attrs = append(attrs, attribute.String("error.kind", ev.Kind.String()))
	}
	opt := metric.WithAttributes(attrs...)

	s.attempts.Add(ctx, 1, opt)
	if !ev.Success() {
		s.errors.Add(ctx, 1, opt)
	}
	s.duration.Record(ctx, float64(ev.Duration.Microseconds())/1000.0, opt)

	fields := []Field{
		F("key", ev.Key),
		F("attempt", ev.Attempt),
		F("duration_ms", ev.Duration.Milliseconds()),
	}
	if ev.Success() {
		s.logger.Info(ctx, "call attempt succeeded", fields...)
		return
	}
	fields = append(fields, F("error", ev.Err.Error()), F("kind", ev.Kind.String()))
	s.logger.Warn(ctx, "call attempt failed", fields...)
}

// Transition records one breaker state change: a counter point, a span
// event on any active span, and one log line.
func (s *Sink) Transition(ctx context.Context, ev exec.TransitionEvent) {
	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("call.key", ev.Key),
		attribute.String("from", ev.From.String()),
		attribute.String("to", ev.To.String()),
	))

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.AddEvent("breaker transition", trace.WithAttributes(
			attribute.String("call.key", ev.Key),
			attribute.String("from", ev.From.String()),
			attribute.String("to", ev.To.String()),
			attribute.String("reason", ev.Reason),
		))
	}

	s.logger.Warn(ctx, "breaker state changed",
		F("key", ev.Key),
		F("from", ev.From.String()),
		F("to", ev.To.String()),
		F("reason", ev.Reason),
	)
}

var _ exec.EventSink = (*Sink)(nil)
