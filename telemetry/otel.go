// Package telemetry wraps OpenTelemetry tracing and metrics behind a small
// interface that orchestrator.Orchestrator accepts optionally, so a caller
// that doesn't want telemetry never has to know the package exists.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// Span is the minimal span capability orchestration components need.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// Telemetry is the capability every optional telemetry collaborator field in
// this codebase accepts. A nil Telemetry is always valid: every call site
// guards it.
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	RecordMetric(name string, value float64, labels map[string]string)
}

// Provider implements Telemetry with OpenTelemetry, exporting spans to
// stdout (no collector dependency) and keeping metric instruments in
// process for local inspection.
type Provider struct {
	tracer        trace.Tracer
	meter         metric.Meter
	traceProvider *sdktrace.TracerProvider
	instruments   *instruments
	shutdownOnce  sync.Once
	mu            sync.RWMutex
	shutdown      bool
}

// NewProvider builds a Provider for serviceName, exporting spans to stdout
// in batches. Unlike a collector-backed exporter this never fails to reach
// a network endpoint, which is why it's the default here rather than
// otlptracehttp.
func NewProvider(serviceName string) (*Provider, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("telemetry: service name is required")
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("telemetry: failed to create stdout trace exporter: %w", err)
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String("1.0.0"),
	)

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter), sdktrace.WithResource(res))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	meter := mp.Meter("queryorchestrator")
	inst, err := newInstruments(meter)
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return nil, fmt.Errorf("telemetry: failed to create metric instruments: %w", err)
	}

	return &Provider{
		tracer:        tp.Tracer("queryorchestrator"),
		meter:         meter,
		traceProvider: tp,
		instruments:   inst,
	}, nil
}

// StartSpan starts a span named name under ctx's existing trace, if any.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	p.mu.RLock()
	down := p.shutdown
	p.mu.RUnlock()
	if down || p.tracer == nil {
		return ctx, noopSpan{}
	}
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, otelSpan{span: span}
}

// RecordMetric routes value to a counter or histogram instrument based on
// name, matching the heuristic the wider ecosystem uses for this ambient
// metrics API: timing-sounding names go to a histogram, everything else
// accumulates as a counter.
func (p *Provider) RecordMetric(name string, value float64, labels map[string]string) {
	p.mu.RLock()
	down := p.shutdown
	p.mu.RUnlock()
	if down || p.instruments == nil {
		return
	}

	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}

	ctx := context.Background()
	if isTimingMetric(name) {
		p.instruments.recordHistogram(ctx, name, value, attrs)
	} else {
		p.instruments.recordCounter(ctx, name, value, attrs)
	}
}

// Shutdown flushes pending spans and releases provider resources. Idempotent.
func (p *Provider) Shutdown(ctx context.Context) error {
	var err error
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.shutdown = true
		p.mu.Unlock()
		if p.traceProvider != nil {
			err = p.traceProvider.Shutdown(ctx)
		}
	})
	return err
}

func isTimingMetric(name string) bool {
	for _, suffix := range []string{"duration", "latency", "time", "_ms"} {
		if len(name) >= len(suffix) && name[len(name)-len(suffix):] == suffix {
			return true
		}
	}
	return false
}

type noopSpan struct{}

func (noopSpan) End()                             {}
func (noopSpan) SetAttribute(string, interface{}) {}
func (noopSpan) RecordError(error)                {}

type otelSpan struct{ span trace.Span }

func (s otelSpan) End() { s.span.End() }

func (s otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	case time.Duration:
		s.span.SetAttributes(attribute.Int64(key, v.Milliseconds()))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s otelSpan) RecordError(err error) { s.span.RecordError(err) }
