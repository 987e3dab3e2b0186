package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// instruments lazily creates and caches the counter/histogram instruments
// RecordMetric dispatches to, keyed by metric name, since the OTel SDK
// wants one instrument object per distinct name rather than a free-form
// record call.
type instruments struct {
	meter      metric.Meter
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
}

func newInstruments(meter metric.Meter) (*instruments, error) {
	return &instruments{
		meter:      meter,
		counters:   make(map[string]metric.Float64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}, nil
}

func (i *instruments) recordCounter(ctx context.Context, name string, value float64, attrs []attribute.KeyValue) {
	c, ok := i.counters[name]
	if !ok {
		var err error
		c, err = i.meter.Float64Counter(name, metric.WithDescription(fmt.Sprintf("counter for %s", name)))
		if err != nil {
			return
		}
		i.counters[name] = c
	}
	c.Add(ctx, value, metric.WithAttributes(attrs...))
}

func (i *instruments) recordHistogram(ctx context.Context, name string, value float64, attrs []attribute.KeyValue) {
	h, ok := i.histograms[name]
	if !ok {
		var err error
		h, err = i.meter.Float64Histogram(name, metric.WithDescription(fmt.Sprintf("histogram for %s", name)))
		if err != nil {
			return
		}
		i.histograms[name] = h
	}
	h.Record(ctx, value, metric.WithAttributes(attrs...))
}
