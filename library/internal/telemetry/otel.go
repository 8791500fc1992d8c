package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const eventsCounterName = "library_events_total"

// OTel maps the Recorder calls onto OpenTelemetry instruments:
// durations to Float64Histogram (ms), counters and events to Int64Counter,
// events additionally to span events on the span carried by ctx.
type OTel struct {
	meter  metric.Meter
	tracer trace.Tracer
	log    *zap.Logger

	mu         sync.Mutex
	histograms map[string]metric.Float64Histogram
	counters   map[string]metric.Int64Counter
}

func NewOTel(meter metric.Meter, tracer trace.Tracer, log *zap.Logger) *OTel {
	return &OTel{
		meter:      meter,
		tracer:     tracer,
		log:        log.Named("telemetry"),
		histograms: make(map[string]metric.Float64Histogram),
		counters:   make(map[string]metric.Int64Counter),
	}
}

var _ Recorder = (*OTel)(nil)

func (o *OTel) RecordEvent(ctx context.Context, name string, attrs map[string]string) {
	defer o.swallow("RecordEvent")
	kvs := toAttributes(attrs)
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(kvs...))

	if c := o.counter(eventsCounterName); c != nil {
		c.Add(ctx, 1, metric.WithAttributes(append(kvs, attribute.String("event", name))...))
	}
}

func (o *OTel) RecordDuration(ctx context.Context, histogram string, ms float64) {
	defer o.swallow("RecordDuration")
	if h := o.histogram(histogram); h != nil {
		h.Record(ctx, ms)
	}
}

func (o *OTel) IncrementCounter(ctx context.Context, counter string, attrs map[string]string) {
	defer o.swallow("IncrementCounter")
	if c := o.counter(counter); c != nil {
		c.Add(ctx, 1, metric.WithAttributes(toAttributes(attrs)...))
	}
}

// StartSpan falls back to ctx and a no-op span when the tracer fails.
func (o *OTel) StartSpan(ctx context.Context, name string, attrs map[string]string) (spanCtx context.Context, span Span) {
	spanCtx, span = ctx, nopSpan{}
	defer o.swallow("StartSpan")
	c, s := o.tracer.Start(ctx, name, trace.WithAttributes(toAttributes(attrs)...))
	return c, &otelSpan{span: s, owner: o}
}

func (o *OTel) histogram(name string) metric.Float64Histogram {
	o.mu.Lock()
	defer o.mu.Unlock()
	if h, ok := o.histograms[name]; ok {
		return h
	}
	h, err := o.meter.Float64Histogram(name, metric.WithUnit("ms"))
	if err != nil {
		o.log.Debug("create histogram", zap.String("name", name), zap.Error(err))
		return nil
	}
	o.histograms[name] = h
	return h
}

func (o *OTel) counter(name string) metric.Int64Counter {
	o.mu.Lock()
	defer o.mu.Unlock()
	if c, ok := o.counters[name]; ok {
		return c
	}
	c, err := o.meter.Int64Counter(name)
	if err != nil {
		o.log.Debug("create counter", zap.String("name", name), zap.Error(err))
		return nil
	}
	o.counters[name] = c
	return c
}

func (o *OTel) swallow(op string) {
	if r := recover(); r != nil {
		o.log.Debug("telemetry panic", zap.String("op", op), zap.Any("recovered", r))
	}
}

type otelSpan struct {
	span  trace.Span
	owner *OTel
}

func (s *otelSpan) End(status string, attrs map[string]string) {
	defer s.owner.swallow("End")
	s.span.SetAttributes(toAttributes(attrs)...)
	if status == StatusOK {
		s.span.SetStatus(codes.Ok, "")
	} else {
		s.span.SetAttributes(attribute.Bool("error", true))
		s.span.SetStatus(codes.Error, status)
	}
	s.span.End()
}

func toAttributes(attrs map[string]string) []attribute.KeyValue {
	kvs := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		kvs = append(kvs, attribute.String(k, v))
	}
	return kvs
}
