package telemetry

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "library-api"

type Config struct {
	Enabled        bool          `envconfig:"TELEMETRY_ENABLED" default:"true"`
	ServiceName    string        `envconfig:"TELEMETRY_SERVICE_NAME" default:"library-api"`
	ExportInterval time.Duration `envconfig:"TELEMETRY_EXPORT_INTERVAL" default:"60s"`
}

// Provider owns the process-wide meter and tracer providers.
// It is built once at startup and shut down on exit.
type Provider struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
}

// NewProvider exports to w (stdout when nil). A disabled config yields no-op instruments.
func NewProvider(ctx context.Context, cfg Config, w io.Writer) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{}, nil
	}
	if w == nil {
		w = os.Stdout
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(cfg.ServiceName)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "resource.New")
	}

	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, errors.Wrap(err, "stdoutmetric.New")
	}
	interval := cfg.ExportInterval
	if interval <= 0 {
		interval = time.Minute
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(res),
	)

	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, errors.Wrap(err, "stdouttrace.New")
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	otel.SetMeterProvider(meterProvider)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return &Provider{
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
	}, nil
}

func (p *Provider) Meter() metric.Meter {
	if p.meterProvider == nil {
		return metricnoop.NewMeterProvider().Meter(instrumentationName)
	}
	return p.meterProvider.Meter(instrumentationName)
}

func (p *Provider) Tracer() trace.Tracer {
	return p.TracerProvider().Tracer(instrumentationName)
}

// TracerProvider is shared by the request middleware and the workflow,
// so a borrow span is a child of its request span.
func (p *Provider) TracerProvider() trace.TracerProvider {
	if p.tracerProvider == nil {
		return tracenoop.NewTracerProvider()
	}
	return p.tracerProvider
}

func (p *Provider) Shutdown(ctx context.Context) error {
	var err error
	if p.tracerProvider != nil {
		if shutdownErr := p.tracerProvider.Shutdown(ctx); shutdownErr != nil {
			err = shutdownErr
		}
	}
	if p.meterProvider != nil {
		if shutdownErr := p.meterProvider.Shutdown(ctx); shutdownErr != nil {
			err = shutdownErr
		}
	}
	return err
}
