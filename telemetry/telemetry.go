// Package telemetry builds the OpenTelemetry providers for a run. When disabled every
// provider is a noop, so callers can instrument unconditionally.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	otellog "go.opentelemetry.io/otel/log"
	lognoop "go.opentelemetry.io/otel/log/noop"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName identifies the tracer, meter and logger created here.
const InstrumentationName = "signaturedemo"

// Options controls what Setup builds.
type Options struct {
	Enabled     bool
	ServiceName string
	// Writer receives every exported span, metric and log record. Defaults to os.Stderr.
	Writer io.Writer
	Pretty bool
}

// Telemetry holds the providers' entry points for one run.
type Telemetry struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger otellog.Logger

	shutdown []func(context.Context) error
}

// Noop returns telemetry that records nothing.
func Noop() *Telemetry {
	return &Telemetry{
		Tracer: tracenoop.NewTracerProvider().Tracer(InstrumentationName),
		Meter:  metricnoop.NewMeterProvider().Meter(InstrumentationName),
		Logger: lognoop.NewLoggerProvider().Logger(InstrumentationName),
	}
}

// Setup creates trace, metric and log providers that export to opts.Writer.
func Setup(ctx context.Context, opts Options) (*Telemetry, error) {
	if !opts.Enabled {
		return Noop(), nil
	}

	if opts.Writer == nil {
		opts.Writer = os.Stderr
	}
	if opts.ServiceName == "" {
		opts.ServiceName = InstrumentationName
	}

	res := resource.NewSchemaless(attribute.String("service.name", opts.ServiceName))

	traceOpts := []stdouttrace.Option{stdouttrace.WithWriter(opts.Writer)}
	metricOpts := []stdoutmetric.Option{stdoutmetric.WithWriter(opts.Writer)}
	logOpts := []stdoutlog.Option{stdoutlog.WithWriter(opts.Writer)}
	if opts.Pretty {
		traceOpts = append(traceOpts, stdouttrace.WithPrettyPrint())
		metricOpts = append(metricOpts, stdoutmetric.WithPrettyPrint())
		logOpts = append(logOpts, stdoutlog.WithPrettyPrint())
	}

	traceExporter, err := stdouttrace.New(traceOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	metricExporter, err := stdoutmetric.New(metricOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	logExporter, err := stdoutlog.New(logOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create log exporter: %w", err)
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(traceExporter),
		sdktrace.WithResource(res),
	)
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)
	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewSimpleProcessor(logExporter)),
		sdklog.WithResource(res),
	)

	return &Telemetry{
		Tracer: tracerProvider.Tracer(InstrumentationName),
		Meter:  meterProvider.Meter(InstrumentationName),
		Logger: loggerProvider.Logger(InstrumentationName),
		// Metrics flush last so the final periodic export sees every recorded value.
		shutdown: []func(context.Context) error{
			tracerProvider.Shutdown,
			loggerProvider.Shutdown,
			meterProvider.Shutdown,
		},
	}, nil
}

// Shutdown flushes and stops every provider Setup created.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range t.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	t.shutdown = nil
	return errors.Join(errs...)
}

// Instruments are the metrics recorded by the signing walkthrough.
type Instruments struct {
	KeyGenerations metric.Int64Counter
	Signatures     metric.Int64Counter
	Verifications  metric.Int64Counter
	KeyGenDuration metric.Float64Histogram
}

// NewInstruments registers the walkthrough's metrics on meter.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	keyGenerations, err := meter.Int64Counter("rsa.keygen.count",
		metric.WithDescription("RSA key pairs generated"),
		metric.WithUnit("{keypair}"))
	if err != nil {
		return nil, err
	}

	signatures, err := meter.Int64Counter("rsa.pss.signatures",
		metric.WithDescription("RSA-PSS signatures created"),
		metric.WithUnit("{signature}"))
	if err != nil {
		return nil, err
	}

	verifications, err := meter.Int64Counter("rsa.pss.verifications",
		metric.WithDescription("RSA-PSS verifications by outcome"),
		metric.WithUnit("{verification}"))
	if err != nil {
		return nil, err
	}

	keyGenDuration, err := meter.Float64Histogram("rsa.keygen.duration",
		metric.WithDescription("Time spent generating a key pair"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		KeyGenerations: keyGenerations,
		Signatures:     signatures,
		Verifications:  verifications,
		KeyGenDuration: keyGenDuration,
	}, nil
}
