// Package telemetry wraps the OpenTelemetry instruments recorded around
// forum mutations.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "forum"

type Instruments struct {
	tracer    trace.Tracer
	reactions metric.Int64Counter
	duration  metric.Float64Histogram
}

func New(tp trace.TracerProvider, mp metric.MeterProvider) (*Instruments, error) {
	meter := mp.Meter(instrumentationName)

	reactions, err := meter.Int64Counter(
		"forum.reactions",
		metric.WithDescription("Reactions applied, by kind and resulting state"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create reactions counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		"forum.mutation.duration",
		metric.WithDescription("Duration of transactional mutations in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	return &Instruments{
		tracer:    tp.Tracer(instrumentationName),
		reactions: reactions,
		duration:  duration,
	}, nil
}

// Noop returns instruments that record nothing.
func Noop() *Instruments {
	inst, _ := New(tracenoop.NewTracerProvider(), metricnoop.NewMeterProvider())
	return inst
}

// NewTracerProvider builds the process tracer provider. Spans are sampled
// but only leave the process once an exporter is registered on it.
func NewTracerProvider(serviceName string, opts ...sdktrace.TracerProviderOption) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(append([]sdktrace.TracerProviderOption{sdktrace.WithResource(newResource(serviceName))}, opts...)...)
}

func newResource(serviceName string) *resource.Resource {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)),
	)
	if err != nil {
		return resource.Default()
	}
	return res
}

// Exporters accepted by NewProviders.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
)

// Providers holds the SDK trace and metric providers of the process.
type Providers struct {
	Tracer *sdktrace.TracerProvider
	Meter  *sdkmetric.MeterProvider
}

// NewProviders builds SDK providers for serviceName. With ExporterStdout,
// spans and periodic metric snapshots are written to w as JSON; with
// ExporterNone or "" nothing leaves the process.
func NewProviders(serviceName, exporter string, interval time.Duration, w io.Writer) (*Providers, error) {
	res := newResource(serviceName)
	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	meterOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	switch exporter {
	case "", ExporterNone:
	case ExporterStdout:
		if w == nil {
			w = os.Stdout
		}
		spanExporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("create span exporter: %w", err)
		}
		metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("create metric exporter: %w", err)
		}
		if interval <= 0 {
			interval = time.Minute
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(spanExporter))
		meterOpts = append(meterOpts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(interval))))
	default:
		return nil, fmt.Errorf("unknown telemetry exporter %q", exporter)
	}

	return &Providers{
		Tracer: sdktrace.NewTracerProvider(traceOpts...),
		Meter:  sdkmetric.NewMeterProvider(meterOpts...),
	}, nil
}

// Shutdown flushes pending spans and a final metric snapshot.
func (p *Providers) Shutdown(ctx context.Context) error {
	return errors.Join(p.Tracer.Shutdown(ctx), p.Meter.Shutdown(ctx))
}

// Op is one traced mutation.
type Op struct {
	inst      *Instruments
	span      trace.Span
	operation string
	start     time.Time
}

func (i *Instruments) Start(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, *Op) {
	ctx, span := i.tracer.Start(ctx, operation, trace.WithAttributes(attrs...))
	return ctx, &Op{inst: i, span: span, operation: operation, start: time.Now()}
}

func (o *Op) End(ctx context.Context, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, err.Error())
	} else {
		o.span.SetStatus(codes.Ok, "")
	}
	elapsed := float64(time.Since(o.start).Microseconds()) / 1000
	o.inst.duration.Record(ctx, elapsed, metric.WithAttributes(
		attribute.String("operation", o.operation),
		attribute.String("status", status),
	))
	o.span.End()
}

// SetAttributes annotates the running span, typically with results.
func (o *Op) SetAttributes(attrs ...attribute.KeyValue) {
	o.span.SetAttributes(attrs...)
}

// CountReaction records one applied reaction. state is the resulting vote
// value or "active"/"inactive" for likes and flags.
func (i *Instruments) CountReaction(ctx context.Context, kind, state string) {
	i.reactions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("state", state),
	))
}
