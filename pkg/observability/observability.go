// Package observability wires a shared OpenTelemetry tracer and meter
// into the authority, policy, and ledger engines so every mutating
// operation produces a span and a counter/histogram update. When no
// collector endpoint is configured, Provider falls back to OTel's
// no-op implementations so the library has no required network
// dependency.
//
// Builds OTLP gRPC trace/metric exporters and pairs them with
// log/slog for anything the trace/metric pipeline doesn't capture.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Config configures the OpenTelemetry providers for a delegacy process.
type Config struct {
	ServiceName  string
	OTLPEndpoint string        // empty disables export; providers stay no-op
	BatchTimeout time.Duration
	Insecure     bool
}

// DefaultConfig returns a disabled (no-op) configuration.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:  "delegacy-core",
		OTLPEndpoint: "",
		BatchTimeout: 5 * time.Second,
		Insecure:     true,
	}
}

// Provider bundles the tracer and meter shared by all three engines.
type Provider struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	meter          metric.Meter
	shutdownFns    []func(context.Context) error

	OperationsTotal metric.Int64Counter
	OperationLatency metric.Float64Histogram
}

// NewProvider builds a Provider. With an empty OTLPEndpoint, it uses
// OTel's global (no-op by default) providers rather than standing up a
// gRPC exporter, so constructing a Provider never requires a reachable
// collector.
func NewProvider(ctx context.Context, cfg *Config) (*Provider, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	p := &Provider{}

	if cfg.OTLPEndpoint == "" {
		p.tracerProvider = otel.GetTracerProvider()
		p.meterProvider = otel.GetMeterProvider()
	} else {
		res, err := resource.Merge(resource.Default(),
			resource.NewSchemaless())
		if err != nil {
			return nil, fmt.Errorf("observability: build resource: %w", err)
		}

		traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.Insecure {
			traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
			metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
		}

		traceExporter, err := otlptracegrpc.New(ctx, traceOpts...)
		if err != nil {
			return nil, fmt.Errorf("observability: build trace exporter: %w", err)
		}
		metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
		if err != nil {
			return nil, fmt.Errorf("observability: build metric exporter: %w", err)
		}

		tp := sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(traceExporter, sdktrace.WithBatchTimeout(cfg.BatchTimeout)),
			sdktrace.WithResource(res),
		)
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(cfg.BatchTimeout))),
			sdkmetric.WithResource(res),
		)

		p.tracerProvider = tp
		p.meterProvider = mp
		p.shutdownFns = append(p.shutdownFns, tp.Shutdown, mp.Shutdown)
	}

	p.tracer = p.tracerProvider.Tracer(cfg.ServiceName)
	p.meter = p.meterProvider.Meter(cfg.ServiceName)

	var err error
	p.OperationsTotal, err = p.meter.Int64Counter("delegacy.operations.total")
	if err != nil {
		return nil, fmt.Errorf("observability: build operations counter: %w", err)
	}
	p.OperationLatency, err = p.meter.Float64Histogram("delegacy.operations.latency_ms")
	if err != nil {
		return nil, fmt.Errorf("observability: build latency histogram: %w", err)
	}

	return p, nil
}

// StartOperation begins a span for a single engine operation and
// returns a function that records the counter/histogram and ends the
// span. Callers defer the returned function.
func (p *Provider) StartOperation(ctx context.Context, subsystem, op string) (context.Context, func(err error)) {
	start := time.Now()
	ctx, span := p.tracer.Start(ctx, subsystem+"."+op)

	return ctx, func(err error) {
		status := "ok"
		if err != nil {
			status = "error"
			span.RecordError(err)
		}
		elapsedMs := float64(time.Since(start)) / float64(time.Millisecond)
		p.OperationLatency.Record(ctx, elapsedMs)
		p.OperationsTotal.Add(ctx, 1)
		slog.Debug("delegacy operation", "subsystem", subsystem, "op", op, "status", status, "elapsed_ms", elapsedMs)
		span.End()
	}
}

// Shutdown flushes and closes any exporters the Provider constructed.
func (p *Provider) Shutdown(ctx context.Context) error {
	for _, fn := range p.shutdownFns {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}
