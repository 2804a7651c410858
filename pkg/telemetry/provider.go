// SPDX-License-Identifier: BSD-3-Clause

// Package telemetry wires an in-process OpenTelemetry tracer and meter
// provider for tendhost. It deliberately stops short of configuring an
// OTLP exporter: tendhostd has no collector endpoint to ship to in this
// core, so spans and metrics are recorded against the SDK's in-memory
// aggregation and are available to anything that reads the global
// providers (notably pkg/fsm's tracer and the supervisor's instrumented
// batch runs), without requiring a running collector to start the daemon.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	oteltrace "go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Provider encapsulates the tracer and meter providers used across
// tendhostd. A zero-value Provider (or a nil *Provider receiver) falls
// back to OpenTelemetry's noop implementations so components never need
// to nil-check before instrumenting.
type Provider struct {
	cfg           *Config
	traceProvider *trace.TracerProvider
	meterProvider *sdkmetric.MeterProvider
	resource      *resource.Resource
}

// NewProvider builds a Provider from the given options and registers it as
// the process-global OpenTelemetry provider.
func NewProvider(opts ...Option) (*Provider, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfiguration, err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build resource: %w", err)
	}

	p := &Provider{cfg: cfg, resource: res}

	p.traceProvider = trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithSampler(trace.TraceIDRatioBased(cfg.TraceSampleRatio)),
	)
	p.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(p.traceProvider)
	otel.SetMeterProvider(p.meterProvider)

	return p, nil
}

// Tracer returns a named tracer, falling back to a noop tracer if p is nil
// or was never initialized with NewProvider.
func (p *Provider) Tracer(name string) oteltrace.Tracer {
	if p == nil || p.traceProvider == nil {
		return tracenoop.NewTracerProvider().Tracer(name)
	}
	return p.traceProvider.Tracer(name)
}

// Meter returns a named meter, falling back to a noop meter if p is nil or
// was never initialized with NewProvider.
func (p *Provider) Meter(name string) metric.Meter {
	if p == nil || p.meterProvider == nil {
		return metricnoop.NewMeterProvider().Meter(name)
	}
	return p.meterProvider.Meter(name)
}

// Shutdown flushes and stops the underlying providers. It is safe to call
// on a nil Provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.traceProvider != nil {
		if err := p.traceProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if p.meterProvider != nil {
		if err := p.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrs(errs)
}

func joinErrs(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	joined := errs[0]
	for _, e := range errs[1:] {
		joined = fmt.Errorf("%w; %w", joined, e)
	}
	return joined
}
