// Package telemetry builds the OpenTelemetry tracer provider used by the workflow engine.
package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// Config controls span export
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// OutputPath is "stdout", "stderr" or a file path; empty means stdout
	OutputPath string
}

// Provider owns the tracer provider and whatever the exporter writes to
type Provider struct {
	trace.TracerProvider
	shutdown func(context.Context) error
}

// Shutdown flushes pending spans and releases the exporter output
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}

// New builds a provider. A disabled config yields a no-op provider.
// The provider is also installed as the otel global.
func New(cfg Config, logger *zap.Logger) (*Provider, error) {
	if !cfg.Enabled {
		tp := noop.NewTracerProvider()
		return &Provider{TracerProvider: tp}, nil
	}

	w, closeOutput, err := openOutput(cfg.OutputPath)
	if err != nil {
		return nil, err
	}

	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		_ = closeOutput()
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	return NewWithExporter(cfg, exporter, closeOutput, logger)
}

// NewWithExporter builds a provider over an arbitrary span exporter
func NewWithExporter(cfg Config, exporter sdktrace.SpanExporter, onShutdown func() error, logger *zap.Logger) (*Provider, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build trace resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(exporter)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Info("Tracing enabled",
		zap.String("service", cfg.ServiceName),
		zap.String("output", cfg.OutputPath))

	return &Provider{
		TracerProvider: tp,
		shutdown: func(ctx context.Context) error {
			err := tp.Shutdown(ctx)
			if onShutdown != nil {
				if cerr := onShutdown(); cerr != nil && err == nil {
					err = cerr
				}
			}
			return err
		},
	}, nil
}

func openOutput(path string) (io.Writer, func() error, error) {
	nop := func() error { return nil }
	switch path {
	case "", "stdout":
		return os.Stdout, nop, nil
	case "stderr":
		return os.Stderr, nop, nil
	default:
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open trace output: %w", err)
		}
		return f, f.Close, nil
	}
}
