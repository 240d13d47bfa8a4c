// Package telemetry initializes the OpenTelemetry tracer provider the
// runtime activities, engine, and pipeline spans are recorded against.
// This is ambient instrumentation (spec §1 excludes a metrics *sink*
// collaborator, not tracing of the core itself).
package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"

	"vibesync.dev/syncorch/internal/config"
)

// Provider wraps the OpenTelemetry TracerProvider for graceful shutdown.
type Provider struct {
	tp *sdktrace.TracerProvider
}

// Init builds and installs the global tracer provider from cfg. Returns
// nil (not an error) when tracing is disabled via OTelEnabled=false, or
// when the exporter fails to initialize — a broken tracing backend must
// never prevent the orchestrator from starting.
func Init(ctx context.Context, serviceName, version string, cfg config.Config, logger *logrus.Entry) *Provider {
	if !cfg.OTelEnabled {
		logger.Info("tracing disabled via OTEL_ENABLED=false")
		return nil
	}

	provider, err := newProvider(ctx, serviceName, version, cfg)
	if err != nil {
		logger.WithError(err).Warn("opentelemetry initialization failed, continuing without tracing")
		return nil
	}

	logger.WithFields(logrus.Fields{
		"endpoint": cfg.OTelEndpoint,
		"sampling": cfg.OTelSamplingRate,
	}).Info("opentelemetry initialized")
	return provider
}

func newProvider(ctx context.Context, serviceName, version string, cfg config.Config) (*Provider, error) {
	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(
		otlptracehttp.WithEndpoint(stripProtocol(cfg.OTelEndpoint)),
		otlptracehttp.WithInsecure(),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
			semconv.DeploymentEnvironmentKey.String(cfg.OTelEnvironment),
		),
		resource.WithProcess(),
		resource.WithHost(),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: failed to create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.OTelSamplingRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	case cfg.OTelSamplingRate <= 0.0:
		sampler = sdktrace.NeverSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.OTelSamplingRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{tp: tp}, nil
}

// Shutdown flushes pending spans and stops the exporter. Safe to call on
// a nil Provider (tracing disabled or failed to initialize).
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return p.tp.Shutdown(shutdownCtx)
}

func stripProtocol(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimPrefix(endpoint, "http://")
}
