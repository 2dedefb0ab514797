package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/signalsfoundry/marslink-sim/internal/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// DefaultServiceName is reported when no service name is configured.
const DefaultServiceName = "marslink-sim"

// DefaultOTLPEndpoint is dialled when the otlp exporter has no endpoint.
const DefaultOTLPEndpoint = "localhost:4317"

// Exporter selects where spans go.
type Exporter string

const (
	ExporterStdout Exporter = "stdout"
	ExporterOTLP   Exporter = "otlp"
)

// ParseExporter normalises an exporter name. Empty means stdout; "otlpgrpc"
// is accepted as an alias of otlp.
func ParseExporter(s string) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "stdout":
		return ExporterStdout, nil
	case "otlp", "otlpgrpc":
		return ExporterOTLP, nil
	default:
		return "", fmt.Errorf("unsupported tracing exporter: %s", s)
	}
}

// TracingConfig governs how the frame loop and feed streams are traced.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string
	// Endpoint is the OTLP collector address.
	Endpoint    string
	SampleRatio float64
	// Writer receives stdout-exporter spans; nil means os.Stderr.
	Writer io.Writer
	// Attributes are attached to the resource, e.g. marslink.scenario.
	Attributes map[string]string
}

// Environment keys read by TracingConfigFromEnv.
const (
	envTracingEnabled = "MARSLINK_TRACING_ENABLED"
	envTracingExport  = "MARSLINK_TRACING_EXPORTER"
	envTracingService = "MARSLINK_TRACING_SERVICE_NAME"
	envTracingRatio   = "MARSLINK_TRACING_SAMPLE_RATIO"
	envOTLPEndpoint   = "MARSLINK_OTLP_ENDPOINT"
)

// TracingConfigFromEnv reads MARSLINK_TRACING_* and MARSLINK_OTLP_ENDPOINT.
func TracingConfigFromEnv() TracingConfig {
	return TracingConfigFromLookup(os.Getenv)
}

// TracingConfigFromLookup is TracingConfigFromEnv over an arbitrary lookup.
// A sample ratio outside [0,1] or unparsable falls back to 1.
func TracingConfigFromLookup(getenv func(string) string) TracingConfig {
	cfg := TracingConfig{
		Enabled:     strings.EqualFold(getenv(envTracingEnabled), "true"),
		ServiceName: getenv(envTracingService),
		Exporter:    string(ExporterStdout),
		Endpoint:    getenv(envOTLPEndpoint),
		SampleRatio: 1,
	}
	if raw := getenv(envTracingExport); raw != "" {
		cfg.Exporter = strings.ToLower(raw)
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultServiceName
	}
	if raw := getenv(envTracingRatio); raw != "" {
		if r, err := strconv.ParseFloat(raw, 64); err == nil && r >= 0 && r <= 1 {
			cfg.SampleRatio = r
		}
	}
	return cfg
}

// InitTracing installs the global tracer provider and propagators. When
// tracing is disabled a noop provider is installed so instrumented code
// needs no nil checks. The returned function flushes pending spans.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		log.Debug(ctx, "tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	kind, err := ParseExporter(cfg.Exporter)
	if err != nil {
		return nil, err
	}
	exp, err := newExporter(ctx, kind, cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s exporter: %w", kind, err)
	}
	res, err := newResource(ctx, cfg)
	if err != nil {
		_ = exp.Shutdown(ctx)
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", string(kind)),
		logging.String("service_name", serviceName(cfg)),
		logging.Float("sample_ratio", cfg.SampleRatio),
	)
	return tp.Shutdown, nil
}

func newExporter(ctx context.Context, kind Exporter, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	if kind == ExporterOTLP {
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = DefaultOTLPEndpoint
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		))
	}
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}
	return stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithoutTimestamps())
}

func newResource(ctx context.Context, cfg TracingConfig) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		attribute.String("service.name", serviceName(cfg)),
		attribute.String("service.namespace", "marslink"),
	}
	keys := make([]string, 0, len(cfg.Attributes))
	for k := range cfg.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, attribute.String(k, cfg.Attributes[k]))
	}
	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	return res, nil
}

func serviceName(cfg TracingConfig) string {
	if cfg.ServiceName == "" {
		return DefaultServiceName
	}
	return cfg.ServiceName
}

// ShutdownWithTimeout flushes spans within five seconds. Failures are
// logged, not returned.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Error(err))
	}
}
