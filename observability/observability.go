// Package observability exports the sonopix server's traces and metrics.
// Pipeline spans and instruments are created against the global otel
// providers, so until Init installs real ones they are no-ops.
package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"sonopix/config"
	"sonopix/features"
	"sonopix/logging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// Pipeline runs span from a few milliseconds for a short text to minutes
// for a long recording with the default key derivation cost.
var durationBucketsMS = []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 180000}

// Telemetry holds the exporters Init started.
type Telemetry struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	metricsServer  *http.Server
}

// Init installs the trace and metric exporters cfg enables. A failing
// exporter is logged and reported, and the other one is still started.
func Init(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Telemetry, error) {
	serviceName := ServiceName(cfg)
	res, err := newResource(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build telemetry resource: %w", err)
	}

	telemetry := &Telemetry{}
	var errs []error

	if cfg.Observability.Tracing.Enabled {
		tp, err := newTracerProvider(ctx, cfg, res, logger)
		switch {
		case err != nil:
			logger.Warn("Failed to initialize tracing exporter: %v", err)
			errs = append(errs, err)
		case tp != nil:
			telemetry.tracerProvider = tp
			otel.SetTracerProvider(tp)
			otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
				propagation.TraceContext{},
				propagation.Baggage{},
			))
			logger.Startup("Pipeline spans exported to %s", tracingEndpoint(cfg))
		}
	} else {
		logger.Startup("Tracing disabled for %s", serviceName)
	}

	if cfg.Observability.Metrics.Enabled {
		mp, server, err := newMeterProvider(cfg, res, logger)
		if err != nil {
			logger.Warn("Failed to initialize metrics exporter: %v", err)
			errs = append(errs, err)
		} else {
			telemetry.meterProvider = mp
			telemetry.metricsServer = server
			otel.SetMeterProvider(mp)
			logger.Startup("Pipeline metrics served on %s%s", server.Addr, metricsPath(cfg))
		}
	} else {
		logger.Startup("Metrics disabled for %s", serviceName)
	}

	return telemetry, errors.Join(errs...)
}

// ServiceName is the name reported on spans and metrics.
func ServiceName(cfg *config.Config) string {
	if name := strings.TrimSpace(cfg.Observability.Tracing.ServiceName); name != "" {
		return name
	}
	if cfg.Service.Name != "" {
		return cfg.Service.Name
	}
	return "sonopix"
}

func serviceVersion(cfg *config.Config) string {
	if features.BuildVersion != "dev" {
		return features.BuildVersion
	}
	return cfg.Service.Version
}

// newResource describes this deployment: the service identity plus the
// settings that change what the pipeline does with a request.
func newResource(cfg *config.Config) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(ServiceName(cfg)),
			semconv.ServiceVersion(serviceVersion(cfg)),
			semconv.DeploymentEnvironmentName(cfg.Service.Environment),
			attribute.String("sonopix.pipeline.format", cfg.Pipeline.Format),
			attribute.Bool("sonopix.pipeline.strict_decode", cfg.Pipeline.StrictDecode),
			attribute.Int("sonopix.carrier.max_pixels", cfg.Carrier.MaxPixels),
			attribute.String("sonopix.jobs.store", cfg.Jobs.Store),
		),
	)
}

// Enabled reports whether any exporter is running.
func (t *Telemetry) Enabled() bool {
	return t != nil && (t.tracerProvider != nil || t.meterProvider != nil)
}

// Shutdown stops the metrics endpoint and flushes both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error

	if t.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := t.metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracer provider shutdown: %w", err))
		}
	}

	return errors.Join(errs...)
}

// newTracerProvider returns nil without an error for an unknown provider,
// which leaves tracing off.
func newTracerProvider(ctx context.Context, cfg *config.Config, res *resource.Resource, logger *logging.Logger) (*sdktrace.TracerProvider, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Observability.Tracing.Provider))
	switch provider {
	case "", "otlp", "otlpgrpc", "otlp-grpc":
	default:
		logger.Warn("Tracing provider %s not supported, pipeline spans stay local", provider)
		return nil, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(tracingEndpoint(cfg)),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("otlp trace exporter init: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}

func tracingEndpoint(cfg *config.Config) string {
	if endpoint := cfg.Observability.Tracing.Endpoint; endpoint != "" {
		return endpoint
	}
	return "otel-collector:4317"
}

// durationViews give the pipeline's millisecond histograms buckets that
// reach long recordings instead of the SDK's sub-second defaults.
func durationViews() []sdkmetric.View {
	return []sdkmetric.View{
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: "sonopix_pipeline_*duration_ms"},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: durationBucketsMS}},
		),
	}
}

// newRegistry holds the exported pipeline instruments next to the Go
// runtime and process collectors and a sonopix_build_info gauge.
func newRegistry(cfg *config.Config) (*prometheus.Registry, error) {
	registry := prometheus.NewRegistry()

	buildInfo := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sonopix_build_info",
		Help: "Build and deployment of the running sonopix server, always 1",
	}, []string{"version", "environment", "format"})
	buildInfo.WithLabelValues(serviceVersion(cfg), cfg.Service.Environment, cfg.Pipeline.Format).Set(1)

	for _, c := range []prometheus.Collector{
		buildInfo,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return registry, nil
}

func metricsPath(cfg *config.Config) string {
	path := cfg.Observability.Metrics.Path
	if path == "" {
		return "/metrics"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

func newMeterProvider(cfg *config.Config, res *resource.Resource, logger *logging.Logger) (*sdkmetric.MeterProvider, *http.Server, error) {
	registry, err := newRegistry(cfg)
	if err != nil {
		return nil, nil, err
	}

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("prometheus exporter init: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
		sdkmetric.WithView(durationViews()...),
	)

	mux := http.NewServeMux()
	mux.Handle(metricsPath(cfg), promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	server := &http.Server{
		Addr:              cfg.Observability.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Metrics endpoint stopped: %v", err)
		}
	}()

	return meterProvider, server, nil
}
