package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.28.0"
)

const (
	ServiceName    = "timeslice"
	ServiceVersion = "v1.0.0"
	MeterName      = "timeslice"
)

// MetricsProviders holds the metrics pipeline: the meter provider, the
// Prometheus scrape handler, and the pipeline instrument set.
type MetricsProviders struct {
	MeterProvider  *sdkmetric.MeterProvider
	PrometheusHTTP http.Handler
	Pipeline       *PipelineMetrics
}

// InitializeMetrics sets up the OpenTelemetry meter with a Prometheus
// exporter and creates the pipeline instruments.
func InitializeMetrics(logger *slog.Logger) (*MetricsProviders, error) {
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(ServiceName),
		semconv.ServiceVersion(ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otelprom.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	pipeline, err := newPipelineMetrics(provider.Meter(MeterName))
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}

	logger.Info("Metrics initialized",
		slog.String("service", ServiceName),
		slog.String("exporter", "prometheus"))

	return &MetricsProviders{
		MeterProvider:  provider,
		PrometheusHTTP: promhttp.Handler(),
		Pipeline:       pipeline,
	}, nil
}

// Shutdown flushes and stops the meter provider
func (p *MetricsProviders) Shutdown(ctx context.Context) error {
	return p.MeterProvider.Shutdown(ctx)
}

// PipelineMetrics counts pipeline events. It satisfies the iterator's
// recorder interface.
type PipelineMetrics struct {
	rowsRead    metric.Int64Counter
	rowsSkipped metric.Int64Counter
	rowsEmitted metric.Int64Counter
	evalErrors  metric.Int64Counter
}

func newPipelineMetrics(meter metric.Meter) (*PipelineMetrics, error) {
	rowsRead, err := meter.Int64Counter("timeslice_rows_read_total",
		metric.WithDescription("Raw rows read from the source"))
	if err != nil {
		return nil, err
	}
	rowsSkipped, err := meter.Int64Counter("timeslice_rows_skipped_total",
		metric.WithDescription("Rows discarded before entering the window, by reason"))
	if err != nil {
		return nil, err
	}
	rowsEmitted, err := meter.Int64Counter("timeslice_rows_emitted_total",
		metric.WithDescription("Resolved rows emitted to the consumer"))
	if err != nil {
		return nil, err
	}
	evalErrors, err := meter.Int64Counter("timeslice_eval_errors_total",
		metric.WithDescription("Derived-column evaluation failures"))
	if err != nil {
		return nil, err
	}
	return &PipelineMetrics{
		rowsRead:    rowsRead,
		rowsSkipped: rowsSkipped,
		rowsEmitted: rowsEmitted,
		evalErrors:  evalErrors,
	}, nil
}

// RowRead records one raw row read
func (m *PipelineMetrics) RowRead() {
	m.rowsRead.Add(context.Background(), 1)
}

// RowSkipped records one discarded row with its reason
func (m *PipelineMetrics) RowSkipped(reason string) {
	m.rowsSkipped.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("reason", reason)))
}

// RowEmitted records one emitted row
func (m *PipelineMetrics) RowEmitted() {
	m.rowsEmitted.Add(context.Background(), 1)
}

// EvalError records one derived-column evaluation failure
func (m *PipelineMetrics) EvalError() {
	m.evalErrors.Add(context.Background(), 1)
}
