// Package obsmetrics instruments the events subsystem itself with
// OpenTelemetry metrics — submission counts by reason, buffer depth at
// submit time, restart-clock anomalies, and swallowed storage failures.
// This is strictly self-observability of the SDK: it is never the
// persisted glean.execution_counter/glean.restarted data the subsystem
// collects on behalf of the host application (that stays modeled as the
// execcounter.Database and errs.Recorder contracts so the two concerns
// never conflate). Disabled by default, following the same
// internal/otel.MetricsConfig idiom.
package obsmetrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// ExporterType selects which OTel metrics exporter backs a Metrics instance.
type ExporterType string

const (
	ExporterNone     ExporterType = "none"
	ExporterStdout   ExporterType = "stdout"
	ExporterOTLPHTTP ExporterType = "otlp_http"
)

// Config controls whether and how the events subsystem emits its own
// operational metrics.
type Config struct {
	Enabled      bool
	ExporterType ExporterType
	OTLPEndpoint string
	OTLPInsecure bool
}

// DefaultConfig returns metrics disabled (no-op meter).
func DefaultConfig() Config {
	return Config{Enabled: false, ExporterType: ExporterNone}
}

// Metrics wraps the OTel instruments the events subsystem updates.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	shutdown func(context.Context) error

	submissions     metric.Int64Counter
	submittedEvents metric.Int64Counter
	clockAnomalies  metric.Int64Counter
	storageFailures metric.Int64Counter
	bufferDepth     metric.Int64Histogram
}

// New builds a Metrics instance per cfg. When disabled, every instrument
// is backed by a no-op meter provider.
func New(ctx context.Context, cfg Config) (*Metrics, error) {
	m := &Metrics{}

	if !cfg.Enabled || cfg.ExporterType == ExporterNone {
		m.provider = sdkmetric.NewMeterProvider()
		m.shutdown = func(context.Context) error { return nil }
		return m, m.register(m.provider.Meter("glean.events"))
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("obsmetrics: create exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)
	m.provider = provider
	m.shutdown = provider.Shutdown

	return m, m.register(provider.Meter("glean.events"))
}

func newExporter(ctx context.Context, cfg Config) (sdkmetric.Exporter, error) {
	switch cfg.ExporterType {
	case ExporterStdout:
		return stdoutmetric.New()
	case ExporterOTLPHTTP:
		opts := []otlpmetrichttp.Option{}
		if cfg.OTLPEndpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint))
		}
		if cfg.OTLPInsecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		return otlpmetrichttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unknown exporter type: %s", cfg.ExporterType)
	}
}

func (m *Metrics) register(meter metric.Meter) error {
	var err error

	m.submissions, err = meter.Int64Counter(
		"glean.events.submissions",
		metric.WithDescription("Count of events-ping submissions scheduled, by reason"),
	)
	if err != nil {
		return err
	}

	m.submittedEvents, err = meter.Int64Counter(
		"glean.events.submitted_events",
		metric.WithDescription("Count of events drained into a submitted ping"),
	)
	if err != nil {
		return err
	}

	m.clockAnomalies, err = meter.Int64Counter(
		"glean.events.clock_anomalies",
		metric.WithDescription("Count of non-monotonic start times observed across restarts"),
	)
	if err != nil {
		return err
	}

	m.storageFailures, err = meter.Int64Counter(
		"glean.events.storage_failures",
		metric.WithDescription("Count of swallowed persistent-store read/write failures"),
	)
	if err != nil {
		return err
	}

	m.bufferDepth, err = meter.Int64Histogram(
		"glean.events.buffer_depth",
		metric.WithDescription("Event count in a ping buffer at submission time"),
	)
	return err
}

// RecordSubmission records a scheduled submission for ping with the given
// reason and the number of events it carried.
func (m *Metrics) RecordSubmission(ctx context.Context, ping, reason string, eventCount int) {
	attrs := metric.WithAttributes(attrString("ping", ping), attrString("reason", reason))
	m.submissions.Add(ctx, 1, attrs)
	m.submittedEvents.Add(ctx, int64(eventCount), attrs)
	m.bufferDepth.Record(ctx, int64(eventCount), attrs)
}

// RecordClockAnomaly records a non-monotonic restart clock observation.
func (m *Metrics) RecordClockAnomaly(ctx context.Context, ping string) {
	m.clockAnomalies.Add(ctx, 1, metric.WithAttributes(attrString("ping", ping)))
}

// RecordStorageFailure records a swallowed store error.
func (m *Metrics) RecordStorageFailure(ctx context.Context, op string) {
	m.storageFailures.Add(ctx, 1, metric.WithAttributes(attrString("op", op)))
}

// Shutdown flushes and releases the underlying meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m.shutdown == nil {
		return nil
	}
	return m.shutdown(ctx)
}
