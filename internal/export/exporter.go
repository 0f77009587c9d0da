package export

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// ErrExporterShutdown is returned by Export after Shutdown.
var ErrExporterShutdown = errors.New("exporter is shut down")

var _ sdkmetric.Exporter = (*LogExporter)(nil)

// LogExporter renders collected metrics as human-readable log entries.
type LogExporter struct {
	log    logrus.FieldLogger
	health *HealthMetrics

	shutdown atomic.Bool
}

// NewLogExporter creates a LogExporter. health may be nil.
func NewLogExporter(log logrus.FieldLogger, health *HealthMetrics) *LogExporter {
	return &LogExporter{
		log:    log.WithField("component", "log_exporter"),
		health: health,
	}
}

// Temporality reports cumulative temporality for every instrument kind.
func (e *LogExporter) Temporality(sdkmetric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

// Aggregation returns the SDK default aggregation for an instrument kind.
func (e *LogExporter) Aggregation(ik sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(ik)
}

// Export translates rm into metric snapshots and renders them.
func (e *LogExporter) Export(ctx context.Context, rm *metricdata.ResourceMetrics) error {
	if e.shutdown.Load() {
		return ErrExporterShutdown
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()

	metrics, skipped := FromResourceMetrics(rm)
	for _, name := range skipped {
		e.log.WithField("metric", name).
			Debug("Skipping metric with unsupported aggregation")
	}

	series := e.Render(metrics)

	if e.health != nil {
		e.health.ExportCycles.Inc()
		e.health.MetricsExported.Add(float64(len(metrics)))
		e.health.SeriesExported.Add(float64(series))
		e.health.ExportDuration.Observe(time.Since(start).Seconds())
	}

	return nil
}

// Render logs each metric header and one entry per series. It returns the
// number of series rendered. An empty collection logs nothing.
func (e *LogExporter) Render(metrics []Metric) int {
	if len(metrics) == 0 {
		return 0
	}

	e.log.WithField("metrics", len(metrics)).Info("Exporting metrics")

	var series int

	for _, m := range metrics {
		log := e.log.WithField("metric", m.Descriptor.Name)

		log.Info(renderName(m.Descriptor))
		log.Info(renderKeys(m.Descriptor))

		for _, ts := range m.TimeSeries {
			log.Info(renderSeries(ts))
			series++
		}
	}

	return series
}

// ForceFlush is a no-op; rendering is synchronous.
func (e *LogExporter) ForceFlush(ctx context.Context) error {
	return ctx.Err()
}

// Shutdown stops accepting exports. It is safe to call more than once.
func (e *LogExporter) Shutdown(ctx context.Context) error {
	if e.shutdown.Swap(true) {
		return nil
	}

	e.log.Debug("Log exporter shut down")

	return ctx.Err()
}
