package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// ReaderConfig configures an interval reader.
type ReaderConfig struct {
	// Interval is the time between collect/export cycles.
	// Defaults to 1s.
	Interval time.Duration `yaml:"interval"`

	// Timeout bounds a single export call. Defaults to 5s.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultReaderConfig returns a ReaderConfig with sensible defaults.
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		Interval: time.Second,
		Timeout:  5 * time.Second,
	}
}

// IntervalReader periodically collects metrics from the registry it is
// attached to and pushes them to an exporter. The collection loop runs on
// the SDK periodic reader's goroutine, started at construction.
type IntervalReader struct {
	log    logrus.FieldLogger
	name   string
	health *HealthMetrics
	reader *sdkmetric.PeriodicReader

	mu      sync.Mutex
	stopped bool
}

// NewIntervalReader creates a reader that exports to exporter every
// cfg.Interval. health may be nil.
func NewIntervalReader(
	log logrus.FieldLogger,
	name string,
	cfg ReaderConfig,
	exporter sdkmetric.Exporter,
	health *HealthMetrics,
) *IntervalReader {
	defaults := DefaultReaderConfig()

	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}

	r := &IntervalReader{
		log: log.WithFields(logrus.Fields{
			"component": "interval_reader",
			"reader":    name,
		}),
		name:   name,
		health: health,
		reader: sdkmetric.NewPeriodicReader(
			exporter,
			sdkmetric.WithInterval(cfg.Interval),
			sdkmetric.WithTimeout(cfg.Timeout),
		),
	}

	if health != nil {
		health.ReadersRunning.WithLabelValues(name).Set(1)
	}

	r.log.WithFields(logrus.Fields{
		"interval": cfg.Interval,
		"timeout":  cfg.Timeout,
	}).Debug("Interval reader created")

	return r
}

// Name returns the reader's identifier for logging.
func (r *IntervalReader) Name() string { return r.name }

// MetricReader returns the SDK reader to attach to a meter provider.
func (r *IntervalReader) MetricReader() sdkmetric.Reader {
	return r.reader
}

// Flush runs one collect/export cycle immediately.
func (r *IntervalReader) Flush(ctx context.Context) error {
	if err := r.reader.ForceFlush(ctx); err != nil {
		return fmt.Errorf("flushing %s reader: %w", r.name, err)
	}

	return nil
}

// Stop halts future cycles after a final collect/export and shuts the
// exporter down. Only the first call does any work.
func (r *IntervalReader) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return nil
	}

	r.stopped = true

	if r.health != nil {
		r.health.ReadersRunning.WithLabelValues(r.name).Set(0)
	}

	err := r.reader.Shutdown(ctx)
	if err != nil && !errors.Is(err, sdkmetric.ErrReaderShutdown) {
		return fmt.Errorf("stopping %s reader: %w", r.name, err)
	}

	r.log.Info("Interval reader stopped")

	return nil
}

// NewStdoutExporter returns an SDK exporter that writes collected data
// as indented JSON to w.
func NewStdoutExporter(w io.Writer) (sdkmetric.Exporter, error) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	exporter, err := stdoutmetric.New(stdoutmetric.WithEncoder(enc))
	if err != nil {
		return nil, fmt.Errorf("creating stdout exporter: %w", err)
	}

	return exporter, nil
}
