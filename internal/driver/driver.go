package driver

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ethpandaops/statsexporter/internal/clock"
	"github.com/ethpandaops/statsexporter/internal/export"
	"github.com/ethpandaops/statsexporter/internal/stats"
)

// Config configures the synthetic load driver.
type Config struct {
	// Iterations is the number of samples to record. Defaults to 100.
	Iterations int `yaml:"iterations"`

	// MaxLatency is the exclusive upper bound, in milliseconds, of the
	// generated latencies. Defaults to 20.
	MaxLatency int64 `yaml:"max_latency"`

	// Seed makes the latency sequence reproducible. Zero seeds from the
	// clock.
	Seed uint64 `yaml:"seed"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Iterations: 100,
		MaxLatency: 20,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Iterations < 0 {
		return fmt.Errorf("driver.iterations must not be negative")
	}

	if c.MaxLatency <= 0 {
		return fmt.Errorf("driver.max_latency must be positive")
	}

	return nil
}

// Recorder accepts measurements.
type Recorder interface {
	Record(ctx context.Context, m stats.Measure, value int64, attrs ...attribute.KeyValue)
}

// Result summarises a driver run.
type Result struct {
	Recorded    int
	Interrupted bool
}

// Driver records synthetic latency samples, sleeping for each sample's
// latency before drawing the next.
type Driver struct {
	log      logrus.FieldLogger
	cfg      Config
	recorder Recorder
	measure  stats.Measure
	clock    clock.Clock
	rng      *rand.Rand
	health   *export.HealthMetrics
}

// New creates a Driver. health may be nil.
func New(
	log logrus.FieldLogger,
	cfg Config,
	recorder Recorder,
	measure stats.Measure,
	clk clock.Clock,
	health *export.HealthMetrics,
) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(clk.Now().UnixNano())
	}

	return &Driver{
		log:      log.WithField("component", "driver"),
		cfg:      cfg,
		recorder: recorder,
		measure:  measure,
		clock:    clk,
		rng:      rand.New(rand.NewPCG(seed, seed>>1|1)),
		health:   health,
	}, nil
}

// Run records cfg.Iterations samples. Cancellation of ctx while sleeping
// ends the run early; that is reported in the Result, not as an error.
func (d *Driver) Run(ctx context.Context) (Result, error) {
	var res Result

	d.log.WithFields(logrus.Fields{
		"iterations":  d.cfg.Iterations,
		"max_latency": d.cfg.MaxLatency,
		"measure":     d.measure.Name,
	}).Info("Driver started")

	for i := 0; i < d.cfg.Iterations; i++ {
		latency := d.rng.Int64N(d.cfg.MaxLatency)

		d.recorder.Record(ctx, d.measure, latency)
		res.Recorded++

		err := d.clock.Sleep(ctx, time.Duration(latency)*time.Millisecond)
		if err == nil {
			continue
		}

		if errors.Is(err, context.Canceled) ||
			errors.Is(err, context.DeadlineExceeded) {
			res.Interrupted = true

			if d.health != nil {
				d.health.DriverInterruptions.Inc()
			}

			d.log.WithError(err).
				WithField("recorded", res.Recorded).
				Info("Driver interrupted")

			return res, nil
		}

		return res, fmt.Errorf("sleeping after sample %d: %w", i+1, err)
	}

	d.log.WithField("recorded", res.Recorded).Info("Driver finished")

	return res, nil
}
