package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/statsexporter/internal/clock"
	"github.com/ethpandaops/statsexporter/internal/driver"
	"github.com/ethpandaops/statsexporter/internal/export"
	"github.com/ethpandaops/statsexporter/internal/stats"
)

// latencyMeasure is the measure the synthetic driver records.
var latencyMeasure = stats.NewMeasure(
	"example/latency",
	"A measure to test the exporter",
	"ms",
)

// views returns the views registered at startup.
func views() []stats.View {
	return []stats.View{
		{
			Name:        "statsexporter/latency",
			Description: "The distribution of latencies",
			Measure:     latencyMeasure,
			Aggregation: stats.Distribution(0, 5, 10, 15, 20),
		},
	}
}

// Agent is the top-level orchestrator for statsexporter.
type Agent interface {
	// Run registers the views, starts the metric pipeline and drives
	// synthetic load until it completes or ctx is cancelled. The interval
	// reader is stopped before Run returns.
	Run(ctx context.Context) (driver.Result, error)
	// Stop shuts down all components. It is safe to call more than once.
	Stop() error
	// HandleError logs and counts an error reported by the metric
	// pipeline. It has the shape of an otel.ErrorHandlerFunc.
	HandleError(err error)
}

type agent struct {
	log      logrus.FieldLogger
	cfg      *Config
	health   *export.HealthMetrics
	registry *stats.Registry
	clock    clock.Clock

	// reader drives the log exporter; readers includes it plus any
	// debug readers.
	reader  *export.IntervalReader
	readers []*export.IntervalReader
}

// New creates a new Agent.
func New(log logrus.FieldLogger, cfg *Config) (Agent, error) {
	return newAgent(log, cfg, clock.New(), os.Stdout)
}

func newAgent(
	log logrus.FieldLogger,
	cfg *Config,
	clk clock.Clock,
	stdout io.Writer,
) (*agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	health := export.NewHealthMetrics(log, cfg.Health)

	a := &agent{
		log:      log.WithField("component", "agent"),
		cfg:      cfg,
		health:   health,
		registry: stats.NewRegistry(log, health),
		clock:    clk,
	}

	a.reader = export.NewIntervalReader(
		log, "log", cfg.Exporter,
		export.NewLogExporter(log, health),
		health,
	)
	a.readers = append(a.readers, a.reader)

	if cfg.Stdout.Enabled {
		exp, err := export.NewStdoutExporter(stdout)
		if err != nil {
			_ = a.reader.Stop(context.Background())

			return nil, err
		}

		a.readers = append(a.readers, export.NewIntervalReader(
			log, "stdout", cfg.Exporter, exp, health,
		))
	}

	return a, nil
}

func (a *agent) Run(ctx context.Context) (driver.Result, error) {
	// 1. Start health metrics server.
	if err := a.health.Start(ctx); err != nil {
		return driver.Result{}, fmt.Errorf("starting health metrics: %w", err)
	}

	// 2. Register views before anything is recorded.
	for _, v := range views() {
		if err := a.registry.RegisterView(v); err != nil {
			return driver.Result{}, fmt.Errorf("registering views: %w", err)
		}
	}

	// 3. Start the registry with the readers attached.
	readers := make([]stats.Reader, len(a.readers))
	for i, r := range a.readers {
		readers[i] = r
	}

	if err := a.registry.Start(ctx, readers...); err != nil {
		return driver.Result{}, fmt.Errorf("starting registry: %w", err)
	}

	// 4. Drive synthetic load.
	d, err := driver.New(
		a.log, a.cfg.Driver, a.registry, latencyMeasure, a.clock, a.health,
	)
	if err != nil {
		return driver.Result{}, fmt.Errorf("creating driver: %w", err)
	}

	res, runErr := d.Run(ctx)

	// 5. Stop the interval reader. ctx may already be cancelled, so the
	// final export gets its own deadline.
	stopCtx, cancel := context.WithTimeout(
		context.Background(), a.cfg.Exporter.Timeout,
	)
	defer cancel()

	if err := a.reader.Stop(stopCtx); err != nil {
		return res, errors.Join(runErr, fmt.Errorf("stopping exporter: %w", err))
	}

	if runErr != nil {
		return res, fmt.Errorf("running driver: %w", runErr)
	}

	return res, nil
}

func (a *agent) Stop() error {
	ctx, cancel := context.WithTimeout(
		context.Background(), a.cfg.Exporter.Timeout,
	)
	defer cancel()

	var errs []error

	if err := a.registry.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down registry: %w", err))
	}

	// Readers not attached to the registry (failed startup) still run.
	for _, r := range a.readers {
		if err := r.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if err := a.health.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stopping health metrics: %w", err))
	}

	return errors.Join(errs...)
}

func (a *agent) HandleError(err error) {
	a.health.ExportErrors.Inc()
	a.log.WithError(err).Error("Metric pipeline error")
}
