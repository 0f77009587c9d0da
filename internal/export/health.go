package export

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// HealthConfig configures the Prometheus health metrics server.
type HealthConfig struct {
	// Addr is the listen address for the health metrics server.
	// Empty disables the server; the metrics are still collected.
	Addr string `yaml:"addr"`
}

// HealthMetrics exposes Prometheus metrics describing the exporter itself.
type HealthMetrics struct {
	log      logrus.FieldLogger
	addr     string
	server   *http.Server
	listener net.Listener
	registry *prometheus.Registry

	// Recording
	MeasurementsRecorded *prometheus.CounterVec // measure
	MeasurementsDropped  *prometheus.CounterVec // reason

	// Export
	ExportCycles    prometheus.Counter
	ExportErrors    prometheus.Counter
	MetricsExported prometheus.Counter
	SeriesExported  prometheus.Counter
	ExportDuration  prometheus.Histogram

	// Readers
	ReadersRunning *prometheus.GaugeVec // reader

	// Driver
	DriverInterruptions prometheus.Counter

	running atomic.Bool
}

// NewHealthMetrics creates a new health metrics server.
func NewHealthMetrics(
	log logrus.FieldLogger,
	cfg HealthConfig,
) *HealthMetrics {
	reg := prometheus.NewRegistry()

	h := &HealthMetrics{
		log:      log.WithField("component", "health"),
		addr:     cfg.Addr,
		registry: reg,

		MeasurementsRecorded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "statsexporter",
				Name:      "measurements_recorded_total",
				Help:      "Total measurements forwarded to the aggregation engine by measure.",
			},
			[]string{"measure"},
		),
		MeasurementsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "statsexporter",
				Name:      "measurements_dropped_total",
				Help:      "Total measurements dropped before aggregation by reason.",
			},
			[]string{"reason"},
		),
		ExportCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "statsexporter",
			Name:      "export_cycles_total",
			Help:      "Total export calls received from metric readers.",
		}),
		ExportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "statsexporter",
			Name:      "export_errors_total",
			Help:      "Total errors reported by the metric pipeline.",
		}),
		MetricsExported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "statsexporter",
			Name:      "metrics_exported_total",
			Help:      "Total metric snapshots rendered.",
		}),
		SeriesExported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "statsexporter",
			Name:      "series_exported_total",
			Help:      "Total time series rendered.",
		}),
		ExportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "statsexporter",
			Name:      "export_duration_seconds",
			Help:      "Time spent translating and rendering one export batch.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05}, // 100us-50ms
		}),
		ReadersRunning: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "statsexporter",
				Name:      "readers_running",
				Help:      "Whether an interval reader is running (1=yes, 0=no).",
			},
			[]string{"reader"},
		),
		DriverInterruptions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "statsexporter",
			Name:      "driver_interruptions_total",
			Help:      "Total synthetic driver runs ended by interruption.",
		}),
	}

	reg.MustRegister(
		h.MeasurementsRecorded,
		h.MeasurementsDropped,
		h.ExportCycles,
		h.ExportErrors,
		h.MetricsExported,
		h.SeriesExported,
		h.ExportDuration,
		h.ReadersRunning,
		h.DriverInterruptions,
	)

	return h
}

// MeasurementRecorded counts a measurement forwarded for aggregation.
func (h *HealthMetrics) MeasurementRecorded(measure string) {
	h.MeasurementsRecorded.WithLabelValues(measure).Inc()
}

// MeasurementDropped counts a measurement dropped before aggregation.
func (h *HealthMetrics) MeasurementDropped(reason string) {
	h.MeasurementsDropped.WithLabelValues(reason).Inc()
}

// Enabled reports whether the health server has a listen address.
func (h *HealthMetrics) Enabled() bool {
	return h.addr != ""
}

// Start begins serving the /metrics endpoint.
func (h *HealthMetrics) Start(_ context.Context) error {
	if !h.Enabled() {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		h.registry,
		promhttp.HandlerOpts{},
	))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", h.addr, err)
	}

	h.listener = ln

	h.server = &http.Server{
		Handler: mux,
	}

	h.running.Store(true)

	go func() {
		h.log.WithField("addr", ln.Addr().String()).
			Info("Health metrics server started")

		if err := h.server.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			h.log.WithError(err).
				Error("Health metrics server error")
		}

		h.running.Store(false)
	}()

	return nil
}

// Addr returns the actual listener address. Useful when started
// with ":0" to get the OS-assigned port.
func (h *HealthMetrics) Addr() string {
	if h.listener != nil {
		return h.listener.Addr().String()
	}

	return h.addr
}

// Stop shuts down the health metrics server. It is safe to call more
// than once.
func (h *HealthMetrics) Stop() error {
	srv := h.server
	if srv == nil {
		return nil
	}

	h.server = nil

	return srv.Close()
}
