package stats

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/ethpandaops/statsexporter/internal/version"
)

// scopeName is the instrumentation scope of every instrument the registry
// creates.
const scopeName = "github.com/ethpandaops/statsexporter/internal/stats"

var (
	ErrInvalidView     = errors.New("invalid view")
	ErrViewConflict    = errors.New("view already registered with a different definition")
	ErrRegistrySealed  = errors.New("registry is sealed")
	ErrRegistryStarted = errors.New("registry already started")
	ErrRegistryClosed  = errors.New("registry is shut down")
)

// Counters is notified of every measurement the registry accepts or drops.
type Counters interface {
	MeasurementRecorded(measure string)
	MeasurementDropped(reason string)
}

type nopCounters struct{}

func (nopCounters) MeasurementRecorded(string) {}
func (nopCounters) MeasurementDropped(string)  {}

// Reader is a metric reader whose lifecycle the registry owns once started.
type Reader interface {
	// Name returns the reader's identifier for logging.
	Name() string
	// MetricReader returns the SDK reader to attach to the meter provider.
	MetricReader() sdkmetric.Reader
	// Stop halts the reader. It must be safe to call more than once.
	Stop(ctx context.Context) error
}

// Registry holds the registered views and the meter provider that
// aggregates recorded measurements. Views are registered before Start;
// measurements are accepted between Start and Shutdown.
type Registry struct {
	log      logrus.FieldLogger
	counters Counters

	mu       sync.Mutex
	views    map[string]View
	order    []string
	readers  []Reader
	provider *sdkmetric.MeterProvider

	// instruments is written once in Start before started is set.
	instruments map[string]metric.Int64Histogram

	started atomic.Bool
	closed  atomic.Bool
}

// NewRegistry creates an empty registry. counters may be nil.
func NewRegistry(log logrus.FieldLogger, counters Counters) *Registry {
	if counters == nil {
		counters = nopCounters{}
	}

	return &Registry{
		log:      log.WithField("component", "registry"),
		counters: counters,
		views:    make(map[string]View, 4),
	}
}

// RegisterView adds a view. Registering an identical view twice is a no-op.
func (r *Registry) RegisterView(v View) error {
	if err := v.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.provider != nil || r.closed.Load() {
		return fmt.Errorf("registering view %q: %w", v.Name, ErrRegistrySealed)
	}

	if existing, ok := r.views[v.Name]; ok {
		if existing.equal(v) {
			return nil
		}

		return fmt.Errorf("registering view %q: %w", v.Name, ErrViewConflict)
	}

	v.Columns = append([]string(nil), v.Columns...)
	r.views[v.Name] = v
	r.order = append(r.order, v.Name)

	r.log.WithFields(logrus.Fields{
		"view":        v.Name,
		"measure":     v.Measure.Name,
		"aggregation": v.Aggregation.Kind,
		"columns":     v.Columns,
	}).Debug("Registered view")

	return nil
}

// Views returns the registered views in registration order.
func (r *Registry) Views() []View {
	r.mu.Lock()
	defer r.mu.Unlock()

	views := make([]View, 0, len(r.order))
	for _, name := range r.order {
		views = append(views, r.views[name])
	}

	return views
}

// Start builds the meter provider with the registered views and attaches
// readers. It may only be called once; afterwards no more views can be
// registered.
func (r *Registry) Start(ctx context.Context, readers ...Reader) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed.Load() {
		return ErrRegistryClosed
	}

	if r.provider != nil {
		return ErrRegistryStarted
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(version.ResourceAttributes(uuid.NewString())...),
	)
	if err != nil {
		return fmt.Errorf("creating resource: %w", err)
	}

	opts := make([]sdkmetric.Option, 0, 1+len(r.order)+len(readers))
	opts = append(opts, sdkmetric.WithResource(res))

	for _, name := range r.order {
		opts = append(opts, sdkmetric.WithView(r.views[name].sdkView()))
	}

	for _, rd := range readers {
		opts = append(opts, sdkmetric.WithReader(rd.MetricReader()))
	}

	r.provider = sdkmetric.NewMeterProvider(opts...)
	r.readers = readers

	meter := r.provider.Meter(
		scopeName,
		metric.WithInstrumentationVersion(version.Release),
	)

	instruments := make(map[string]metric.Int64Histogram, len(r.order))

	for _, name := range r.order {
		m := r.views[name].Measure
		if _, ok := instruments[m.Name]; ok {
			continue
		}

		inst, err := meter.Int64Histogram(
			m.Name,
			metric.WithDescription(m.Description),
			metric.WithUnit(m.Unit),
		)
		if err != nil {
			return fmt.Errorf("creating instrument for measure %q: %w", m.Name, err)
		}

		instruments[m.Name] = inst
	}

	r.instruments = instruments
	r.started.Store(true)

	readerNames := make([]string, len(readers))
	for i, rd := range readers {
		readerNames[i] = rd.Name()
	}

	r.log.WithFields(logrus.Fields{
		"views":   len(r.order),
		"readers": readerNames,
	}).Info("Registry started")

	return nil
}

// Record forwards value for measure m to the aggregation engine. Values
// for measures without a registered view, or recorded outside the
// Start/Shutdown window, are dropped.
func (r *Registry) Record(
	ctx context.Context,
	m Measure,
	value int64,
	attrs ...attribute.KeyValue,
) {
	if !r.started.Load() {
		r.drop(m, "not_started")

		return
	}

	if r.closed.Load() {
		r.drop(m, "closed")

		return
	}

	inst, ok := r.instruments[m.Name]
	if !ok {
		r.drop(m, "no_view")

		return
	}

	inst.Record(ctx, value, metric.WithAttributes(attrs...))

	r.counters.MeasurementRecorded(m.Name)
}

func (r *Registry) drop(m Measure, reason string) {
	r.counters.MeasurementDropped(reason)

	r.log.WithFields(logrus.Fields{
		"measure": m.Name,
		"reason":  reason,
	}).Debug("Dropped measurement")
}

// Shutdown stops accepting measurements and stops every attached reader.
// It is safe to call more than once.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()

	if r.closed.Swap(true) {
		r.mu.Unlock()

		return nil
	}

	readers := r.readers
	r.mu.Unlock()

	var errs []error

	for _, rd := range readers {
		if err := rd.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("reader %s: %w", rd.Name(), err))
		}
	}

	r.log.Debug("Registry shut down")

	return errors.Join(errs...)
}
