package stats

import (
	"fmt"
	"math"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/ethpandaops/statsexporter/internal/bucket"
)

// AggregationKind selects how recorded values are combined.
type AggregationKind int

const (
	// AggregationDistribution buckets values over explicit bounds.
	AggregationDistribution AggregationKind = iota + 1
	// AggregationSum keeps a running total.
	AggregationSum
)

// String returns the aggregation name.
func (k AggregationKind) String() string {
	switch k {
	case AggregationDistribution:
		return "distribution"
	case AggregationSum:
		return "sum"
	default:
		return "unknown"
	}
}

// Aggregation is the policy a view applies to its measure.
type Aggregation struct {
	Kind   AggregationKind
	Bounds []float64
}

// Distribution returns a bucketed aggregation. Bucket i counts values in
// [bounds[i-1], bounds[i]); values below the first bound land in an
// underflow bucket and values at or above the last bound in an overflow
// bucket.
func Distribution(bounds ...float64) Aggregation {
	return Aggregation{
		Kind:   AggregationDistribution,
		Bounds: slices.Clone(bounds),
	}
}

// Sum returns a running-total aggregation.
func Sum() Aggregation {
	return Aggregation{Kind: AggregationSum}
}

func (a Aggregation) validate() error {
	switch a.Kind {
	case AggregationDistribution:
		for i, b := range a.Bounds {
			if math.IsNaN(b) || math.IsInf(b, 0) {
				return fmt.Errorf("bucket bounds must be finite, got %v", a.Bounds)
			}

			if i > 0 && b <= a.Bounds[i-1] {
				return fmt.Errorf(
					"bucket bounds must be strictly increasing, got %v", a.Bounds,
				)
			}
		}

		return nil
	case AggregationSum:
		return nil
	default:
		return fmt.Errorf("unsupported aggregation kind %d", a.Kind)
	}
}

func (a Aggregation) sdk() sdkmetric.Aggregation {
	if a.Kind == AggregationSum {
		return sdkmetric.AggregationSum{}
	}

	return sdkmetric.AggregationExplicitBucketHistogram{
		Boundaries: bucket.ToSDK(a.Bounds),
	}
}

// View binds a measure to an aggregation and a set of grouping keys.
type View struct {
	Name        string
	Description string
	Measure     Measure
	Aggregation Aggregation
	// Columns are the attribute keys kept on recorded values. Any other
	// attribute is dropped.
	Columns []string
}

// Validate checks the view is complete and consistent.
func (v View) Validate() error {
	if v.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidView)
	}

	if err := v.Measure.Validate(); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidView, v.Name, err)
	}

	if err := v.Aggregation.validate(); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidView, v.Name, err)
	}

	return nil
}

func (v View) equal(o View) bool {
	return v.Name == o.Name &&
		v.Description == o.Description &&
		v.Measure == o.Measure &&
		v.Aggregation.Kind == o.Aggregation.Kind &&
		slices.Equal(v.Aggregation.Bounds, o.Aggregation.Bounds) &&
		slices.Equal(v.Columns, o.Columns)
}

// sdkView translates the view into the SDK's instrument-matching view.
func (v View) sdkView() sdkmetric.View {
	keys := make([]attribute.Key, len(v.Columns))
	for i, c := range v.Columns {
		keys[i] = attribute.Key(c)
	}

	return sdkmetric.NewView(
		sdkmetric.Instrument{Name: v.Measure.Name},
		sdkmetric.Stream{
			Name:            v.Name,
			Description:     v.Description,
			Unit:            v.Measure.Unit,
			Aggregation:     v.Aggregation.sdk(),
			AttributeFilter: attribute.NewAllowKeysFilter(keys...),
		},
	)
}
