package export

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/ethpandaops/statsexporter/internal/bucket"
)

// Type is the kind of values a metric carries.
type Type int

const (
	TypeUnspecified Type = iota
	TypeGaugeInt64
	TypeGaugeDouble
	TypeCumulativeInt64
	TypeCumulativeDouble
	TypeCumulativeDistribution
	TypeDeltaInt64
	TypeDeltaDouble
	TypeDeltaDistribution
)

var typeNames = map[Type]string{
	TypeUnspecified:            "UNSPECIFIED",
	TypeGaugeInt64:             "GAUGE_INT64",
	TypeGaugeDouble:            "GAUGE_DOUBLE",
	TypeCumulativeInt64:        "CUMULATIVE_INT64",
	TypeCumulativeDouble:       "CUMULATIVE_DOUBLE",
	TypeCumulativeDistribution: "CUMULATIVE_DISTRIBUTION",
	TypeDeltaInt64:             "DELTA_INT64",
	TypeDeltaDouble:            "DELTA_DOUBLE",
	TypeDeltaDistribution:      "DELTA_DISTRIBUTION",
}

// String returns the upper-case type name.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}

	return typeNames[TypeUnspecified]
}

// Descriptor describes a metric and the label keys of its series.
type Descriptor struct {
	Name        string
	Description string
	Unit        string
	Type        Type
	LabelKeys   []string
}

// LabelValue is one label value of a series. Present is false when the
// series has no attribute for the corresponding key.
type LabelValue struct {
	Value   string
	Present bool
}

// Value is an aggregated point value.
type Value interface {
	String() string
}

// Int64Value is an integer point value.
type Int64Value int64

func (v Int64Value) String() string {
	return strconv.FormatInt(int64(v), 10)
}

// Float64Value is a floating point value.
type Float64Value float64

func (v Float64Value) String() string {
	return strconv.FormatFloat(float64(v), 'g', -1, 64)
}

// Distribution is a bucketed point value. BucketCounts has one more entry
// than Bounds; bucket i holds values in [Bounds[i-1], Bounds[i]).
type Distribution struct {
	Count        uint64
	Sum          float64
	Bounds       []float64
	BucketCounts []uint64
}

func (d Distribution) String() string {
	return fmt.Sprintf(
		"Distribution{count=%d, sum=%s, bounds=%v, buckets=%v}",
		d.Count,
		strconv.FormatFloat(d.Sum, 'g', -1, 64),
		d.Bounds,
		d.BucketCounts,
	)
}

// Point is one timestamped value of a series.
type Point struct {
	Time  time.Time
	Value Value
}

// TimeSeries is one labelled sequence of points.
type TimeSeries struct {
	Start       time.Time
	LabelValues []LabelValue
	Points      []Point
}

// Metric is a point-in-time snapshot of one aggregated stream.
type Metric struct {
	Descriptor Descriptor
	TimeSeries []TimeSeries
}

// FromResourceMetrics converts collected SDK data into metric snapshots.
// The names of metrics with aggregations that cannot be represented are
// returned separately.
func FromResourceMetrics(rm *metricdata.ResourceMetrics) ([]Metric, []string) {
	if rm == nil {
		return nil, nil
	}

	var (
		metrics []Metric
		skipped []string
	)

	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			converted, ok := fromMetrics(m)
			if !ok {
				skipped = append(skipped, m.Name)

				continue
			}

			metrics = append(metrics, converted)
		}
	}

	return metrics, skipped
}

func fromMetrics(m metricdata.Metrics) (Metric, bool) {
	desc := Descriptor{
		Name:        m.Name,
		Description: m.Description,
		Unit:        m.Unit,
	}

	switch data := m.Data.(type) {
	case metricdata.Gauge[int64]:
		desc.Type = TypeGaugeInt64

		return numberMetric(desc, data.DataPoints, func(v int64) Value {
			return Int64Value(v)
		}), true
	case metricdata.Gauge[float64]:
		desc.Type = TypeGaugeDouble

		return numberMetric(desc, data.DataPoints, func(v float64) Value {
			return Float64Value(v)
		}), true
	case metricdata.Sum[int64]:
		desc.Type = pick(data.Temporality, TypeCumulativeInt64, TypeDeltaInt64)

		return numberMetric(desc, data.DataPoints, func(v int64) Value {
			return Int64Value(v)
		}), true
	case metricdata.Sum[float64]:
		desc.Type = pick(data.Temporality, TypeCumulativeDouble, TypeDeltaDouble)

		return numberMetric(desc, data.DataPoints, func(v float64) Value {
			return Float64Value(v)
		}), true
	case metricdata.Histogram[int64]:
		desc.Type = pick(data.Temporality,
			TypeCumulativeDistribution, TypeDeltaDistribution)

		return histogramMetric(desc, data.DataPoints), true
	case metricdata.Histogram[float64]:
		desc.Type = pick(data.Temporality,
			TypeCumulativeDistribution, TypeDeltaDistribution)

		return histogramMetric(desc, data.DataPoints), true
	default:
		return Metric{}, false
	}
}

func pick(t metricdata.Temporality, cumulative, delta Type) Type {
	if t == metricdata.DeltaTemporality {
		return delta
	}

	return cumulative
}

func numberMetric[N int64 | float64](
	desc Descriptor,
	dps []metricdata.DataPoint[N],
	value func(N) Value,
) Metric {
	sets := make([]attribute.Set, len(dps))
	for i := range dps {
		sets[i] = dps[i].Attributes
	}

	desc.LabelKeys = labelKeys(sets)

	series := make([]TimeSeries, 0, len(dps))
	for _, dp := range dps {
		series = append(series, TimeSeries{
			Start:       dp.StartTime,
			LabelValues: labelValues(desc.LabelKeys, dp.Attributes),
			Points: []Point{{
				Time:  dp.Time,
				Value: value(dp.Value),
			}},
		})
	}

	sortSeries(series)

	return Metric{Descriptor: desc, TimeSeries: series}
}

// histogramMetric translates SDK histogram points. Their boundaries are the
// shifted bounds built by bucket.ToSDK and are reported as declared.
func histogramMetric[N int64 | float64](
	desc Descriptor,
	dps []metricdata.HistogramDataPoint[N],
) Metric {
	sets := make([]attribute.Set, len(dps))
	for i := range dps {
		sets[i] = dps[i].Attributes
	}

	desc.LabelKeys = labelKeys(sets)

	series := make([]TimeSeries, 0, len(dps))
	for _, dp := range dps {
		dist := Distribution{
			Count:        dp.Count,
			Sum:          float64(dp.Sum),
			Bounds:       bucket.FromSDK(dp.Bounds),
			BucketCounts: append([]uint64(nil), dp.BucketCounts...),
		}

		series = append(series, TimeSeries{
			Start:       dp.StartTime,
			LabelValues: labelValues(desc.LabelKeys, dp.Attributes),
			Points: []Point{{
				Time:  dp.Time,
				Value: dist,
			}},
		})
	}

	sortSeries(series)

	return Metric{Descriptor: desc, TimeSeries: series}
}

// labelKeys returns the sorted union of attribute keys across sets.
func labelKeys(sets []attribute.Set) []string {
	seen := make(map[string]struct{})

	for i := range sets {
		iter := sets[i].Iter()
		for iter.Next() {
			seen[string(iter.Attribute().Key)] = struct{}{}
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// labelValues aligns a series' attributes to the descriptor keys.
func labelValues(keys []string, set attribute.Set) []LabelValue {
	values := make([]LabelValue, len(keys))

	for i, k := range keys {
		v, ok := set.Value(attribute.Key(k))
		if !ok {
			continue
		}

		values[i] = LabelValue{Value: v.Emit(), Present: true}
	}

	return values
}

// sortSeries orders series by label values for stable output.
func sortSeries(series []TimeSeries) {
	sort.SliceStable(series, func(i, j int) bool {
		return seriesKey(series[i]) < seriesKey(series[j])
	})
}

func seriesKey(ts TimeSeries) string {
	parts := make([]string, len(ts.LabelValues))
	for i, lv := range ts.LabelValues {
		parts[i] = lv.Value
	}

	return strings.Join(parts, "\x00")
}
