// Package bucket maps distribution bucket bounds onto the OpenTelemetry
// SDK's explicit bucket boundaries.
//
// A distribution declared with bounds b counts a value x in bucket i when
// b[i-1] <= x < b[i]: lower bounds are inclusive. The SDK's explicit
// bucket histogram is upper-inclusive (b[i-1] < x <= b[i]). Shifting every
// bound down to the next representable float64 makes the two agree for
// every value, since x <= prev(b) holds exactly when x < b.
package bucket

import "math"

// ToSDK returns the SDK boundaries that reproduce lower-inclusive buckets
// over bounds.
func ToSDK(bounds []float64) []float64 {
	if bounds == nil {
		return nil
	}

	out := make([]float64, len(bounds))
	for i, b := range bounds {
		out[i] = math.Nextafter(b, math.Inf(-1))
	}

	return out
}

// FromSDK recovers the declared bounds from boundaries built by ToSDK.
func FromSDK(boundaries []float64) []float64 {
	if boundaries == nil {
		return nil
	}

	out := make([]float64, len(boundaries))
	for i, b := range boundaries {
		v := math.Nextafter(b, math.Inf(1))
		// Stepping up from the smallest negative subnormal yields -0.
		if v == 0 {
			v = 0
		}

		out[i] = v
	}

	return out
}

// Index returns the bucket a value falls in for the declared bounds. The
// result is in [0, len(bounds)]; 0 is the underflow bucket and len(bounds)
// the overflow bucket.
func Index(bounds []float64, x float64) int {
	for i, b := range bounds {
		if x < b {
			return i
		}
	}

	return len(bounds)
}
