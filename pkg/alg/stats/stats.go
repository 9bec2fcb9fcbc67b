// Package stats provides the small descriptive statistics shared by the
// control limits and the report KPIs. Variances are sample variances
// (÷(n−1)).
package stats

import (
	"cmp"
	"math"
	"slices"
)

// Mean returns the arithmetic mean of values, or 0 for an empty slice.
func Mean(values []float64) float64 {
	mean, _ := MeanVariance(values)

	return mean
}

// MeanVariance returns the mean and sample variance of values in a single
// Welford pass. The variance is 0 for fewer than two values.
func MeanVariance(values []float64) (mean, variance float64) {
	var m2 float64

	for i, v := range values {
		delta := v - mean
		mean += delta / float64(i+1)
		m2 += delta * (v - mean)
	}

	if len(values) < 2 {
		return mean, 0
	}

	return mean, m2 / float64(len(values)-1)
}

// Percentile returns the p-th quantile of values, p in [0, 1], linearly
// interpolated between order statistics. p outside the range is clamped.
// values is not reordered. Returns 0 for an empty slice.
func Percentile(values []float64, p float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}

	sorted := slices.Clone(values)
	slices.Sort(sorted)

	pos := Clamp(p, 0, 1) * float64(n-1)
	lo := int(math.Floor(pos))

	if lo >= n-1 {
		return sorted[n-1]
	}

	frac := pos - float64(lo)

	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}

// Clamp restricts val to [lo, hi].
func Clamp[T cmp.Ordered](val, lo, hi T) T {
	return max(lo, min(val, hi))
}

// Mode returns the most frequent element of values and its count. Ties
// resolve to the smallest element, so the result does not depend on input
// order. Returns the zero value and 0 for an empty slice.
func Mode[T cmp.Ordered](values []T) (mode T, count int) {
	counts := make(map[T]int, len(values))

	for _, v := range values {
		counts[v]++
	}

	for v, c := range counts {
		if c > count || (c == count && v < mode) {
			mode, count = v, c
		}
	}

	return mode, count
}
