// Package stats provides the descriptive statistics primitives used by the
// aggregator and the statistics store. All functions are pure.
package stats

import (
	"math"
	"sort"
)

// z95 is the two-sided z value for a 95% confidence interval under the
// normal approximation.
const z95 = 1.96

// Mean returns the arithmetic mean, or 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Median returns the median, or 0 for an empty slice. The input is not
// modified.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// StdDev returns the sample standard deviation (n-1 denominator), or 0 when
// fewer than two values are given.
func StdDev(values []float64) float64 {
	n := len(values)
	if n < 2 {
		return 0
	}
	mean := Mean(values)
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// CoefficientOfVariation returns stddev/mean, or nil when mean is zero so a
// divide-by-zero can never propagate as NaN or Inf.
func CoefficientOfVariation(stddev, mean float64) *float64 {
	if mean == 0 {
		return nil
	}
	cv := stddev / mean
	return &cv
}

// ConfidenceInterval95 returns the normal-approximation 95% confidence
// interval bounds for the mean, or (nil, nil) when n < minSample.
func ConfidenceInterval95(mean, stddev float64, n, minSample int) (low, high *float64) {
	if n < minSample || n <= 0 {
		return nil, nil
	}
	margin := z95 * stddev / math.Sqrt(float64(n))
	l, h := mean-margin, mean+margin
	return &l, &h
}

// WeightedMean combines per-group means by their sample sizes. Returns 0
// when the total weight is zero.
func WeightedMean(means []float64, weights []int) float64 {
	var sum float64
	var total int
	for i, m := range means {
		sum += m * float64(weights[i])
		total += weights[i]
	}
	if total == 0 {
		return 0
	}
	return sum / float64(total)
}

// PooledStdDev combines per-group standard deviations into a single spread
// estimate via the sample-size-weighted average of variances.
func PooledStdDev(stddevs []float64, weights []int) float64 {
	var sum float64
	var total int
	for i, s := range stddevs {
		sum += s * s * float64(weights[i])
		total += weights[i]
	}
	if total == 0 {
		return 0
	}
	return math.Sqrt(sum / float64(total))
}
