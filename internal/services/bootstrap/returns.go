package bootstrap

import (
	"fmt"
	"math"
	"sort"

	"RegimeLab/internal/domain/models"
)

const (
	// DefaultVolatilityWindow is the rolling window used for regime detection.
	DefaultVolatilityWindow = 30

	minReturn = -0.99
	maxReturn = 10.0
)

// CalculateReturns returns close-to-close simple returns, one per candle.
// The first entry is always absent; an invalid price on either side also
// yields an absent return.
func CalculateReturns(candles []models.Candle) []models.OptFloat {
	out := make([]models.OptFloat, len(candles))
	for i := 1; i < len(candles); i++ {
		prev, cur := candles[i-1].Close, candles[i].Close
		if !models.ValidPrice(prev) || !models.ValidPrice(cur) {
			continue
		}
		r := cur/prev - 1
		if math.IsNaN(r) || math.IsInf(r, 0) {
			continue
		}
		out[i] = models.Some(clampReturn(r))
	}
	return out
}

func clampReturn(r float64) float64 {
	if r < minReturn {
		return minReturn
	}
	if r > maxReturn {
		return maxReturn
	}
	return r
}

// RollingVolatility computes the sample standard deviation of returns over a
// trailing window. A position is absent during warm-up and whenever fewer
// than ceil(window/2) returns in the window are present.
func RollingVolatility(returns []models.OptFloat, window int) ([]models.OptFloat, error) {
	if window < 2 {
		return nil, fmt.Errorf("volatility window %d: %w", window, ErrInvalidArgument)
	}
	minValid := (window + 1) / 2
	if minValid < 2 {
		minValid = 2
	}

	out := make([]models.OptFloat, len(returns))
	buf := make([]float64, 0, window)
	for i := window - 1; i < len(returns); i++ {
		buf = buf[:0]
		for _, r := range returns[i-window+1 : i+1] {
			if r.Valid {
				buf = append(buf, r.Value)
			}
		}
		if len(buf) < minValid {
			continue
		}
		out[i] = models.FiniteOrNone(sampleStd(buf))
	}
	return out, nil
}

// PercentileRanks maps every present value to its percentile rank among all
// present values, counting ties at their midpoint. Ranks are capped at 99.99.
func PercentileRanks(values []models.OptFloat) []models.OptFloat {
	sorted := make([]float64, 0, len(values))
	for _, v := range values {
		if v.Valid {
			sorted = append(sorted, v.Value)
		}
	}
	out := make([]models.OptFloat, len(values))
	if len(sorted) == 0 {
		return out
	}
	sort.Float64s(sorted)
	total := float64(len(sorted))

	for i, v := range values {
		if !v.Valid {
			continue
		}
		less := sort.SearchFloat64s(sorted, v.Value)
		lessEq := sort.Search(len(sorted), func(k int) bool { return sorted[k] > v.Value })
		rank := float64(less+lessEq) / 2 / total * 100
		out[i] = models.Some(math.Min(rank, 99.99))
	}
	return out
}

// BucketizeByPercentile converts ranks into integer regime buckets of
// bucketSize percentage points each.
func BucketizeByPercentile(ranks []models.OptFloat, bucketSize float64) ([]models.OptInt, error) {
	if !(bucketSize > 0 && bucketSize <= 100) {
		return nil, fmt.Errorf("bucket size %g must be in (0, 100]: %w", bucketSize, ErrInvalidArgument)
	}
	out := make([]models.OptInt, len(ranks))
	for i, r := range ranks {
		if !r.Valid {
			continue
		}
		out[i] = models.Some(int(math.Floor(r.Value / bucketSize)))
	}
	return out, nil
}

// NumBuckets is the number of distinct buckets a bucket size can produce.
func NumBuckets(bucketSize float64) int {
	if !(bucketSize > 0 && bucketSize <= 100) {
		return 0
	}
	return int(math.Ceil(100 / bucketSize))
}

func sampleStd(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(n)
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}
