package montecarlo

import (
	"math"
	"sort"

	"RegimeLab/internal/domain/models"
)

// CalculateStatistics summarises final equity, total return and max
// drawdown across runs.
func CalculateStatistics(runs []models.SimulationRun) models.MonteCarloStats {
	n := len(runs)
	st := models.MonteCarloStats{NumSimulations: n}
	if n == 0 {
		return st
	}
	finals := make([]float64, n)
	rets := make([]float64, n)
	dds := make([]float64, n)
	var profit, loss int
	for i, r := range runs {
		finals[i], rets[i], dds[i] = r.FinalEquity, r.TotalReturn, r.MaxDrawdown
		switch {
		case r.TotalReturn > 0:
			profit++
		case r.TotalReturn < 0:
			loss++
		}
	}
	st.FinalEquity = Summarize(finals)
	st.TotalReturn = Summarize(rets)
	st.MaxDrawdown = Summarize(dds)
	st.ProbabilityOfProfit = float64(profit) / float64(n)
	st.ProbabilityOfLoss = float64(loss) / float64(n)
	return st
}

// Summarize returns the percentile summary of values. values is not
// modified.
func Summarize(values []float64) models.PercentileStats {
	if len(values) == 0 {
		return models.PercentileStats{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return models.PercentileStats{
		Min:    sorted[0],
		P5:     Percentile(sorted, 5),
		P25:    Percentile(sorted, 25),
		Median: Percentile(sorted, 50),
		P75:    Percentile(sorted, 75),
		P95:    Percentile(sorted, 95),
		Max:    sorted[len(sorted)-1],
		Mean:   sum / float64(len(sorted)),
	}
}

// Percentile interpolates linearly between closest ranks of an ascending
// slice. p is in [0, 100].
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return sorted[0]
	}
	p = math.Max(0, math.Min(100, p))
	rank := p / 100 * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

// RankOf is the percent of values strictly below v, ties counted half.
func RankOf(values []float64, v float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var below float64
	for _, x := range values {
		switch {
		case x < v:
			below++
		case x == v:
			below += 0.5
		}
	}
	return below / float64(len(values)) * 100
}

// Histogram splits values into bins equal-width bins between their min and
// max. When all values are equal a single bin holds everything.
func Histogram(values []float64, bins int) []models.HistogramBin {
	if len(values) == 0 || bins <= 0 {
		return []models.HistogramBin{}
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	lo, hi := sorted[0], sorted[len(sorted)-1]
	n := float64(len(sorted))
	width := (hi - lo) / float64(bins)
	if width == 0 || math.IsNaN(width) || math.IsInf(width, 0) {
		return []models.HistogramBin{{Start: lo, End: hi, Count: len(sorted), Frequency: 1}}
	}

	out := make([]models.HistogramBin, bins)
	for i := range out {
		out[i].Start = lo + float64(i)*width
		out[i].End = lo + float64(i+1)*width
	}
	out[bins-1].End = hi
	for _, v := range sorted {
		idx := int((v - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		out[idx].Count++
	}
	for i := range out {
		out[i].Frequency = float64(out[i].Count) / n
	}
	return out
}
