package montecarlo

import (
	"fmt"
	"math"

	"RegimeLab/internal/domain/models"
	"RegimeLab/internal/services/bootstrap"
)

// DefaultBins is the histogram resolution used when none is given.
const DefaultBins = 25

type options struct {
	bins        int
	includeRuns bool
}

// Option customises a Monte Carlo batch.
type Option func(*options)

// WithBins sets the histogram bin count.
func WithBins(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bins = n
		}
	}
}

// WithRuns keeps every run, equity curve included, in the result.
func WithRuns(include bool) Option {
	return func(o *options) { o.includeRuns = include }
}

// RunSimulation compounds a seeded permutation of tradeReturns from
// initialCapital. The values are never changed, only their order.
func RunSimulation(tradeReturns []float64, initialCapital float64, seed int64) models.SimulationRun {
	order := make([]float64, len(tradeReturns))
	copy(order, tradeReturns)
	bootstrap.Shuffle(order, bootstrap.NewMulberry32(seed))

	equity := make([]float64, 0, len(order)+1)
	equity = append(equity, initialCapital)
	cur, peak, maxDD := initialCapital, initialCapital, 0.0
	for _, r := range order {
		next := cur * (1 + r)
		if !math.IsNaN(next) && !math.IsInf(next, 0) {
			cur = math.Max(0, next)
		}
		equity = append(equity, cur)
		if cur > peak {
			peak = cur
		}
		if peak > 0 {
			maxDD = math.Max(maxDD, (peak-cur)/peak)
		}
	}

	run := models.SimulationRun{
		Seed:        seed,
		Equity:      equity,
		FinalEquity: cur,
		MaxDrawdown: maxDD,
	}
	if initialCapital > 0 {
		run.TotalReturn = cur/initialCapital - 1
	}
	return run
}

// RunMonteCarlo executes numSimulations permutations, run i seeded with
// baseSeed + i*1000, and aggregates them.
func RunMonteCarlo(tradeReturns []float64, initialCapital float64, numSimulations int, baseSeed int64, opts ...Option) (*models.MonteCarloResult, error) {
	o := options{bins: DefaultBins}
	for _, opt := range opts {
		opt(&o)
	}
	if numSimulations <= 0 {
		return nil, fmt.Errorf("numSimulations %d: %w", numSimulations, bootstrap.ErrInvalidArgument)
	}
	if !(initialCapital > 0) || math.IsInf(initialCapital, 0) {
		return nil, fmt.Errorf("initial capital %g: %w", initialCapital, bootstrap.ErrInvalidArgument)
	}

	runs := make([]models.SimulationRun, numSimulations)
	for i := range runs {
		runs[i] = RunSimulation(tradeReturns, initialCapital, bootstrap.SeedFor(baseSeed, i))
	}
	return Aggregate(tradeReturns, initialCapital, baseSeed, runs, o.bins, o.includeRuns), nil
}

// Aggregate builds a result from completed runs. It lets callers that
// execute runs in parallel share the aggregation.
func Aggregate(tradeReturns []float64, initialCapital float64, baseSeed int64, runs []models.SimulationRun, bins int, includeRuns bool) *models.MonteCarloResult {
	finals := make([]float64, len(runs))
	dds := make([]float64, len(runs))
	for i, r := range runs {
		finals[i] = r.FinalEquity
		dds[i] = r.MaxDrawdown
	}

	res := &models.MonteCarloResult{
		InitialCapital:  initialCapital,
		BaseSeed:        baseSeed,
		TradeReturns:    tradeReturns,
		Stats:           CalculateStatistics(runs),
		FinalEquityHist: Histogram(finals, bins),
		DrawdownHist:    Histogram(dds, bins),
	}
	if res.TradeReturns == nil {
		res.TradeReturns = []float64{}
	}
	if includeRuns {
		res.Runs = runs
	}
	return res
}
