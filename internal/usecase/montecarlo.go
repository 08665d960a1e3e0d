package usecase

import (
	"context"
	"fmt"
	"time"

	"RegimeLab/internal/domain/models"
	domrepo "RegimeLab/internal/domain/repository"
	"RegimeLab/internal/services/bootstrap"
	"RegimeLab/internal/services/montecarlo"
	"RegimeLab/internal/services/simulator"
	applogger "RegimeLab/pkg/logger"
)

// MonteCarloUseCase permutes a set of trade returns. The returns come from
// the request or from replaying its strategy on its candle source.
type MonteCarloUseCase struct {
	candles *CandlesUseCase
	cfg     EngineConfig
	rec     *recorder
	l       *applogger.Logger
}

func NewMonteCarloUseCase(candles *CandlesUseCase, cfg EngineConfig, runs domrepo.RunStore, pub domrepo.ResultPublisher, metrics domrepo.Metrics, l *applogger.Logger) *MonteCarloUseCase {
	if l == nil {
		l = applogger.Nop()
	}
	return &MonteCarloUseCase{
		candles: candles,
		cfg:     cfg.withDefaults(),
		rec:     &recorder{runs: runs, pub: pub, metrics: metrics, l: l},
		l:       l,
	}
}

func (uc *MonteCarloUseCase) Run(ctx context.Context, req models.MonteCarloRequest) (res *models.MonteCarloResult, err error) {
	start := time.Now()
	defer func() { uc.rec.observe(models.JobMonteCarlo, start, req.GetNumSimulations(), err) }()

	if err := uc.cfg.checkSimulations(req.GetNumSimulations()); err != nil {
		return nil, err
	}
	if !(req.InitialCapital > 0) {
		return nil, invalid(fmt.Errorf("initialCapital must be > 0, got %g", req.InitialCapital))
	}
	returns, err := uc.tradeReturns(ctx, req)
	if err != nil {
		return nil, err
	}
	reportProgress(ctx, 0.1)

	runs := make([]models.SimulationRun, req.GetNumSimulations())
	err = forEach(ctx, len(runs), uc.cfg.Workers, func(_ context.Context, i int) error {
		runs[i] = montecarlo.RunSimulation(returns, req.InitialCapital, bootstrap.SeedFor(req.GetSeed(), i))
		return nil
	})
	if err != nil {
		return nil, err
	}
	res = montecarlo.Aggregate(returns, req.InitialCapital, req.GetSeed(), runs, uc.cfg.bins(req.GetBins()), req.IncludeRuns)
	reportProgress(ctx, 1)

	took := time.Since(start)
	uc.rec.record(ctx, models.RunSummary{
		ID:                runID(ctx),
		Kind:              models.JobMonteCarlo,
		Symbol:            req.Symbol,
		Indicator:         req.Strategy.IndicatorType,
		Position:          req.Strategy.PositionType,
		BaseSeed:          req.GetSeed(),
		Runs:              req.GetNumSimulations(),
		MedianReturn:      res.Stats.TotalReturn.Median,
		P5Return:          res.Stats.TotalReturn.P5,
		P95Return:         res.Stats.TotalReturn.P95,
		MedianDrawdown:    res.Stats.MaxDrawdown.Median,
		ProbabilityProfit: res.Stats.ProbabilityOfProfit,
		DurationMillis:    took.Milliseconds(),
		CreatedAt:         time.Now().UTC(),
	}, res)

	uc.l.Info("monte carlo completed",
		applogger.Int("trades", len(returns)),
		applogger.Int("simulations", req.GetNumSimulations()),
		applogger.Seed(req.GetSeed()),
		applogger.Duration("took", took))
	return res, nil
}

func (uc *MonteCarloUseCase) tradeReturns(ctx context.Context, req models.MonteCarloRequest) ([]float64, error) {
	if len(req.Returns) > 0 {
		return req.Returns, nil
	}
	if !req.HasSource() {
		return nil, invalid(fmt.Errorf("returns or a candle source is required"))
	}

	strategy, err := req.Strategy.ToStrategy()
	if err != nil {
		return nil, invalid(err)
	}
	candles, err := uc.candles.Resolve(ctx, req.CandleSourceRequest)
	if err != nil {
		return nil, err
	}
	sim, err := simulator.Simulate(candles, strategy, simulator.WithRiskFreeRate(uc.cfg.RiskFreeRate))
	if err != nil {
		return nil, invalid(err)
	}
	return tradePnLs(sim.Trades), nil
}

func tradePnLs(trades []models.Trade) []float64 {
	out := make([]float64, len(trades))
	for i, t := range trades {
		out[i] = t.PnL
	}
	return out
}
