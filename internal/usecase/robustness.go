package usecase

import (
	"context"
	"sync"
	"time"

	"RegimeLab/internal/domain/models"
	domrepo "RegimeLab/internal/domain/repository"
	"RegimeLab/internal/services/bootstrap"
	"RegimeLab/internal/services/montecarlo"
	"RegimeLab/internal/services/simulator"
	applogger "RegimeLab/pkg/logger"
)

// RobustnessUseCase runs a strategy on the real series and on its bootstrap
// resamples and reports where the real result sits in that distribution.
type RobustnessUseCase struct {
	candles *CandlesUseCase
	cfg     EngineConfig
	rec     *recorder
	l       *applogger.Logger
}

func NewRobustnessUseCase(candles *CandlesUseCase, cfg EngineConfig, runs domrepo.RunStore, pub domrepo.ResultPublisher, metrics domrepo.Metrics, l *applogger.Logger) *RobustnessUseCase {
	if l == nil {
		l = applogger.Nop()
	}
	return &RobustnessUseCase{
		candles: candles,
		cfg:     cfg.withDefaults(),
		rec:     &recorder{runs: runs, pub: pub, metrics: metrics, l: l},
		l:       l,
	}
}

func (uc *RobustnessUseCase) Run(ctx context.Context, req models.RobustnessRequest) (rep *models.RobustnessReport, err error) {
	start := time.Now()
	defer func() {
		n := 0
		if rep != nil {
			n = len(rep.Runs)
		}
		uc.rec.observe(models.JobRobustness, start, n, err)
	}()

	if err := uc.cfg.checkShuffles(req.GetNumShuffles()); err != nil {
		return nil, err
	}
	if req.MonteCarlo {
		if err := uc.cfg.checkSimulations(req.GetNumSimulations()); err != nil {
			return nil, err
		}
	}
	strategy, err := req.Strategy.ToStrategy()
	if err != nil {
		return nil, invalid(err)
	}
	candles, err := uc.candles.Resolve(ctx, req.CandleSourceRequest)
	if err != nil {
		return nil, err
	}

	boot, err := bootstrap.PerformBootstrapResampling(candles, req.GetBucketSize(), req.GetNumShuffles(), req.GetSeed(),
		bootstrap.WithVolatilityWindow(uc.cfg.VolatilityWindow))
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	simOpts := []simulator.Option{simulator.WithRiskFreeRate(uc.cfg.RiskFreeRate)}
	original, err := simulator.Simulate(candles, strategy, simOpts...)
	if err != nil {
		return nil, invalid(err)
	}
	original.Signals = nil
	original.Money = MoneySummary(capitalOf(strategy), original.Trades)

	units := len(boot.Synthetic) + 1
	if req.MonteCarlo {
		units++
	}
	var (
		mu   sync.Mutex
		done = 1
	)
	tick := func() {
		mu.Lock()
		done++
		d := done
		mu.Unlock()
		reportProgress(ctx, float64(d)/float64(units))
	}
	reportProgress(ctx, 1/float64(units))

	runs := make([]models.RobustnessRun, len(boot.Synthetic))
	err = forEach(ctx, len(runs), uc.cfg.Workers, func(_ context.Context, i int) error {
		synth := boot.Synthetic[i]
		res, err := simulator.Simulate(synth.Candles, strategy, simOpts...)
		if err != nil {
			return err
		}
		runs[i] = models.RobustnessRun{Seed: synth.Seed, Series: synth.Metrics, Metrics: res.Metrics}
		tick()
		return nil
	})
	if err != nil {
		return nil, err
	}

	rep = &models.RobustnessReport{
		Symbol:         req.Symbol,
		Indicator:      strategy.Indicator.Kind(),
		Position:       strategy.Position,
		BaseSeed:       req.GetSeed(),
		BucketSize:     req.GetBucketSize(),
		NumBuckets:     boot.NumBuckets,
		BucketCounts:   boot.BucketCounts,
		OriginalSeries: boot.Original,
		Original:       original,
		Runs:           runs,
	}
	rep.Distribution, rep.Rank = distribution(runs, original.Metrics)
	rep.ReturnHistogram = montecarlo.Histogram(column(runs, func(r models.RobustnessRun) float64 { return r.Metrics.TotalReturn }), uc.cfg.bins(req.GetBins()))

	if req.MonteCarlo {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mc, err := montecarlo.RunMonteCarlo(tradePnLs(original.Trades), capitalOf(strategy), req.GetNumSimulations(), req.GetSeed(),
			montecarlo.WithBins(uc.cfg.bins(req.GetBins())))
		if err != nil {
			return nil, err
		}
		rep.MonteCarlo = mc
		tick()
	}

	took := time.Since(start)
	rep.DurationMillis = took.Milliseconds()

	sum := models.RunSummary{
		ID:             runID(ctx),
		Kind:           models.JobRobustness,
		Symbol:         req.Symbol,
		Indicator:      string(rep.Indicator),
		Position:       string(rep.Position),
		BaseSeed:       req.GetSeed(),
		BucketSize:     req.GetBucketSize(),
		Runs:           len(runs),
		OriginalReturn: original.Metrics.TotalReturn,
		MedianReturn:   rep.Distribution.TotalReturn.Median,
		P5Return:       rep.Distribution.TotalReturn.P5,
		P95Return:      rep.Distribution.TotalReturn.P95,
		MedianDrawdown: rep.Distribution.MaxDrawdown.Median,
		DurationMillis: rep.DurationMillis,
		CreatedAt:      time.Now().UTC(),
	}
	if rep.MonteCarlo != nil {
		sum.ProbabilityProfit = rep.MonteCarlo.Stats.ProbabilityOfProfit
	}
	uc.rec.record(ctx, sum, rep)

	uc.l.Info("robustness completed",
		applogger.String("symbol", req.Symbol),
		applogger.String("indicator", string(rep.Indicator)),
		applogger.Int("shuffles", req.GetNumShuffles()),
		applogger.Bool("monte_carlo", req.MonteCarlo),
		applogger.Seed(req.GetSeed()),
		applogger.Duration("took", took))
	return rep, nil
}

func column(runs []models.RobustnessRun, get func(models.RobustnessRun) float64) []float64 {
	out := make([]float64, len(runs))
	for i, r := range runs {
		out[i] = get(r)
	}
	return out
}

// distribution summarises the synthetic runs and ranks the original among
// them. For drawdown a lower value beats a higher one.
func distribution(runs []models.RobustnessRun, original models.TradeMetrics) (models.Distribution, models.OriginalRank) {
	returns := column(runs, func(r models.RobustnessRun) float64 { return r.Metrics.TotalReturn })
	drawdowns := column(runs, func(r models.RobustnessRun) float64 { return r.Metrics.MaxDrawdown })
	winRates := column(runs, func(r models.RobustnessRun) float64 { return r.Metrics.WinRate })
	sharpes := column(runs, func(r models.RobustnessRun) float64 { return r.Metrics.SharpeRatio })

	dist := models.Distribution{
		TotalReturn: montecarlo.Summarize(returns),
		MaxDrawdown: montecarlo.Summarize(drawdowns),
		WinRate:     montecarlo.Summarize(winRates),
		SharpeRatio: montecarlo.Summarize(sharpes),
	}
	rank := models.OriginalRank{
		TotalReturn: montecarlo.RankOf(returns, original.TotalReturn),
		SharpeRatio: montecarlo.RankOf(sharpes, original.SharpeRatio),
	}
	if len(drawdowns) > 0 {
		rank.MaxDrawdown = 100 - montecarlo.RankOf(drawdowns, original.MaxDrawdown)
	}
	return dist, rank
}
