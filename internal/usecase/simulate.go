package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"RegimeLab/internal/domain/models"
	domrepo "RegimeLab/internal/domain/repository"
	"RegimeLab/internal/services/simulator"
	applogger "RegimeLab/pkg/logger"
)

// SimulateUseCase replays one strategy on one series.
type SimulateUseCase struct {
	candles *CandlesUseCase
	cfg     EngineConfig
	rec     *recorder
	l       *applogger.Logger
}

func NewSimulateUseCase(candles *CandlesUseCase, cfg EngineConfig, metrics domrepo.Metrics, l *applogger.Logger) *SimulateUseCase {
	if l == nil {
		l = applogger.Nop()
	}
	return &SimulateUseCase{
		candles: candles,
		cfg:     cfg.withDefaults(),
		rec:     &recorder{metrics: metrics, l: l},
		l:       l,
	}
}

func (uc *SimulateUseCase) Run(ctx context.Context, req models.SimulateRequest) (res *models.SimulationResult, err error) {
	start := time.Now()
	defer func() { uc.rec.observe("simulate", start, 1, err) }()

	strategy, err := req.Strategy.ToStrategy()
	if err != nil {
		return nil, invalid(err)
	}
	candles, err := uc.candles.Resolve(ctx, req.CandleSourceRequest)
	if err != nil {
		return nil, err
	}

	out, err := simulator.Simulate(candles, strategy, simulator.WithRiskFreeRate(uc.cfg.RiskFreeRate))
	if err != nil {
		return nil, invalid(err)
	}
	if !req.IncludeSignals {
		out.Signals = nil
	}
	out.Money = MoneySummary(capitalOf(strategy), out.Trades)

	uc.l.Info("simulation completed",
		applogger.String("indicator", string(strategy.Indicator.Kind())),
		applogger.Int("candles", len(candles)),
		applogger.Int("trades", len(out.Trades)),
		applogger.Duration("took", time.Since(start)))
	return &out, nil
}

func capitalOf(s models.Strategy) float64 {
	if s.InitialCapital > 0 {
		return s.InitialCapital
	}
	return simulator.DefaultInitialCapital
}

// MoneySummary compounds the trade returns from initial in currency units,
// rounding every amount to cents. Capital never goes below zero.
func MoneySummary(initial float64, trades []models.Trade) *models.MoneySummary {
	start := decimal.NewFromFloat(initial).Round(2)
	capital := start
	pnls := make([]decimal.Decimal, 0, len(trades))
	for _, t := range trades {
		pnl := capital.Mul(decimal.NewFromFloat(t.PnL)).Round(2)
		if capital.Add(pnl).IsNegative() {
			pnl = capital.Neg()
		}
		capital = capital.Add(pnl)
		pnls = append(pnls, pnl)
	}
	return &models.MoneySummary{
		InitialCapital: start,
		FinalCapital:   capital,
		NetProfit:      capital.Sub(start),
		TradePnL:       pnls,
	}
}
