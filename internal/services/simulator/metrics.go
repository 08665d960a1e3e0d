package simulator

import (
	"math"

	"RegimeLab/internal/domain/models"
)

const periodsPerYear = 365

// ComputeTradeMetrics summarises a trade list and its equity curve.
func ComputeTradeMetrics(trades []models.Trade, equity []float64, initialCapital, riskFree float64) models.TradeMetrics {
	m := models.TradeMetrics{TotalTrades: len(trades), FinalEquity: initialCapital}
	if n := len(equity); n > 0 {
		m.FinalEquity = equity[n-1]
	}
	if initialCapital > 0 {
		m.TotalReturn = m.FinalEquity/initialCapital - 1
	}
	m.MaxDrawdown = MaxDrawdown(equity)
	m.SharpeRatio = SharpeRatio(equity, riskFree)

	if len(trades) == 0 {
		return m
	}

	var gain, loss, sum float64
	m.BestTrade, m.WorstTrade = math.Inf(-1), math.Inf(1)
	for _, t := range trades {
		sum += t.PnL
		switch {
		case t.PnL > 0:
			m.WinningTrades++
			gain += t.PnL
		case t.PnL < 0:
			m.LosingTrades++
			loss -= t.PnL
		}
		m.BestTrade = math.Max(m.BestTrade, t.PnL)
		m.WorstTrade = math.Min(m.WorstTrade, t.PnL)
	}
	m.WinRate = float64(m.WinningTrades) / float64(len(trades))
	m.AvgTrade = sum / float64(len(trades))
	m.ProfitFactor = ProfitFactor(gain, loss)
	return m
}

// ProfitFactor is gross gain over gross loss: +Inf with gains and no
// losses, 0 with neither.
func ProfitFactor(grossGain, grossLoss float64) models.Ratio {
	switch {
	case grossLoss > 0:
		return models.Ratio(grossGain / grossLoss)
	case grossGain > 0:
		return models.Ratio(math.Inf(1))
	}
	return 0
}

// MaxDrawdown is the largest fractional decline from a running peak.
func MaxDrawdown(curve []float64) float64 {
	var peak, dd float64
	for _, v := range curve {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd = math.Max(dd, (peak-v)/peak)
		}
	}
	return dd
}

// SharpeRatio annualises the mean excess per-bar return of an equity curve.
func SharpeRatio(equity []float64, annualRiskFree float64) float64 {
	if len(equity) < 3 {
		return 0
	}
	rets := make([]float64, 0, len(equity)-1)
	rf := annualRiskFree / periodsPerYear
	for i := 1; i < len(equity); i++ {
		if equity[i-1] <= 0 {
			continue
		}
		rets = append(rets, equity[i]/equity[i-1]-1-rf)
	}
	if len(rets) < 2 {
		return 0
	}
	mean := meanOf(rets)
	std := stdOf(rets, mean)
	if std == 0 {
		return 0
	}
	s := mean / std * math.Sqrt(periodsPerYear)
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return 0
	}
	return s
}
