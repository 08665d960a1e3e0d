package simulator

import (
	"fmt"

	"RegimeLab/internal/domain/models"
)

// Signal values: +1 buy, -1 sell, 0 nothing.
const (
	Buy  = 1
	Sell = -1
)

// Indicators returns the series a strategy reads. Crossover strategies
// yield (fast, slow); oscillators yield (value, nil).
func Indicators(candles []models.Candle, params models.IndicatorParams) ([]models.OptFloat, []models.OptFloat, error) {
	if params == nil {
		return nil, nil, fmt.Errorf("indicator params are required")
	}
	if err := params.Validate(); err != nil {
		return nil, nil, err
	}
	closes := models.Closes(candles)

	switch p := params.(type) {
	case models.CrossoverParams:
		ma := EMA
		switch p.Type {
		case models.IndicatorMA:
			ma = SMA
		case models.IndicatorDEMA:
			ma = DEMA
		}
		return ma(closes, p.Fast), ma(closes, p.Slow), nil
	case models.OscillatorParams:
		switch p.Type {
		case models.IndicatorRSI:
			return RSI(closes, p.Length), nil, nil
		case models.IndicatorCCI:
			return CCI(candles, p.Length), nil, nil
		default:
			return ZScore(closes, p.Length), nil, nil
		}
	}
	return nil, nil, fmt.Errorf("unsupported indicator params %T", params)
}

// GenerateSignals computes one signal per candle for params.
func GenerateSignals(candles []models.Candle, params models.IndicatorParams) ([]int, error) {
	a, b, err := Indicators(candles, params)
	if err != nil {
		return nil, err
	}
	if p, ok := params.(models.OscillatorParams); ok {
		return thresholdSignals(a, p.Top, p.Bottom, p.Mode), nil
	}
	return crossoverSignals(a, b), nil
}

func crossoverSignals(fast, slow []models.OptFloat) []int {
	out := make([]int, len(fast))
	for i := 1; i < len(fast); i++ {
		pf, ps, cf, cs := fast[i-1], slow[i-1], fast[i], slow[i]
		if !pf.Valid || !ps.Valid || !cf.Valid || !cs.Valid {
			continue
		}
		switch {
		case pf.Value <= ps.Value && cf.Value > cs.Value:
			out[i] = Buy
		case pf.Value >= ps.Value && cf.Value < cs.Value:
			out[i] = Sell
		}
	}
	return out
}

func thresholdSignals(osc []models.OptFloat, top, bottom float64, mode models.OscillatorMode) []int {
	out := make([]int, len(osc))
	for i := 1; i < len(osc); i++ {
		prev, cur := osc[i-1], osc[i]
		if !prev.Valid || !cur.Valid {
			continue
		}
		p, c := prev.Value, cur.Value
		if mode == models.Momentum {
			switch {
			case p <= top && c > top:
				out[i] = Buy
			case p >= bottom && c < bottom:
				out[i] = Sell
			}
			continue
		}
		switch {
		case p <= bottom && c > bottom:
			out[i] = Buy
		case p >= top && c < top:
			out[i] = Sell
		}
	}
	return out
}
