package simulator

import (
	"math"

	talib "github.com/markcheno/go-talib"

	"RegimeLab/internal/domain/models"
)

// talib returns slices as long as its input with a zero-filled lookback and
// indexes out of range on inputs shorter than that, so every wrapper checks
// the length first and masks the lookback as absent.

// fromTalib wraps a talib output, marking indices below lookback absent.
func fromTalib(raw []float64, lookback int) []models.OptFloat {
	out := make([]models.OptFloat, len(raw))
	for i := lookback; i < len(raw); i++ {
		out[i] = models.FiniteOrNone(raw[i])
	}
	return out
}

// SMA is the simple moving average over period values.
func SMA(values []float64, period int) []models.OptFloat {
	if period < 1 || len(values) < period {
		return make([]models.OptFloat, len(values))
	}
	return fromTalib(talib.Sma(values, period), period-1)
}

// EMA is the exponential moving average seeded with the SMA of the first
// period values.
func EMA(values []float64, period int) []models.OptFloat {
	if period < 1 || len(values) < period {
		return make([]models.OptFloat, len(values))
	}
	return fromTalib(talib.Ema(values, period), period-1)
}

// DEMA is 2*EMA - EMA(EMA). The first value appears at index 2*(period-1).
func DEMA(values []float64, period int) []models.OptFloat {
	lookback := 2 * (period - 1)
	if period < 1 || len(values) <= lookback {
		return make([]models.OptFloat, len(values))
	}
	return fromTalib(talib.Dema(values, period), lookback)
}

// RSI is the Wilder relative strength index. The first value appears at
// index period. A series that has not moved yet reads 50.
func RSI(closes []float64, period int) []models.OptFloat {
	if period < 2 || len(closes) <= period {
		return make([]models.OptFloat, len(closes))
	}
	out := fromTalib(talib.Rsi(closes, period), period)
	// talib reports 0 while both averages are zero, i.e. before the first move
	moved := 1
	for moved < len(closes) && closes[moved] == closes[moved-1] {
		moved++
	}
	for i := period; i < moved; i++ {
		out[i] = models.Some(50.0)
	}
	return out
}

// CCI is the commodity channel index of the typical price. A window with
// no deviation reads 0.
func CCI(candles []models.Candle, period int) []models.OptFloat {
	if period < 1 || len(candles) < period {
		return make([]models.OptFloat, len(candles))
	}
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i], lows[i], closes[i] = c.High, c.Low, c.Close
	}
	return fromTalib(talib.Cci(highs, lows, closes, period), period-1)
}

// ZScore is the distance of each close from its rolling mean in rolling
// sample standard deviations.
func ZScore(closes []float64, period int) []models.OptFloat {
	out := make([]models.OptFloat, len(closes))
	if period < 2 || len(closes) < period {
		return out
	}
	means := talib.Sma(closes, period)
	for i := period - 1; i < len(closes); i++ {
		std := stdOf(closes[i-period+1:i+1], means[i])
		if std == 0 {
			out[i] = models.Some(0.0)
			continue
		}
		out[i] = models.FiniteOrNone((closes[i] - means[i]) / std)
	}
	return out
}

func stdOf(xs []float64, mean float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func meanOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}
