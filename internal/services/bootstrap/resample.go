package bootstrap

import (
	"fmt"
	"math"

	"RegimeLab/internal/domain/models"
)

type options struct {
	window int
}

// Option customises a resampling run.
type Option func(*options)

// WithVolatilityWindow overrides the rolling volatility window.
func WithVolatilityWindow(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.window = n
		}
	}
}

// Regimes holds the intermediate regime detection of a series.
type Regimes struct {
	Returns    []models.OptFloat
	Volatility []models.OptFloat
	Ranks      []models.OptFloat
	Buckets    []models.OptInt
}

// DetectRegimes runs returns, volatility, ranks and bucketization.
func DetectRegimes(candles []models.Candle, bucketSize float64, window int) (Regimes, error) {
	returns := CalculateReturns(candles)
	vol, err := RollingVolatility(returns, window)
	if err != nil {
		return Regimes{}, err
	}
	ranks := PercentileRanks(vol)
	buckets, err := BucketizeByPercentile(ranks, bucketSize)
	if err != nil {
		return Regimes{}, err
	}
	return Regimes{Returns: returns, Volatility: vol, Ranks: ranks, Buckets: buckets}, nil
}

// Reconstruct rebuilds an OHLC series from a block sequence. Closes compound
// block returns from anchor; a missing or degenerate return keeps the
// previous close. Output candle k takes dates[k] when available.
func Reconstruct(anchor float64, dates []string, blocks []Block) []models.Candle {
	total := 0
	for _, b := range blocks {
		total += b.Len()
	}
	out := make([]models.Candle, 0, total)
	price := anchor

	for _, b := range blocks {
		for j, src := range b.Candles {
			if len(out) > 0 {
				if r := b.Returns[j]; r.Valid {
					if next := price * (1 + r.Value); models.ValidPrice(next) {
						price = next
					}
				}
			}

			oR, hR, lR := 1.0, 1.0, 1.0
			if models.ValidPrice(src.Close) {
				oR = ratio(src.Open, src.Close)
				hR = ratio(src.High, src.Close)
				lR = ratio(src.Low, src.Close)
			}
			open := price * oR
			c := models.Candle{
				Date:  src.Date,
				Open:  open,
				High:  math.Max(price*hR, math.Max(open, price)),
				Low:   math.Min(price*lR, math.Min(open, price)),
				Close: price,
			}
			if k := len(out); k < len(dates) {
				c.Date = dates[k]
			}
			out = append(out, c)
		}
	}
	return out
}

func ratio(p, close float64) float64 {
	r := p / close
	if !models.ValidPrice(r) {
		return 1
	}
	return r
}

// PerformBootstrapResampling generates numShuffles regime-preserving
// resamples of candles. Resample i uses seed baseSeed + i*1000.
func PerformBootstrapResampling(candles []models.Candle, bucketSize float64, numShuffles int, baseSeed int64, opts ...Option) (*models.BootstrapResult, error) {
	o := options{window: DefaultVolatilityWindow}
	for _, opt := range opts {
		opt(&o)
	}

	if minLen := o.window + 1; len(candles) < minLen {
		return nil, fmt.Errorf("need at least %d candles, got %d: %w", minLen, len(candles), ErrInsufficientData)
	}
	if numShuffles < 0 {
		return nil, fmt.Errorf("numShuffles %d: %w", numShuffles, ErrInvalidArgument)
	}

	reg, err := DetectRegimes(candles, bucketSize, o.window)
	if err != nil {
		return nil, err
	}
	blocks, err := BuildBlocks(candles, reg.Buckets)
	if err != nil {
		return nil, err
	}

	dates := make([]string, 0, len(candles))
	for i, b := range reg.Buckets {
		if b.Valid {
			dates = append(dates, candles[i].Date)
		}
	}
	anchor := anchorPrice(candles)

	res := &models.BootstrapResult{
		BucketSize: bucketSize,
		NumBuckets: NumBuckets(bucketSize),
		BaseSeed:   baseSeed,
		Original:   CalculateSeriesMetrics(candles),
		Regimes: models.RegimeSeries{
			Returns:         reg.Returns,
			Volatility:      reg.Volatility,
			PercentileRanks: reg.Ranks,
			Buckets:         reg.Buckets,
		},
		Blocks:       summarizeBlocks(blocks),
		BucketCounts: CountBlocksByBucket(blocks),
		Synthetic:    make([]models.SyntheticSeries, 0, numShuffles),
	}

	for i := 0; i < numShuffles; i++ {
		seed := SeedFor(baseSeed, i)
		shuffled := ShuffleBlocksByBucket(blocks, seed)
		synth := Reconstruct(anchor, dates, shuffled)
		res.Synthetic = append(res.Synthetic, models.SyntheticSeries{
			Seed:         seed,
			Candles:      synth,
			Metrics:      CalculateSeriesMetrics(synth),
			BucketCounts: CountBlocksByBucket(shuffled),
		})
	}
	return res, nil
}

// anchorPrice is the first close, or the first valid close if that one is
// unusable.
func anchorPrice(candles []models.Candle) float64 {
	for _, c := range candles {
		if models.ValidPrice(c.Close) {
			return c.Close
		}
	}
	return 1
}

// CalculateSeriesMetrics returns total return, max drawdown and annualised
// realized volatility of a series. Degenerate input yields zeros.
func CalculateSeriesMetrics(candles []models.Candle) models.SeriesMetrics {
	closes := make([]float64, 0, len(candles))
	for _, c := range candles {
		if models.ValidPrice(c.Close) {
			closes = append(closes, c.Close)
		}
	}
	if len(closes) < 2 {
		return models.SeriesMetrics{}
	}

	var m models.SeriesMetrics
	m.TotalReturn = finiteOrZero(closes[len(closes)-1]/closes[0] - 1)

	peak := closes[0]
	for _, c := range closes {
		if c > peak {
			peak = c
		}
		if dd := (peak - c) / peak; dd > m.MaxDrawdown {
			m.MaxDrawdown = dd
		}
	}

	var rets []float64
	for _, r := range CalculateReturns(candles) {
		if r.Valid {
			rets = append(rets, r.Value)
		}
	}
	m.Volatility = finiteOrZero(sampleStd(rets) * math.Sqrt(252))
	return m
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
