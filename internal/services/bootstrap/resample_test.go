package bootstrap

import (
	"errors"
	"math"
	"reflect"
	"testing"

	"RegimeLab/internal/domain/models"
)

func TestReconstructCompoundsAndAnchors(t *testing.T) {
	blocks := []Block{
		{
			Candles: []models.Candle{
				{Date: "a", Open: 49, High: 52, Low: 48, Close: 50},
				{Date: "b", Open: 55, High: 55, Low: 55, Close: 55},
			},
			Returns: []models.OptFloat{models.None[float64](), models.Some(0.1)},
		},
		{
			Candles: []models.Candle{
				{Date: "c", Open: 10, High: 10, Low: 10, Close: 10},
				{Date: "d", Open: 9, High: 9, Low: 9, Close: 9},
			},
			Returns: []models.OptFloat{models.None[float64](), models.Some(-0.1)},
		},
	}
	out := Reconstruct(100, []string{"d1", "d2", "d3", "d4"}, blocks)
	wantClose := []float64{100, 110, 110, 99}
	for i, w := range wantClose {
		if !almostEqual(out[i].Close, w, 1e-9) {
			t.Fatalf("close[%d]: expected %v, got %v", i, w, out[i].Close)
		}
	}
	if !almostEqual(out[0].Open, 98, 1e-9) || !almostEqual(out[0].High, 104, 1e-9) || !almostEqual(out[0].Low, 96, 1e-9) {
		t.Fatalf("unexpected first candle %+v", out[0])
	}
	if out[2].Date != "d3" {
		t.Fatalf("expected date d3, got %s", out[2].Date)
	}
}

func TestReconstructDegenerateReturnKeepsClose(t *testing.T) {
	blocks := []Block{{
		Candles: []models.Candle{
			{Close: 1}, {Close: 1}, {Close: 1}, {Close: 1},
		},
		Returns: []models.OptFloat{
			models.None[float64](), models.Some(-1.0), models.Some(math.Inf(1)), models.Some(0.5),
		},
	}}
	out := Reconstruct(10, nil, blocks)
	want := []float64{10, 10, 10, 15}
	for i, w := range want {
		if out[i].Close != w {
			t.Fatalf("close[%d]: expected %v, got %v", i, w, out[i].Close)
		}
	}
}

func TestReconstructWidensHighLow(t *testing.T) {
	blocks := []Block{{
		Candles: []models.Candle{{Open: 60, High: 55, Low: 52, Close: 50}},
		Returns: []models.OptFloat{models.None[float64]()},
	}}
	c := Reconstruct(100, nil, blocks)[0]
	if !almostEqual(c.Open, 120, 1e-9) || c.High < c.Open || c.Low > c.Close {
		t.Fatalf("high/low not widened: %+v", c)
	}
}

func TestPerformBootstrapResamplingEndToEnd(t *testing.T) {
	candles := sineCandles(100)
	res, err := PerformBootstrapResampling(candles, 20, 5, 12345)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.NumBuckets != 5 {
		t.Fatalf("expected 5 buckets, got %d", res.NumBuckets)
	}
	if len(res.Blocks) == 0 {
		t.Fatalf("expected blocks")
	}
	if len(res.Synthetic) != 5 {
		t.Fatalf("expected 5 synthetic series, got %d", len(res.Synthetic))
	}

	valid := 0
	for _, b := range res.Regimes.Buckets {
		if b.Valid {
			valid++
		}
	}
	for i, s := range res.Synthetic {
		if s.Seed != 12345+int64(i)*1000 {
			t.Fatalf("series %d: unexpected seed %d", i, s.Seed)
		}
		if len(s.Candles) != valid {
			t.Fatalf("series %d: expected %d candles, got %d", i, valid, len(s.Candles))
		}
		if s.Candles[0].Close != candles[0].Close {
			t.Fatalf("series %d: anchor %v != %v", i, s.Candles[0].Close, candles[0].Close)
		}
		if !reflect.DeepEqual(s.BucketCounts, res.BucketCounts) {
			t.Fatalf("series %d: bucket counts %v != %v", i, s.BucketCounts, res.BucketCounts)
		}
		for _, c := range s.Candles {
			if !models.ValidPrice(c.Close) || c.High < math.Max(c.Open, c.Close) || c.Low > math.Min(c.Open, c.Close) {
				t.Fatalf("series %d: malformed candle %+v", i, c)
			}
		}
	}

	reg, err := DetectRegimes(candles, 20, DefaultVolatilityWindow)
	if err != nil {
		t.Fatalf("detect regimes: %v", err)
	}
	blocks, err := BuildBlocks(candles, reg.Buckets)
	if err != nil {
		t.Fatalf("build blocks: %v", err)
	}
	if check := CheckBucketCountsPreserved(blocks, 12345); !check.Passed {
		t.Fatalf("bucket counts not preserved: %+v", check)
	}
}

func TestPerformBootstrapResamplingDeterministic(t *testing.T) {
	candles := sineCandles(120)
	a, err := PerformBootstrapResampling(candles, 25, 3, 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := PerformBootstrapResampling(candles, 25, 3, 99)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("identical inputs produced different output")
	}
}

func TestPerformBootstrapResamplingErrors(t *testing.T) {
	if _, err := PerformBootstrapResampling(sineCandles(30), 20, 1, 1); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
	if _, err := PerformBootstrapResampling(sineCandles(31), 0, 1, 1); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := PerformBootstrapResampling(sineCandles(40), 20, -1, 1); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := PerformBootstrapResampling(sineCandles(15), 20, 1, 1, WithVolatilityWindow(10)); err != nil {
		t.Fatalf("shorter window should accept 15 candles: %v", err)
	}
}

func TestCalculateSeriesMetrics(t *testing.T) {
	m := CalculateSeriesMetrics(closesToCandles(100, 120, 90, 110))
	if !almostEqual(m.TotalReturn, 0.1, 1e-12) {
		t.Fatalf("total return %v", m.TotalReturn)
	}
	if !almostEqual(m.MaxDrawdown, 0.25, 1e-12) {
		t.Fatalf("max drawdown %v", m.MaxDrawdown)
	}
	if m.Volatility <= 0 {
		t.Fatalf("expected positive volatility, got %v", m.Volatility)
	}

	for _, in := range [][]models.Candle{nil, closesToCandles(100), closesToCandles(0, 0, 0)} {
		if got := CalculateSeriesMetrics(in); got != (models.SeriesMetrics{}) {
			t.Fatalf("degenerate input should yield zeros, got %+v", got)
		}
	}
}
