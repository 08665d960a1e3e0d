package simulator

import (
	"math"
	"testing"

	"RegimeLab/internal/domain/models"
)

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func expectSeries(t *testing.T, name string, got []models.OptFloat, want map[int]float64, firstValid int) {
	t.Helper()
	for i := 0; i < firstValid; i++ {
		if got[i].Valid {
			t.Fatalf("%s[%d] should be in warm-up, got %v", name, i, got[i].Value)
		}
	}
	for i, w := range want {
		if !got[i].Valid || !almostEqual(got[i].Value, w, 1e-9) {
			t.Fatalf("%s[%d]: expected %v, got %+v", name, i, w, got[i])
		}
	}
}

func TestSMA(t *testing.T) {
	expectSeries(t, "sma", SMA([]float64{1, 2, 3, 4, 5}, 2), map[int]float64{1: 1.5, 4: 4.5}, 1)
}

func TestEMASeededBySMA(t *testing.T) {
	expectSeries(t, "ema", EMA([]float64{1, 2, 3, 4, 5}, 3), map[int]float64{2: 2, 3: 3, 4: 4}, 2)
	if got := EMA([]float64{1, 2}, 3); got[0].Valid || got[1].Valid {
		t.Fatalf("short input must be all absent")
	}
}

func TestDEMATracksLinearSeries(t *testing.T) {
	in := []float64{1, 2, 3, 4, 5, 6}
	expectSeries(t, "dema", DEMA(in, 2), map[int]float64{2: 3, 3: 4, 4: 5, 5: 6}, 2)
}

func TestRSI(t *testing.T) {
	expectSeries(t, "rsi", RSI([]float64{1, 2, 3, 2}, 2), map[int]float64{2: 100, 3: 50}, 2)
	expectSeries(t, "flat", RSI([]float64{5, 5, 5, 5}, 2), map[int]float64{2: 50, 3: 50}, 2)
}

func TestCCI(t *testing.T) {
	flat := []models.Candle{{High: 1, Low: 1, Close: 1}, {High: 1, Low: 1, Close: 1}, {High: 1, Low: 1, Close: 1}}
	expectSeries(t, "cci flat", CCI(flat, 3), map[int]float64{2: 0}, 2)

	// typical prices 1, 2, 3: mean 2, mad 2/3
	rising := []models.Candle{{High: 1, Low: 1, Close: 1}, {High: 2, Low: 2, Close: 2}, {High: 3, Low: 3, Close: 3}}
	expectSeries(t, "cci", CCI(rising, 3), map[int]float64{2: 1 / (0.015 * 2.0 / 3.0)}, 2)
}

func TestZScore(t *testing.T) {
	expectSeries(t, "z", ZScore([]float64{1, 2, 3, 3, 3, 3}, 3), map[int]float64{2: 1, 5: 0}, 2)
}

func TestIndicatorWarmUpLengths(t *testing.T) {
	closes := make([]float64, 60)
	candles := make([]models.Candle, len(closes))
	for i := range closes {
		closes[i] = 100 + 10*math.Sin(float64(i)/5)
		candles[i] = models.Candle{High: closes[i] + 1, Low: closes[i] - 1, Close: closes[i]}
	}
	const p = 7
	cases := []struct {
		name       string
		got        []models.OptFloat
		firstValid int
	}{
		{"sma", SMA(closes, p), p - 1},
		{"ema", EMA(closes, p), p - 1},
		{"dema", DEMA(closes, p), 2 * (p - 1)},
		{"rsi", RSI(closes, p), p},
		{"cci", CCI(candles, p), p - 1},
		{"z", ZScore(closes, p), p - 1},
	}
	for _, c := range cases {
		if len(c.got) != len(closes) {
			t.Fatalf("%s: length %d, want %d", c.name, len(c.got), len(closes))
		}
		for i, v := range c.got {
			if v.Valid != (i >= c.firstValid) {
				t.Fatalf("%s[%d]: valid=%v, first valid index is %d", c.name, i, v.Valid, c.firstValid)
			}
		}
	}

	var window float64
	for _, v := range closes[len(closes)-p:] {
		window += v
	}
	if got := SMA(closes, p)[len(closes)-1].Value; !almostEqual(got, window/p, 1e-9) {
		t.Fatalf("sma tail: got %v want %v", got, window/p)
	}
	for i, v := range RSI(closes, p) {
		if v.Valid && (v.Value < 0 || v.Value > 100) {
			t.Fatalf("rsi[%d] out of range: %v", i, v.Value)
		}
	}
}

func TestIndicatorsShortInput(t *testing.T) {
	short := []float64{1, 2, 3}
	candles := []models.Candle{{High: 1, Low: 1, Close: 1}}
	for name, got := range map[string][]models.OptFloat{
		"sma":   SMA(short, 4),
		"ema":   EMA(short, 4),
		"dema":  DEMA(short, 3),
		"rsi":   RSI(short, 3),
		"cci":   CCI(candles, 2),
		"z":     ZScore(short, 4),
		"empty": SMA(nil, 1),
	} {
		for i, v := range got {
			if v.Valid {
				t.Fatalf("%s[%d] must be absent on short input", name, i)
			}
		}
	}
}

func TestRSIFlatUntilFirstMove(t *testing.T) {
	got := RSI([]float64{5, 5, 5, 5, 6, 6}, 2)
	expectSeries(t, "rsi", got, map[int]float64{2: 50, 3: 50, 4: 100, 5: 100}, 2)
}
