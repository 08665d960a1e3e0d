package bootstrap

import (
	"math"
	"time"

	"RegimeLab/internal/domain/models"
)

// sineCandles builds a daily series whose volatility grows over time.
func sineCandles(n int) []models.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := 0; i < n; i++ {
		x := float64(i)
		amp := 0.01 + 0.0008*x
		c := 100 * (1 + 0.002*x) * (1 + amp*math.Sin(x*1.3))
		out[i] = models.Candle{
			Date:  start.AddDate(0, 0, i).Format(time.RFC3339),
			Open:  c * 0.995,
			High:  c * 1.01,
			Low:   c * 0.985,
			Close: c,
		}
	}
	return out
}

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}
