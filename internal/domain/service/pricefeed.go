package service

import (
	"context"

	"RegimeLab/internal/domain/models"
)

// PriceFeed fetches OHLC history from the backtest API collaborator.
type PriceFeed interface {
	ChartData(ctx context.Context, asset, interval string, daysBack int) ([]models.Candle, error)
	Health(ctx context.Context) error
}
