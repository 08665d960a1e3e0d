package usecase

import (
	"context"
	"fmt"

	"RegimeLab/internal/domain/models"
	domrepo "RegimeLab/internal/domain/repository"
)

const (
	defaultCandleLimit = 365
	maxCandleLimit     = 5000
)

// CandlesUseCase resolves the candle series a request refers to.
type CandlesUseCase struct {
	source domrepo.CandleSource
}

// NewCandlesUseCase accepts a nil source; symbol requests then fail with
// ErrNoCandles.
func NewCandlesUseCase(source domrepo.CandleSource) *CandlesUseCase {
	return &CandlesUseCase{source: source}
}

// Resolve returns the inline candles when present, otherwise the latest
// req.Limit candles of req.Symbol.
func (uc *CandlesUseCase) Resolve(ctx context.Context, req models.CandleSourceRequest) ([]models.Candle, error) {
	if len(req.Candles) > 0 {
		return req.Candles, nil
	}
	if req.Symbol == "" {
		return nil, invalid(fmt.Errorf("candles or symbol required"))
	}
	if uc.source == nil {
		return nil, fmt.Errorf("symbol %s: candle source disabled: %w", req.Symbol, domrepo.ErrNoCandles)
	}

	limit := req.Limit
	if limit <= 0 {
		limit = defaultCandleLimit
	}
	if limit > maxCandleLimit {
		limit = maxCandleLimit
	}

	candles, err := uc.source.GetCandles(ctx, req.Symbol, domrepo.NormalizeInterval(req.Interval), limit)
	if err != nil {
		return nil, fmt.Errorf("get candles: %w", err)
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("symbol %s: %w", req.Symbol, domrepo.ErrNoCandles)
	}
	return candles, nil
}
