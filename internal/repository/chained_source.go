package repository

import (
	"context"
	"fmt"
	"time"

	"RegimeLab/internal/domain/models"
	domrepo "RegimeLab/internal/domain/repository"
	domsvc "RegimeLab/internal/domain/service"
	icache "RegimeLab/internal/service/cache"
	applogger "RegimeLab/pkg/logger"
)

// ChainedCandleSource serves candles from a short-lived memo, then the
// store, then the price feed. Feed results are written back to the store.
// Any of store, writer and feed may be nil.
type ChainedCandleSource struct {
	store  domrepo.CandleSource
	writer domrepo.CandleWriter
	feed   domsvc.PriceFeed
	memo   *icache.TTLCache[[]models.Candle]
	ttl    time.Duration
	l      *applogger.Logger
}

func NewChainedCandleSource(store domrepo.CandleSource, writer domrepo.CandleWriter, feed domsvc.PriceFeed, ttl time.Duration, l *applogger.Logger) *ChainedCandleSource {
	if l == nil {
		l = applogger.Nop()
	}
	return &ChainedCandleSource{
		store:  store,
		writer: writer,
		feed:   feed,
		memo:   icache.NewTTLCache[[]models.Candle](),
		ttl:    ttl,
		l:      l,
	}
}

func (s *ChainedCandleSource) GetCandles(ctx context.Context, symbol string, interval domrepo.Interval, limit int) ([]models.Candle, error) {
	key := fmt.Sprintf("%s|%s|%d", symbol, interval, limit)
	if s.ttl > 0 {
		if v, ok := s.memo.Get(key); ok {
			return cloneCandles(v), nil
		}
	}

	if s.store != nil {
		candles, err := s.store.GetCandles(ctx, symbol, interval, limit)
		switch {
		case err != nil:
			s.l.Warn("candle store read failed, trying price feed",
				applogger.String("symbol", symbol), applogger.Error(err))
		case len(candles) >= limit:
			s.remember(key, candles)
			return candles, nil
		}
	}

	if s.feed == nil {
		return nil, fmt.Errorf("%s %s: %w", symbol, interval, domrepo.ErrNoCandles)
	}
	candles, err := s.feed.ChartData(ctx, symbol, string(interval), interval.DaysBack(limit))
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("%s %s: %w", symbol, interval, domrepo.ErrNoCandles)
	}
	if s.writer != nil {
		if err := s.writer.StoreCandles(ctx, symbol, interval, candles); err != nil {
			s.l.Warn("candle write-back failed", applogger.String("symbol", symbol), applogger.Error(err))
		}
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	s.remember(key, candles)
	return candles, nil
}

func (s *ChainedCandleSource) remember(key string, candles []models.Candle) {
	if s.ttl > 0 {
		s.memo.Set(key, cloneCandles(candles), s.ttl)
	}
}

func cloneCandles(in []models.Candle) []models.Candle {
	return append([]models.Candle(nil), in...)
}

var _ domrepo.CandleSource = (*ChainedCandleSource)(nil)
