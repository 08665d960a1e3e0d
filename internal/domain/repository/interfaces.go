package repository

import (
	"context"
	"errors"

	"RegimeLab/internal/domain/models"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrNoCandles = errors.New("no candles for symbol")
)

// CandleSource provides the most recent candles of a symbol, oldest first.
type CandleSource interface {
	GetCandles(ctx context.Context, symbol string, interval Interval, limit int) ([]models.Candle, error)
}

// CandleWriter persists candles fetched from an upstream source.
type CandleWriter interface {
	StoreCandles(ctx context.Context, symbol string, interval Interval, candles []models.Candle) error
}

type RunStore interface {
	Init(ctx context.Context) error // ensure tables
	SaveRun(ctx context.Context, run models.RunSummary) error
	RecentRuns(ctx context.Context, symbol string, limit int) ([]models.RunSummary, error)
	Health(ctx context.Context) error
	Close() error
}

type ResultPublisher interface {
	PublishResult(ctx context.Context, ev models.JobResultEvent) error
	Close() error
}

// JobStore keeps job records; Get returns ErrNotFound for unknown ids.
type JobStore interface {
	Save(ctx context.Context, rec models.JobRecord) error
	Get(ctx context.Context, id string) (models.JobRecord, error)
	// Acquire takes the execution lock of a job; false means another worker holds it.
	Acquire(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

type Metrics interface {
	RecordRun(kind, status string, seconds float64)
	RecordSeries(kind string, n int)
	RecordError(kind string)
	RecordCacheHit(endpoint string, hit bool)
}
