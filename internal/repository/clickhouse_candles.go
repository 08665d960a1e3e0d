package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"RegimeLab/internal/domain/models"
	domrepo "RegimeLab/internal/domain/repository"
	pkgch "RegimeLab/pkg/clickhouse"
	applogger "RegimeLab/pkg/logger"
	"RegimeLab/pkg/util"
)

// Schema returns the idempotent DDL for the candle and run tables.
func Schema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.candles (
			symbol LowCardinality(String),
			interval LowCardinality(String),
			ts DateTime('UTC'),
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			inserted_at DateTime DEFAULT now()
		) ENGINE = ReplacingMergeTree(inserted_at) ORDER BY (symbol, interval, ts)`, database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.run_summaries (
			id String,
			kind LowCardinality(String),
			symbol String,
			indicator LowCardinality(String),
			position LowCardinality(String),
			base_seed Int64,
			bucket_size Float64,
			runs UInt32,
			original_return Float64,
			median_return Float64,
			p5_return Float64,
			p95_return Float64,
			median_drawdown Float64,
			probability_profit Float64,
			duration_ms Int64,
			created_at DateTime64(3, 'UTC')
		) ENGINE = MergeTree ORDER BY (symbol, created_at)`, database),
	}
}

// CHCandleStore reads and writes candles in ClickHouse.
type CHCandleStore struct {
	ch    *pkgch.Client
	db    *sql.DB
	table string
	l     *applogger.Logger
}

func NewCHCandleStore(ch *pkgch.Client, database string, l *applogger.Logger) *CHCandleStore {
	if l == nil {
		l = applogger.Nop()
	}
	return &CHCandleStore{ch: ch, db: ch.DB(), table: database + ".candles", l: l}
}

// GetCandles returns the latest limit candles, oldest first.
func (s *CHCandleStore) GetCandles(ctx context.Context, symbol string, interval domrepo.Interval, limit int) ([]models.Candle, error) {
	start := time.Now()
	q := fmt.Sprintf(`
        SELECT ts, open, high, low, close
        FROM %s FINAL
        WHERE symbol = ? AND interval = ?
        ORDER BY ts DESC
        LIMIT ?`, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, string(interval), limit)
	if err != nil {
		s.l.Error("clickhouse get_candles query error",
			applogger.String("symbol", symbol),
			applogger.String("interval", string(interval)),
			applogger.Error(err))
		return nil, fmt.Errorf("get candles: %w", err)
	}
	defer rows.Close()

	tmp := make([]models.Candle, 0, limit)
	for rows.Next() {
		var (
			c  models.Candle
			ts time.Time
		)
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		c.Date = util.FormatDate(ts)
		tmp = append(tmp, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	// reverse to ASC
	for i, j := 0, len(tmp)-1; i < j; i, j = i+1, j-1 {
		tmp[i], tmp[j] = tmp[j], tmp[i]
	}
	s.l.Debug("clickhouse get_candles ok",
		applogger.String("symbol", symbol),
		applogger.String("interval", string(interval)),
		applogger.Int("rows", len(tmp)),
		applogger.Duration("duration_ms", time.Since(start)))
	return tmp, nil
}

// StoreCandles upserts candles; ReplacingMergeTree keeps the newest row per
// (symbol, interval, ts). Timestamps are floored to the candle start so a
// feed that stamps mid-interval does not create duplicates. Candles with
// unparsable dates are skipped.
func (s *CHCandleStore) StoreCandles(ctx context.Context, symbol string, interval domrepo.Interval, candles []models.Candle) error {
	rows := make([][]any, 0, len(candles))
	for _, c := range candles {
		ts, ok := util.ParseTime(c.Date)
		if !ok {
			continue
		}
		ts = util.TruncateToInterval(ts, string(interval))
		rows = append(rows, []any{symbol, string(interval), ts, c.Open, c.High, c.Low, c.Close})
	}
	q := fmt.Sprintf("INSERT INTO %s (symbol, interval, ts, open, high, low, close)", s.table)
	if err := s.ch.InsertBatch(ctx, q, rows); err != nil {
		return fmt.Errorf("store candles: %w", err)
	}
	return nil
}

var (
	_ domrepo.CandleSource = (*CHCandleStore)(nil)
	_ domrepo.CandleWriter = (*CHCandleStore)(nil)
)
