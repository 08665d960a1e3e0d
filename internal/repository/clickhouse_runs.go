package repository

import (
	"context"
	"database/sql"
	"fmt"

	"RegimeLab/internal/domain/models"
	domrepo "RegimeLab/internal/domain/repository"
	pkgch "RegimeLab/pkg/clickhouse"
)

// CHRunStore persists run summaries in ClickHouse.
type CHRunStore struct {
	ch       *pkgch.Client
	db       *sql.DB
	database string
	table    string
}

func NewCHRunStore(ch *pkgch.Client, database string) *CHRunStore {
	return &CHRunStore{ch: ch, db: ch.DB(), database: database, table: database + ".run_summaries"}
}

func (s *CHRunStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, Schema(s.database))
}

func (s *CHRunStore) SaveRun(ctx context.Context, r models.RunSummary) error {
	q := fmt.Sprintf(`INSERT INTO %s (id, kind, symbol, indicator, position, base_seed, bucket_size, runs,
		original_return, median_return, p5_return, p95_return, median_drawdown, probability_profit,
		duration_ms, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.table)
	_, err := s.db.ExecContext(ctx, q,
		r.ID, string(r.Kind), r.Symbol, r.Indicator, r.Position, r.BaseSeed, r.BucketSize, uint32(r.Runs),
		r.OriginalReturn, r.MedianReturn, r.P5Return, r.P95Return, r.MedianDrawdown, r.ProbabilityProfit,
		r.DurationMillis, r.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// RecentRuns lists the newest summaries; an empty symbol matches all.
func (s *CHRunStore) RecentRuns(ctx context.Context, symbol string, limit int) ([]models.RunSummary, error) {
	q := fmt.Sprintf(`SELECT id, kind, symbol, indicator, position, base_seed, bucket_size, runs,
		original_return, median_return, p5_return, p95_return, median_drawdown, probability_profit,
		duration_ms, created_at
		FROM %s WHERE (? = '' OR symbol = ?) ORDER BY created_at DESC LIMIT ?`, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("recent runs: %w", err)
	}
	defer rows.Close()

	var out []models.RunSummary
	for rows.Next() {
		var (
			r    models.RunSummary
			kind string
			runs uint32
		)
		if err := rows.Scan(&r.ID, &kind, &r.Symbol, &r.Indicator, &r.Position, &r.BaseSeed, &r.BucketSize, &runs,
			&r.OriginalReturn, &r.MedianReturn, &r.P5Return, &r.P95Return, &r.MedianDrawdown, &r.ProbabilityProfit,
			&r.DurationMillis, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Kind = models.JobType(kind)
		r.Runs = int(runs)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *CHRunStore) Health(ctx context.Context) error {
	return s.ch.Health(ctx)
}

func (s *CHRunStore) Close() error {
	return nil // client owned by DI
}

var _ domrepo.RunStore = (*CHRunStore)(nil)
