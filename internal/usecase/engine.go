package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"RegimeLab/internal/domain/models"
	domrepo "RegimeLab/internal/domain/repository"
	"RegimeLab/internal/services/bootstrap"
	applogger "RegimeLab/pkg/logger"
)

// EngineConfig bounds what a single request may ask of the engine.
type EngineConfig struct {
	VolatilityWindow int
	MaxShuffles      int
	MaxSimulations   int
	Bins             int
	Workers          int
	RiskFreeRate     float64
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.VolatilityWindow < 2 {
		c.VolatilityWindow = bootstrap.DefaultVolatilityWindow
	}
	if c.MaxShuffles <= 0 {
		c.MaxShuffles = 100
	}
	if c.MaxSimulations <= 0 {
		c.MaxSimulations = 10000
	}
	if c.Bins <= 0 {
		c.Bins = 25
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	return c
}

func (c EngineConfig) checkShuffles(n int) error {
	if n < 1 || n > c.MaxShuffles {
		return fmt.Errorf("numShuffles must be in [1, %d], got %d: %w", c.MaxShuffles, n, bootstrap.ErrInvalidArgument)
	}
	return nil
}

func (c EngineConfig) checkSimulations(n int) error {
	if n < 1 || n > c.MaxSimulations {
		return fmt.Errorf("numSimulations must be in [1, %d], got %d: %w", c.MaxSimulations, n, bootstrap.ErrInvalidArgument)
	}
	return nil
}

func (c EngineConfig) bins(n int) int {
	if n > 0 {
		return n
	}
	return c.Bins
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", bootstrap.ErrInvalidArgument, err)
}

type ctxKey int

const (
	runIDKey ctxKey = iota
	progressKey
)

// ProgressFunc receives the completed fraction of a run, in [0, 1].
type ProgressFunc func(done float64)

// WithRunID tags the run executed under ctx with id, so stored summaries
// and published events carry the job id.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// WithProgress installs a progress callback for long runs.
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return context.WithValue(ctx, progressKey, fn)
}

func runID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

func reportProgress(ctx context.Context, done float64) {
	if fn, ok := ctx.Value(progressKey).(ProgressFunc); ok && fn != nil {
		fn(done)
	}
}

// forEach calls fn for i in [0, n) on at most workers goroutines. fn writes
// its result by index; the first error cancels the remaining work.
func forEach(ctx context.Context, n, workers int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// recorder persists and announces completed runs. Failures are logged only.
type recorder struct {
	runs    domrepo.RunStore
	pub     domrepo.ResultPublisher
	metrics domrepo.Metrics
	l       *applogger.Logger
}

func (r *recorder) observe(kind models.JobType, start time.Time, series int, err error) {
	if r.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		r.metrics.RecordError(string(kind))
	}
	r.metrics.RecordRun(string(kind), status, time.Since(start).Seconds())
	if err == nil && series > 0 {
		r.metrics.RecordSeries(string(kind), series)
	}
}

func (r *recorder) record(ctx context.Context, sum models.RunSummary, result interface{}) {
	if r.runs != nil {
		if err := r.runs.SaveRun(ctx, sum); err != nil {
			r.l.Warn("save run summary failed", applogger.String("id", sum.ID), applogger.Error(err))
		}
	}
	if r.pub == nil {
		return
	}
	body, err := json.Marshal(result)
	if err != nil {
		r.l.Warn("encode result event failed", applogger.String("id", sum.ID), applogger.Error(err))
		return
	}
	ev := models.JobResultEvent{
		ID:         sum.ID,
		Type:       sum.Kind,
		Status:     models.JobDone,
		Result:     body,
		FinishedAt: time.Now().UTC(),
	}
	if err := r.pub.PublishResult(ctx, ev); err != nil {
		r.l.Warn("publish result failed", applogger.String("id", sum.ID), applogger.Error(err))
	}
}
