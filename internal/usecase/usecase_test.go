package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"RegimeLab/internal/domain/models"
	domrepo "RegimeLab/internal/domain/repository"
	"RegimeLab/internal/repository"
	"RegimeLab/internal/services/bootstrap"
	pkgcache "RegimeLab/pkg/cache"
	"RegimeLab/pkg/logger"
	"RegimeLab/pkg/queue"
)

func waveCandles(n int) []models.Candle {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := range out {
		x := float64(i)
		c := 100 * (1 + 0.001*x) * (1 + (0.01+0.0005*x)*math.Sin(x/4))
		out[i] = models.Candle{
			Date:  start.AddDate(0, 0, i).Format(time.RFC3339),
			Open:  c,
			High:  c * 1.01,
			Low:   c * 0.99,
			Close: c,
		}
	}
	return out
}

type fakeSource struct {
	candles  []models.Candle
	err      error
	interval domrepo.Interval
	limit    int
}

func (f *fakeSource) GetCandles(_ context.Context, _ string, iv domrepo.Interval, limit int) ([]models.Candle, error) {
	f.interval, f.limit = iv, limit
	return f.candles, f.err
}

type fakeRuns struct {
	repository.NopRunStore
	mu    sync.Mutex
	saved []models.RunSummary
}

func (f *fakeRuns) SaveRun(_ context.Context, r models.RunSummary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, r)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.JobResultEvent
}

func (f *fakePublisher) PublishResult(_ context.Context, ev models.JobResultEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

type fakeMetrics struct {
	mu   sync.Mutex
	runs map[string]int
}

func (f *fakeMetrics) RecordRun(kind, status string, _ float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.runs == nil {
		f.runs = map[string]int{}
	}
	f.runs[kind+"/"+status]++
}
func (f *fakeMetrics) RecordSeries(string, int)    {}
func (f *fakeMetrics) RecordError(string)          {}
func (f *fakeMetrics) RecordCacheHit(string, bool) {}

func robustnessRequest(candles []models.Candle) models.RobustnessRequest {
	return models.RobustnessRequest{
		CandleSourceRequest: models.CandleSourceRequest{Candles: candles},
		Strategy: models.StrategyRequest{
			IndicatorType:  "ema",
			PositionType:   "both",
			InitialCapital: 10000,
		},
		BucketSize:     models.Ptr(25.0),
		NumShuffles:    models.Ptr(12),
		Seed:           models.Ptr[int64](777),
		MonteCarlo:     true,
		NumSimulations: models.Ptr(50),
		Bins:           models.Ptr(10),
	}
}

func TestCandlesResolve(t *testing.T) {
	src := &fakeSource{candles: waveCandles(40)}
	uc := NewCandlesUseCase(src)

	inline := waveCandles(35)
	got, err := uc.Resolve(context.Background(), models.CandleSourceRequest{Candles: inline, Symbol: "BTC"})
	if err != nil || len(got) != 35 {
		t.Fatalf("inline: got %d candles, err %v", len(got), err)
	}
	if src.limit != 0 {
		t.Fatalf("source must not be called when candles are inline")
	}

	got, err = uc.Resolve(context.Background(), models.CandleSourceRequest{Symbol: "BTC", Interval: "2h", Limit: 9000})
	if err != nil || len(got) != 40 {
		t.Fatalf("symbol: got %d candles, err %v", len(got), err)
	}
	if src.interval != domrepo.Interval1d || src.limit != maxCandleLimit {
		t.Fatalf("expected normalized 1d/%d, got %s/%d", maxCandleLimit, src.interval, src.limit)
	}

	if _, err := uc.Resolve(context.Background(), models.CandleSourceRequest{}); !errors.Is(err, bootstrap.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := NewCandlesUseCase(nil).Resolve(context.Background(), models.CandleSourceRequest{Symbol: "ETH"}); !errors.Is(err, domrepo.ErrNoCandles) {
		t.Fatalf("expected ErrNoCandles, got %v", err)
	}
}

func TestRobustnessDeterministicAcrossWorkers(t *testing.T) {
	candles := waveCandles(240)
	req := robustnessRequest(candles)

	run := func(workers int) (*models.RobustnessReport, *fakeRuns, *fakePublisher) {
		runs, pub := &fakeRuns{}, &fakePublisher{}
		uc := NewRobustnessUseCase(NewCandlesUseCase(nil), EngineConfig{Workers: workers}, runs, pub, &fakeMetrics{}, logger.Nop())
		rep, err := uc.Run(WithRunID(context.Background(), "run-1"), req)
		if err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		return rep, runs, pub
	}

	serial, runs, pub := run(1)
	parallel, _, _ := run(4)

	if len(serial.Runs) != req.GetNumShuffles() {
		t.Fatalf("expected %d runs, got %d", req.GetNumShuffles(), len(serial.Runs))
	}
	for i, r := range serial.Runs {
		if r.Seed != bootstrap.SeedFor(req.GetSeed(), i) {
			t.Fatalf("run %d seed %d, want %d", i, r.Seed, bootstrap.SeedFor(req.GetSeed(), i))
		}
	}
	if !reflect.DeepEqual(serial.Runs, parallel.Runs) || !reflect.DeepEqual(serial.Distribution, parallel.Distribution) {
		t.Fatalf("results depend on worker count")
	}
	if serial.Rank.TotalReturn < 0 || serial.Rank.TotalReturn > 100 {
		t.Fatalf("rank out of range: %v", serial.Rank.TotalReturn)
	}
	if serial.MonteCarlo == nil || serial.MonteCarlo.Stats.NumSimulations != 50 {
		t.Fatalf("expected monte carlo with 50 simulations, got %+v", serial.MonteCarlo)
	}
	total := 0
	for _, b := range serial.ReturnHistogram {
		total += b.Count
	}
	if total != req.GetNumShuffles() {
		t.Fatalf("histogram holds %d runs, want %d", total, req.GetNumShuffles())
	}
	if len(runs.saved) != 1 || runs.saved[0].ID != "run-1" || runs.saved[0].Runs != req.GetNumShuffles() {
		t.Fatalf("unexpected saved summaries: %+v", runs.saved)
	}
	if len(pub.events) != 1 || pub.events[0].Status != models.JobDone {
		t.Fatalf("unexpected events: %+v", pub.events)
	}
}

func TestRobustnessLimits(t *testing.T) {
	uc := NewRobustnessUseCase(NewCandlesUseCase(nil), EngineConfig{MaxShuffles: 5}, nil, nil, nil, nil)
	req := robustnessRequest(waveCandles(100))
	if _, err := uc.Run(context.Background(), req); !errors.Is(err, bootstrap.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for too many shuffles, got %v", err)
	}

	req = robustnessRequest(waveCandles(20))
	req.NumShuffles = models.Ptr(1)
	uc = NewRobustnessUseCase(NewCandlesUseCase(nil), EngineConfig{}, nil, nil, nil, nil)
	if _, err := uc.Run(context.Background(), req); !errors.Is(err, bootstrap.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req = robustnessRequest(waveCandles(100))
	if _, err := uc.Run(ctx, req); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMonteCarloFromReturns(t *testing.T) {
	m := &fakeMetrics{}
	uc := NewMonteCarloUseCase(NewCandlesUseCase(nil), EngineConfig{Workers: 3}, nil, nil, m, logger.Nop())
	res, err := uc.Run(context.Background(), models.MonteCarloRequest{
		Returns:        []float64{0.1, -0.05, 0.02},
		InitialCapital: 10000,
		NumSimulations: models.Ptr(40),
		Seed:           models.Ptr[int64](1),
		Bins:           models.Ptr(5),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	want := 10000 * 1.1 * 0.95 * 1.02
	if math.Abs(res.Stats.FinalEquity.Min-want) > 1e-6 || math.Abs(res.Stats.FinalEquity.Max-want) > 1e-6 {
		t.Fatalf("final equity must not depend on order: %+v want %v", res.Stats.FinalEquity, want)
	}
	if m.runs["montecarlo/ok"] != 1 {
		t.Fatalf("expected one recorded run, got %v", m.runs)
	}

	_, err = uc.Run(context.Background(), models.MonteCarloRequest{InitialCapital: 10000, NumSimulations: models.Ptr(10)})
	if !errors.Is(err, bootstrap.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument without returns or source, got %v", err)
	}
	_, err = uc.Run(context.Background(), models.MonteCarloRequest{Returns: []float64{0.1}, InitialCapital: 10000, NumSimulations: models.Ptr(20000)})
	if !errors.Is(err, bootstrap.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument above the simulation cap, got %v", err)
	}
}

func TestMonteCarloFromStrategy(t *testing.T) {
	uc := NewMonteCarloUseCase(NewCandlesUseCase(&fakeSource{candles: waveCandles(200)}), EngineConfig{}, nil, nil, nil, nil)
	res, err := uc.Run(context.Background(), models.MonteCarloRequest{
		CandleSourceRequest: models.CandleSourceRequest{Symbol: "BTC", Interval: "1d", Limit: 200},
		Strategy:            models.StrategyRequest{IndicatorType: "rsi", PositionType: "long_only", InitialCapital: 10000},
		InitialCapital:      10000,
		NumSimulations:      models.Ptr(10),
		Seed:                models.Ptr[int64](9),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Stats.NumSimulations != 10 {
		t.Fatalf("expected 10 simulations, got %d", res.Stats.NumSimulations)
	}
}

func TestMoneySummary(t *testing.T) {
	m := MoneySummary(10000, []models.Trade{{PnL: 0.1}, {PnL: -0.5}, {PnL: -2}})
	wantPnL := []int64{1000, -5500, -5500}
	for i, w := range wantPnL {
		if !m.TradePnL[i].Equal(decimal.NewFromInt(w)) {
			t.Fatalf("trade %d pnl %s, want %d", i, m.TradePnL[i], w)
		}
	}
	if !m.FinalCapital.IsZero() {
		t.Fatalf("capital must floor at zero, got %s", m.FinalCapital)
	}
	if !m.NetProfit.Equal(decimal.NewFromInt(-10000)) {
		t.Fatalf("net profit %s, want -10000", m.NetProfit)
	}

	m = MoneySummary(1000, []models.Trade{{PnL: 0.123456}})
	if m.FinalCapital.String() != "1123.46" {
		t.Fatalf("final capital %s, want 1123.46", m.FinalCapital)
	}
}

func newJobs(t *testing.T, pub *fakePublisher) (*JobsUseCase, *queue.MemoryQueue) {
	t.Helper()
	candles := NewCandlesUseCase(nil)
	robust := NewRobustnessUseCase(candles, EngineConfig{Workers: 2}, nil, pub, nil, nil)
	mc := NewMonteCarloUseCase(candles, EngineConfig{Workers: 2}, nil, pub, nil, nil)
	store := repository.NewCacheJobStore(pkgcache.NewMemoryCache(), time.Hour)
	q := queue.NewMemoryQueue(logger.Nop(), &queue.QueueConfig{Workers: 1, RetryDelay: 10 * time.Millisecond})
	jobs := NewJobsUseCase(store, q, robust, mc, pub, logger.Nop())
	for _, j := range jobs.QueueJobs() {
		q.RegisterJob(j)
	}
	if err := q.Start(); err != nil {
		t.Fatalf("start queue: %v", err)
	}
	t.Cleanup(func() { _ = q.Stop(context.Background()) })
	return jobs, q
}

func waitTerminal(t *testing.T, jobs *JobsUseCase, id string) models.JobRecord {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := jobs.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if rec.Status.Terminal() {
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish", id)
	return models.JobRecord{}
}

func TestJobsRobustnessLifecycle(t *testing.T) {
	pub := &fakePublisher{}
	jobs, _ := newJobs(t, pub)

	payload, _ := json.Marshal(map[string]interface{}{
		"candles":     waveCandles(120),
		"numShuffles": 4,
		"seed":        5,
	})
	rec, err := jobs.Submit(context.Background(), models.CreateJobRequest{Type: models.JobRobustness, Payload: payload})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if rec.Status != models.JobQueued || rec.ID == "" {
		t.Fatalf("unexpected record %+v", rec)
	}

	done := waitTerminal(t, jobs, rec.ID)
	if done.Status != models.JobDone || done.Progress != 1 {
		t.Fatalf("expected done with progress 1, got %+v", done)
	}
	var rep models.RobustnessReport
	if err := json.Unmarshal(done.Result, &rep); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(rep.Runs) != 4 || rep.BaseSeed != 5 {
		t.Fatalf("unexpected report: runs=%d seed=%d", len(rep.Runs), rep.BaseSeed)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.events) != 1 || pub.events[0].ID != rec.ID {
		t.Fatalf("expected one event for %s, got %+v", rec.ID, pub.events)
	}

	again, err := jobs.Submit(context.Background(), models.CreateJobRequest{ID: rec.ID, Type: models.JobRobustness, Payload: payload})
	if err != nil || again.Status != models.JobDone {
		t.Fatalf("resubmitting an id must return the stored record, got %+v %v", again, err)
	}
}

func TestJobsFailureIsRecorded(t *testing.T) {
	pub := &fakePublisher{}
	jobs, q := newJobs(t, pub)

	payload, _ := json.Marshal(map[string]interface{}{"candles": waveCandles(10), "numShuffles": 2})
	rec, err := jobs.Submit(context.Background(), models.CreateJobRequest{Type: models.JobRobustness, Payload: payload})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	done := waitTerminal(t, jobs, rec.ID)
	if done.Status != models.JobFailed || done.Error == "" {
		t.Fatalf("expected failed job with error, got %+v", done)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(q.DeadLetters()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if len(q.DeadLetters()) != 1 {
		t.Fatalf("permanent failure must be dead-lettered without retry")
	}
}

func TestJobsRejectInvalidPayload(t *testing.T) {
	jobs, _ := newJobs(t, &fakePublisher{})
	cases := []models.CreateJobRequest{
		{Type: "optimize", Payload: json.RawMessage(`{}`)},
		{Type: models.JobMonteCarlo, Payload: json.RawMessage(`{"numSimulations": 999999}`)},
		{Type: models.JobRobustness, Payload: json.RawMessage(`not json`)},
	}
	for _, c := range cases {
		if _, err := jobs.Submit(context.Background(), c); !errors.Is(err, bootstrap.ErrInvalidArgument) {
			t.Fatalf("%s: expected ErrInvalidArgument, got %v", c.Type, err)
		}
	}
}

func TestDecodeJobPayloadKeepsExplicitZeros(t *testing.T) {
	got, err := DecodeJobPayload(context.Background(), models.JobRobustness, json.RawMessage(`{"seed": 0}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	req := got.(*models.RobustnessRequest)
	if req.Seed == nil || *req.Seed != 0 || req.GetSeed() != 0 {
		t.Fatalf("explicit seed 0 replaced: %+v", req.Seed)
	}
	if req.GetBucketSize() != 20 || req.GetNumShuffles() != 20 || req.Strategy.PositionType != "both" {
		t.Fatalf("defaults not applied: %+v", req)
	}

	for _, body := range []string{`{"bucketSize": 0}`, `{"numShuffles": 0}`, `{"numSimulations": 0}`} {
		if _, err := DecodeJobPayload(context.Background(), models.JobRobustness, json.RawMessage(body)); !errors.Is(err, bootstrap.ErrInvalidArgument) {
			t.Fatalf("%s: expected ErrInvalidArgument, got %v", body, err)
		}
	}
	if _, err := DecodeJobPayload(context.Background(), models.JobMonteCarlo, json.RawMessage(`{"numSimulations": 0}`)); !errors.Is(err, bootstrap.ErrInvalidArgument) {
		t.Fatalf("explicit zero simulations must be rejected, got %v", err)
	}
}

type recordingQueue struct {
	mu       sync.Mutex
	enqueued []string
}

func (q *recordingQueue) RegisterJob(queue.Job) {}
func (q *recordingQueue) Start() error          { return nil }
func (q *recordingQueue) Stop(context.Context) error {
	return nil
}
func (q *recordingQueue) Enqueue(_ context.Context, msgType string, _ interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, msgType)
	return nil
}

func TestKafkaRequestsHandler(t *testing.T) {
	q := &recordingQueue{}
	store := repository.NewCacheJobStore(pkgcache.NewMemoryCache(), time.Hour)
	jobs := NewJobsUseCase(store, q, nil, nil, nil, logger.Nop())
	h := NewKafkaRequestsHandler("regimelab.requests", jobs, &fakeMetrics{}, logger.Nop())

	if h.Topic() != "regimelab.requests" {
		t.Fatalf("unexpected topic %s", h.Topic())
	}
	if err := h.Handle(context.Background(), []byte("{")); err != nil {
		t.Fatalf("undecodable messages are dropped, got %v", err)
	}
	if err := h.Handle(context.Background(), []byte(`{"type":"montecarlo","payload":{"numSimulations":-5}}`)); err != nil {
		t.Fatalf("invalid requests are dropped, got %v", err)
	}

	msg := []byte(`{"type":"montecarlo","payload":{"returns":[0.1,-0.02],"numSimulations":10}}`)
	if err := h.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(q.enqueued) != 1 || q.enqueued[0] != string(models.JobMonteCarlo) {
		t.Fatalf("expected one montecarlo enqueue, got %v", q.enqueued)
	}
}
