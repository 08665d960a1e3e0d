package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"RegimeLab/internal/domain/models"
	"RegimeLab/internal/repository"
	icache "RegimeLab/internal/service/cache"
	"RegimeLab/internal/service/ratelimit"
	"RegimeLab/internal/usecase"
	pkgcache "RegimeLab/pkg/cache"
	xlogger "RegimeLab/pkg/logger"
	"RegimeLab/pkg/queue"
)

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func candles(n int) []models.Candle {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	for i := range out {
		x := float64(i)
		c := 50 * (1 + 0.002*x) * (1 + 0.02*math.Sin(x/3))
		out[i] = models.Candle{Date: start.AddDate(0, 0, i).Format(time.RFC3339), Open: c, High: c * 1.01, Low: c * 0.99, Close: c}
	}
	return out
}

func newTestEcho(t *testing.T, opts ...Option) *echo.Echo {
	t.Helper()
	l := xlogger.Nop()
	src := usecase.NewCandlesUseCase(nil)
	cfg := usecase.EngineConfig{Workers: 2}
	robust := usecase.NewRobustnessUseCase(src, cfg, nil, nil, nil, l)
	mc := usecase.NewMonteCarloUseCase(src, cfg, nil, nil, nil, l)

	q := queue.NewMemoryQueue(l, &queue.QueueConfig{Workers: 1})
	store := repository.NewCacheJobStore(pkgcache.NewMemoryCache(), time.Hour)
	jobs := usecase.NewJobsUseCase(store, q, robust, mc, nil, l)
	for _, j := range jobs.QueueJobs() {
		q.RegisterJob(j)
	}
	if err := q.Start(); err != nil {
		t.Fatalf("start queue: %v", err)
	}
	t.Cleanup(func() { _ = q.Stop(context.Background()) })

	h := NewEngineHandler(l,
		usecase.NewBootstrapUseCase(src, cfg, nil, l),
		usecase.NewSimulateUseCase(src, cfg, nil, l),
		mc, robust, jobs, append([]Option{WithPollInterval(10 * time.Millisecond)}, opts...)...)
	e := echo.New()
	h.RegisterRoutes(e)
	return e
}

func post(t *testing.T, e *echo.Echo, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	b, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	_ = json.Unmarshal(rec.Body.Bytes(), &env)
	return rec, env
}

func TestBootstrapEndpoint(t *testing.T) {
	e := newTestEcho(t)
	rec, env := post(t, e, "/api/bootstrap", map[string]interface{}{
		"candles":        candles(90),
		"numShuffles":    3,
		"includeCandles": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res models.BootstrapResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Synthetic) != 3 || len(res.Synthetic[0].Candles) == 0 {
		t.Fatalf("expected 3 synthetic series with candles, got %d", len(res.Synthetic))
	}
	if res.BucketSize != 20 || res.BaseSeed != 12345 {
		t.Fatalf("defaults not applied: bucket=%v seed=%d", res.BucketSize, res.BaseSeed)
	}
}

func TestExplicitZeroKnobs(t *testing.T) {
	e := newTestEcho(t)
	rec, env := post(t, e, "/api/bootstrap", map[string]interface{}{"candles": candles(90), "numShuffles": 2, "seed": 0})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var res models.BootstrapResult
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.BaseSeed != 0 || res.Synthetic[1].Seed != 1000 {
		t.Fatalf("seed 0 replaced by default: base=%d second=%d", res.BaseSeed, res.Synthetic[1].Seed)
	}

	for _, tc := range []struct {
		path string
		body map[string]interface{}
	}{
		{"/api/bootstrap", map[string]interface{}{"candles": candles(90), "bucketSize": 0}},
		{"/api/bootstrap", map[string]interface{}{"candles": candles(90), "numShuffles": 0}},
		{"/api/robustness", map[string]interface{}{"candles": candles(90), "bucketSize": 0}},
		{"/api/montecarlo", map[string]interface{}{"returns": []float64{0.01}, "numSimulations": 0}},
	} {
		if rec, _ := post(t, e, tc.path, tc.body); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s %v: expected 400, got %d", tc.path, tc.body, rec.Code)
		}
	}
}

func TestRobustnessDefaultsToBothSides(t *testing.T) {
	e := newTestEcho(t)
	rec, env := post(t, e, "/api/robustness", map[string]interface{}{"candles": candles(90), "numShuffles": 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var rep models.RobustnessReport
	if err := json.Unmarshal(env.Data, &rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.Position != models.Both {
		t.Fatalf("expected position both, got %q", rep.Position)
	}
}

func TestEndpointErrors(t *testing.T) {
	e := newTestEcho(t)
	cases := []struct {
		name   string
		path   string
		body   map[string]interface{}
		status int
		code   string
	}{
		{"too many shuffles", "/api/bootstrap", map[string]interface{}{"candles": candles(90), "numShuffles": 101}, http.StatusBadRequest, ""},
		{"short series", "/api/bootstrap", map[string]interface{}{"candles": candles(12)}, http.StatusUnprocessableEntity, "ERR_INSUFFICIENT_DATA"},
		{"no source", "/api/simulate", map[string]interface{}{}, http.StatusBadRequest, "ERR_INVALID_ARGUMENT"},
		{"bad crossover", "/api/simulate", map[string]interface{}{"candles": candles(40), "strategy": map[string]interface{}{"fast": 30, "slow": 10}}, http.StatusBadRequest, "ERR_INVALID_ARGUMENT"},
		{"symbol without source", "/api/robustness", map[string]interface{}{"symbol": "BTC"}, http.StatusNotFound, "ERR_NO_CANDLES"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, _ := post(t, e, tc.path, tc.body)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rec.Code, rec.Body.String())
			}
			if tc.code != "" && !strings.Contains(rec.Body.String(), tc.code) {
				t.Fatalf("expected code %s in %s", tc.code, rec.Body.String())
			}
		})
	}
}

func TestSimulateResponseCache(t *testing.T) {
	e := newTestEcho(t, WithResponseCache(icache.NewResponseCache(icache.NewServiceCache(pkgcache.NewMemoryCache()), time.Minute)))
	body := map[string]interface{}{"candles": candles(80), "strategy": map[string]interface{}{"indicatorType": "rsi"}}

	first, env1 := post(t, e, "/api/simulate", body)
	if first.Code != http.StatusOK || first.Header().Get("X-Cache") != "" {
		t.Fatalf("first call: %d cache=%q", first.Code, first.Header().Get("X-Cache"))
	}
	second, env2 := post(t, e, "/api/simulate", body)
	if second.Code != http.StatusOK || second.Header().Get("X-Cache") != "HIT" {
		t.Fatalf("second call: %d cache=%q", second.Code, second.Header().Get("X-Cache"))
	}
	var a, b models.SimulationResult
	if err := json.Unmarshal(env1.Data, &a); err != nil {
		t.Fatalf("decode first: %v", err)
	}
	if err := json.Unmarshal(env2.Data, &b); err != nil {
		t.Fatalf("decode second: %v", err)
	}
	if a.Metrics.TotalReturn != b.Metrics.TotalReturn || len(a.Trades) != len(b.Trades) {
		t.Fatalf("cached response differs")
	}
}

func TestResponseCacheSkipsSideEffectsAndSymbols(t *testing.T) {
	e := newTestEcho(t, WithResponseCache(icache.NewResponseCache(icache.NewServiceCache(pkgcache.NewMemoryCache()), time.Minute)))
	cases := []struct {
		path string
		body map[string]interface{}
	}{
		{"/api/montecarlo", map[string]interface{}{"returns": []float64{0.05, -0.02, 0.03}, "numSimulations": 25}},
		{"/api/robustness", map[string]interface{}{"candles": candles(90), "numShuffles": 2}},
		{"/api/bootstrap", map[string]interface{}{"symbol": "BTC"}},
	}
	for _, tc := range cases {
		for i := 0; i < 2; i++ {
			rec, _ := post(t, e, tc.path, tc.body)
			if rec.Header().Get("X-Cache") != "" {
				t.Fatalf("%s call %d must not be served from cache", tc.path, i)
			}
		}
	}
}

func TestRateLimitedCompute(t *testing.T) {
	e := newTestEcho(t, WithRateLimiter(ratelimit.New(1, 0.0001)))
	body := map[string]interface{}{"returns": []float64{0.01}, "numSimulations": 5}
	if rec, _ := post(t, e, "/api/montecarlo", body); rec.Code != http.StatusOK {
		t.Fatalf("first call should pass, got %d", rec.Code)
	}
	if rec, _ := post(t, e, "/api/montecarlo", body); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second call should be limited, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health is not rate limited, got %d", rec.Code)
	}
}

func TestHealthReportsFailingCheck(t *testing.T) {
	e := newTestEcho(t,
		WithHealthCheck("clickhouse", func(context.Context) error { return nil }),
		WithHealthCheck("pricefeed", func(context.Context) error { return errors.New("down") }))
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "down") {
		t.Fatalf("expected 503 with failing check, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRunsWithoutStore(t *testing.T) {
	e := newTestEcho(t)
	req := httptest.NewRequest(http.MethodGet, "/api/runs?limit=5000", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"data":[]`) {
		t.Fatalf("expected empty list, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestJobLifecycleOverWebsocket(t *testing.T) {
	e := newTestEcho(t)
	srv := httptest.NewServer(e)
	defer srv.Close()

	rec, env := post(t, e, "/api/jobs", map[string]interface{}{
		"type":    "robustness",
		"payload": map[string]interface{}{"candles": candles(120), "numShuffles": 3},
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var job models.JobRecord
	if err := json.Unmarshal(env.Data, &job); err != nil || job.ID == "" {
		t.Fatalf("decode job: %v %+v", err, job)
	}

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/jobs/" + job.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var last models.JobRecord
	for !last.Status.Terminal() {
		if err := conn.ReadJSON(&last); err != nil {
			t.Fatalf("read: %v", err)
		}
	}
	if last.Status != models.JobDone || last.ID != job.ID {
		t.Fatalf("expected done job %s, got %+v", job.ID, last)
	}

	get := httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID, nil)
	out := httptest.NewRecorder()
	e.ServeHTTP(out, get)
	if out.Code != http.StatusOK || !strings.Contains(out.Body.String(), `"status":"done"`) {
		t.Fatalf("unexpected job lookup: %d %s", out.Code, out.Body.String())
	}

	missing := httptest.NewRequest(http.MethodGet, "/api/jobs/nope", nil)
	out = httptest.NewRecorder()
	e.ServeHTTP(out, missing)
	if out.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", out.Code)
	}
}
