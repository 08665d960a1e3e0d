package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	domrepo "RegimeLab/internal/domain/repository"
	icache "RegimeLab/internal/service/cache"
	svcmetrics "RegimeLab/internal/service/metrics"
	"RegimeLab/internal/service/ratelimit"
	"RegimeLab/internal/services/bootstrap"
	"RegimeLab/internal/usecase"
	xhttp "RegimeLab/pkg/http"
	xlogger "RegimeLab/pkg/logger"
)

// EngineHandler exposes the resampling, simulation and Monte Carlo engine
// over HTTP.
type EngineHandler struct {
	logger     *xlogger.Logger
	bootstrap  *usecase.BootstrapUseCase
	simulate   *usecase.SimulateUseCase
	montecarlo *usecase.MonteCarloUseCase
	robustness *usecase.RobustnessUseCase
	jobs       *usecase.JobsUseCase
	runs       domrepo.RunStore
	cache      *icache.ResponseCache
	metrics    domrepo.Metrics
	limiter    *ratelimit.Limiter
	checks     map[string]func(context.Context) error
	wsPoll     time.Duration
}

// Option configures EngineHandler.
type Option func(*EngineHandler)

func WithResponseCache(c *icache.ResponseCache) Option {
	return func(h *EngineHandler) { h.cache = c }
}

func WithRunStore(r domrepo.RunStore) Option {
	return func(h *EngineHandler) { h.runs = r }
}

func WithMetrics(m domrepo.Metrics) Option {
	return func(h *EngineHandler) { h.metrics = m }
}

// WithRateLimiter throttles the compute and job endpoints.
func WithRateLimiter(l *ratelimit.Limiter) Option {
	return func(h *EngineHandler) { h.limiter = l }
}

// WithHealthCheck adds a named dependency check to /api/health.
func WithHealthCheck(name string, fn func(context.Context) error) Option {
	return func(h *EngineHandler) {
		if fn != nil {
			h.checks[name] = fn
		}
	}
}

// WithPollInterval sets how often the job websocket re-reads the record.
func WithPollInterval(d time.Duration) Option {
	return func(h *EngineHandler) {
		if d > 0 {
			h.wsPoll = d
		}
	}
}

func NewEngineHandler(
	logger *xlogger.Logger,
	bootstrap *usecase.BootstrapUseCase,
	simulate *usecase.SimulateUseCase,
	montecarlo *usecase.MonteCarloUseCase,
	robustness *usecase.RobustnessUseCase,
	jobs *usecase.JobsUseCase,
	opts ...Option,
) *EngineHandler {
	svcmetrics.Register()
	if logger == nil {
		logger = xlogger.Nop()
	}
	h := &EngineHandler{
		logger:     logger,
		bootstrap:  bootstrap,
		simulate:   simulate,
		montecarlo: montecarlo,
		robustness: robustness,
		jobs:       jobs,
		checks:     map[string]func(context.Context) error{},
		wsPoll:     500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *EngineHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/health", h.Health)
	g.GET("/runs", h.Runs)
	g.GET("/jobs/:id", h.GetJob)
	g.GET("/jobs/:id/ws", h.StreamJob)

	compute := g.Group("", ratelimit.Middleware(h.limiter))
	compute.POST("/bootstrap", h.Bootstrap)
	compute.POST("/simulate", h.Simulate)
	compute.POST("/montecarlo", h.MonteCarlo)
	compute.POST("/robustness", h.Robustness)
	compute.POST("/jobs", h.CreateJob)
}

func (h *EngineHandler) Bootstrap(c echo.Context) error {
	return serve(h, c, "bootstrap", true, h.bootstrap.Run)
}

func (h *EngineHandler) Simulate(c echo.Context) error {
	return serve(h, c, "simulate", true, h.simulate.Run)
}

func (h *EngineHandler) MonteCarlo(c echo.Context) error {
	return serve(h, c, "montecarlo", false, h.montecarlo.Run)
}

func (h *EngineHandler) Robustness(c echo.Context) error {
	return serve(h, c, "robustness", false, h.robustness.Run)
}

// serve binds and validates a Req, answers from the response cache when
// possible and otherwise runs the use case. Only endpoints without side
// effects pass cacheable, and only requests carrying their candles inline
// are cached: symbol-sourced candles may change within the TTL.
func serve[Req any, Res any](h *EngineHandler, c echo.Context, endpoint string, cacheable bool, run func(context.Context, Req) (Res, error)) error {
	start := time.Now()
	code := ""
	defer func() { svcmetrics.ObserveEndpoint(endpoint, start, code) }()

	req := new(Req)
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		code = "ERR_VALIDATION"
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()

	var key string
	if cacheable && h.cache.Enabled() && inlineSource(req) {
		if k, err := h.cache.Key(endpoint, req); err == nil {
			key = k
			body, hit := h.cache.Lookup(ctx, key)
			h.cacheHit(endpoint, hit)
			if hit {
				c.Response().Header().Set("X-Cache", "HIT")
				return xhttp.SuccessResponse(c, json.RawMessage(body))
			}
		}
	}

	res, err := run(ctx, *req)
	if err != nil {
		appErr := mapError(err)
		code = appErr.Code
		if appErr.Status >= http.StatusInternalServerError {
			h.logger.Error(endpoint+" failed", xlogger.Error(err))
		}
		return xhttp.AppErrorResponse(c, appErr)
	}

	if key != "" {
		if body, err := json.Marshal(res); err == nil {
			h.cache.Store(ctx, key, body)
		}
	}
	return xhttp.SuccessResponse(c, res)
}

func inlineSource(req any) bool {
	s, ok := req.(interface{ HasInlineCandles() bool })
	return ok && s.HasInlineCandles()
}

func (h *EngineHandler) cacheHit(endpoint string, hit bool) {
	if h.metrics != nil {
		h.metrics.RecordCacheHit(endpoint, hit)
	}
}

// mapError translates engine and repository errors into transport errors.
func mapError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, bootstrap.ErrInvalidArgument):
		return xhttp.InvalidArgumentError(err)
	case errors.Is(err, bootstrap.ErrInsufficientData):
		return xhttp.InsufficientDataError(err)
	case errors.Is(err, domrepo.ErrNoCandles):
		return xhttp.NoCandlesError(err)
	case errors.Is(err, domrepo.ErrNotFound):
		return xhttp.NotFoundError(err.Error()).WithError(err)
	case errors.Is(err, context.DeadlineExceeded):
		return xhttp.TimeoutError(err)
	case errors.Is(err, context.Canceled):
		return xhttp.CanceledError(err)
	default:
		return xhttp.InternalError(err)
	}
}

var _ xhttp.Handler = (*EngineHandler)(nil)
