package usecase

import (
	"context"
	"time"

	"RegimeLab/internal/domain/models"
	domrepo "RegimeLab/internal/domain/repository"
	"RegimeLab/internal/services/bootstrap"
	applogger "RegimeLab/pkg/logger"
)

// BootstrapUseCase serves raw regime-preserving resamples.
type BootstrapUseCase struct {
	candles *CandlesUseCase
	cfg     EngineConfig
	rec     *recorder
	l       *applogger.Logger
}

func NewBootstrapUseCase(candles *CandlesUseCase, cfg EngineConfig, metrics domrepo.Metrics, l *applogger.Logger) *BootstrapUseCase {
	if l == nil {
		l = applogger.Nop()
	}
	return &BootstrapUseCase{
		candles: candles,
		cfg:     cfg.withDefaults(),
		rec:     &recorder{metrics: metrics, l: l},
		l:       l,
	}
}

func (uc *BootstrapUseCase) Run(ctx context.Context, req models.BootstrapRequest) (res *models.BootstrapResult, err error) {
	start := time.Now()
	defer func() {
		n := 0
		if res != nil {
			n = len(res.Synthetic)
		}
		uc.rec.observe("bootstrap", start, n, err)
	}()

	if err := uc.cfg.checkShuffles(req.GetNumShuffles()); err != nil {
		return nil, err
	}
	candles, err := uc.candles.Resolve(ctx, req.CandleSourceRequest)
	if err != nil {
		return nil, err
	}

	res, err = bootstrap.PerformBootstrapResampling(candles, req.GetBucketSize(), req.GetNumShuffles(), req.GetSeed(),
		bootstrap.WithVolatilityWindow(uc.cfg.VolatilityWindow))
	if err != nil {
		return nil, err
	}

	if !req.IncludeCandles {
		for i := range res.Synthetic {
			res.Synthetic[i].Candles = nil
		}
	}
	if !req.IncludeRegimes {
		res.Regimes = models.RegimeSeries{}
	}

	uc.l.Info("bootstrap completed",
		applogger.String("symbol", req.Symbol),
		applogger.Int("candles", len(candles)),
		applogger.Int("shuffles", req.GetNumShuffles()),
		applogger.Seed(req.GetSeed()),
		applogger.Duration("took", time.Since(start)))
	return res, nil
}
