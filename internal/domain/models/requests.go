package models

import "fmt"

// CandleSourceRequest selects candles either inline or by symbol. Inline
// candles win when both are given.
type CandleSourceRequest struct {
	Candles  []Candle `json:"candles"`
	Symbol   string   `json:"symbol" validate:"max=32"`
	Interval string   `json:"interval" default:"1d" validate:"oneof=1h 4h 1d 1w"`
	Limit    int      `json:"limit" default:"365" validate:"min=31,max=5000"`
}

// StrategyRequest is the flat transport form of a Strategy. Zero-valued
// indicator fields fall back to the kind's defaults.
type StrategyRequest struct {
	IndicatorType  string   `json:"indicatorType" default:"ema" validate:"oneof=ema ma dema rsi cci zscore"`
	Fast           int      `json:"fast" validate:"omitempty,min=1,max=500"`
	Slow           int      `json:"slow" validate:"omitempty,min=2,max=1000"`
	EmaShort       int      `json:"emaShort" validate:"omitempty,min=1,max=500"`
	EmaLong        int      `json:"emaLong" validate:"omitempty,min=2,max=1000"`
	Length         int      `json:"length" validate:"omitempty,min=2,max=500"`
	Top            *float64 `json:"top"`
	Bottom         *float64 `json:"bottom"`
	Mode           string   `json:"mode" default:"mean_reversion" validate:"oneof=mean_reversion momentum"`
	PositionType   string   `json:"positionType" default:"both" validate:"oneof=long_only short_only both"`
	InitialCapital float64  `json:"initialCapital" default:"10000" validate:"gt=0"`
}

// ToStrategy resolves the request into a validated Strategy.
func (r StrategyRequest) ToStrategy() (Strategy, error) {
	kind := IndicatorKind(r.IndicatorType)
	if kind == "" {
		kind = IndicatorEMA
	}
	params, err := DefaultIndicatorParams(kind)
	if err != nil {
		return Strategy{}, err
	}

	switch p := params.(type) {
	case CrossoverParams:
		if r.EmaShort > 0 {
			p.Fast = r.EmaShort
		}
		if r.EmaLong > 0 {
			p.Slow = r.EmaLong
		}
		if r.Fast > 0 {
			p.Fast = r.Fast
		}
		if r.Slow > 0 {
			p.Slow = r.Slow
		}
		params = p
	case OscillatorParams:
		if r.Length > 0 {
			p.Length = r.Length
		}
		if r.Top != nil {
			p.Top = *r.Top
		}
		if r.Bottom != nil {
			p.Bottom = *r.Bottom
		}
		if r.Mode != "" {
			p.Mode = OscillatorMode(r.Mode)
		}
		params = p
	}

	s := Strategy{
		Indicator:      params,
		Position:       PositionMode(r.PositionType),
		InitialCapital: r.InitialCapital,
	}
	if s.Position == "" {
		s.Position = Both
	}
	if err := s.Validate(); err != nil {
		return Strategy{}, fmt.Errorf("invalid strategy: %w", err)
	}
	return s, nil
}

// Defaults of the engine knobs. Knob fields are pointers so an explicit
// zero stays distinguishable from an absent field.
const (
	DefaultBucketSize        = 20.0
	DefaultSeed        int64 = 12345
	DefaultSimulations       = 1000
)

// BootstrapRequest asks for regime-preserving resamples of a series.
type BootstrapRequest struct {
	CandleSourceRequest
	BucketSize     *float64 `json:"bucketSize" default:"20" validate:"required,gt=0,lte=100"`
	NumShuffles    *int     `json:"numShuffles" default:"10" validate:"required,min=1,max=100"`
	Seed           *int64   `json:"seed" default:"12345"`
	IncludeCandles bool     `json:"includeCandles"`
	IncludeRegimes bool     `json:"includeRegimes"`
}

func (r BootstrapRequest) GetBucketSize() float64 { return ValueOr(r.BucketSize, DefaultBucketSize) }
func (r BootstrapRequest) GetNumShuffles() int    { return ValueOr(r.NumShuffles, 10) }
func (r BootstrapRequest) GetSeed() int64         { return ValueOr(r.Seed, DefaultSeed) }

// SimulateRequest replays a strategy on one series.
type SimulateRequest struct {
	CandleSourceRequest
	Strategy       StrategyRequest `json:"strategy"`
	IncludeSignals bool            `json:"includeSignals"`
}

// MonteCarloRequest permutes a trade-return set. When Returns is empty the
// trades come from replaying Strategy on the candle source.
type MonteCarloRequest struct {
	CandleSourceRequest
	Returns        []float64       `json:"returns" validate:"max=100000"`
	Strategy       StrategyRequest `json:"strategy"`
	InitialCapital float64         `json:"initialCapital" default:"10000" validate:"gt=0"`
	NumSimulations *int            `json:"numSimulations" default:"1000" validate:"required,min=1,max=10000"`
	Seed           *int64          `json:"seed" default:"12345"`
	Bins           *int            `json:"bins" default:"25" validate:"required,min=1,max=200"`
	IncludeRuns    bool            `json:"includeRuns"`
}

func (r MonteCarloRequest) GetNumSimulations() int {
	return ValueOr(r.NumSimulations, DefaultSimulations)
}
func (r MonteCarloRequest) GetSeed() int64 { return ValueOr(r.Seed, DefaultSeed) }

// GetBins returns 0 when unset, leaving the choice to the engine config.
func (r MonteCarloRequest) GetBins() int { return ValueOr(r.Bins, 0) }

// RobustnessRequest runs the strategy on the original series and on
// bootstrap resamples, optionally adding a trade-order Monte Carlo.
type RobustnessRequest struct {
	CandleSourceRequest
	Strategy       StrategyRequest `json:"strategy"`
	BucketSize     *float64        `json:"bucketSize" default:"20" validate:"required,gt=0,lte=100"`
	NumShuffles    *int            `json:"numShuffles" default:"20" validate:"required,min=1,max=100"`
	Seed           *int64          `json:"seed" default:"12345"`
	MonteCarlo     bool            `json:"monteCarlo"`
	NumSimulations *int            `json:"numSimulations" default:"1000" validate:"required,min=1,max=10000"`
	Bins           *int            `json:"bins" default:"25" validate:"required,min=1,max=200"`
}

func (r RobustnessRequest) GetBucketSize() float64 { return ValueOr(r.BucketSize, DefaultBucketSize) }
func (r RobustnessRequest) GetNumShuffles() int    { return ValueOr(r.NumShuffles, 20) }
func (r RobustnessRequest) GetSeed() int64         { return ValueOr(r.Seed, DefaultSeed) }
func (r RobustnessRequest) GetNumSimulations() int {
	return ValueOr(r.NumSimulations, DefaultSimulations)
}
func (r RobustnessRequest) GetBins() int { return ValueOr(r.Bins, 0) }

// HasInlineCandles reports whether the candles travel with the request.
func (r CandleSourceRequest) HasInlineCandles() bool {
	return len(r.Candles) > 0
}

// HasSource reports whether any candle source was given.
func (r CandleSourceRequest) HasSource() bool {
	return len(r.Candles) > 0 || r.Symbol != ""
}
