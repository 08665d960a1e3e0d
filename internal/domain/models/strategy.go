package models

import "fmt"

// IndicatorKind identifies the signal family of a strategy.
type IndicatorKind string

const (
	IndicatorEMA    IndicatorKind = "ema"
	IndicatorMA     IndicatorKind = "ma"
	IndicatorDEMA   IndicatorKind = "dema"
	IndicatorRSI    IndicatorKind = "rsi"
	IndicatorCCI    IndicatorKind = "cci"
	IndicatorZScore IndicatorKind = "zscore"
)

// PositionMode restricts which sides a strategy may open.
type PositionMode string

const (
	LongOnly  PositionMode = "long_only"
	ShortOnly PositionMode = "short_only"
	Both      PositionMode = "both"
)

// AllowsLong reports whether the mode may open long positions.
func (m PositionMode) AllowsLong() bool { return m == LongOnly || m == Both || m == "" }

// AllowsShort reports whether the mode may open short positions.
func (m PositionMode) AllowsShort() bool { return m == ShortOnly || m == Both || m == "" }

// OscillatorMode selects how threshold crossings map to signals.
type OscillatorMode string

const (
	MeanReversion OscillatorMode = "mean_reversion"
	Momentum      OscillatorMode = "momentum"
)

// IndicatorParams is the tagged union of per-indicator parameters.
// Implementations: CrossoverParams, OscillatorParams.
type IndicatorParams interface {
	Kind() IndicatorKind
	Validate() error
}

// CrossoverParams drives ema, ma and dema fast/slow crossovers.
type CrossoverParams struct {
	Type IndicatorKind `json:"type"`
	Fast int           `json:"fast"`
	Slow int           `json:"slow"`
}

func (p CrossoverParams) Kind() IndicatorKind { return p.Type }

func (p CrossoverParams) Validate() error {
	switch p.Type {
	case IndicatorEMA, IndicatorMA, IndicatorDEMA:
	default:
		return fmt.Errorf("crossover params: unsupported indicator %q", p.Type)
	}
	if p.Fast < 1 || p.Slow < 1 {
		return fmt.Errorf("crossover params: periods must be >= 1, got fast=%d slow=%d", p.Fast, p.Slow)
	}
	if p.Fast >= p.Slow {
		return fmt.Errorf("crossover params: fast (%d) must be < slow (%d)", p.Fast, p.Slow)
	}
	return nil
}

// OscillatorParams drives rsi, cci and zscore threshold strategies.
type OscillatorParams struct {
	Type   IndicatorKind  `json:"type"`
	Length int            `json:"length"`
	Top    float64        `json:"top"`
	Bottom float64        `json:"bottom"`
	Mode   OscillatorMode `json:"mode,omitempty"`
}

func (p OscillatorParams) Kind() IndicatorKind { return p.Type }

func (p OscillatorParams) Validate() error {
	switch p.Type {
	case IndicatorRSI, IndicatorCCI, IndicatorZScore:
	default:
		return fmt.Errorf("oscillator params: unsupported indicator %q", p.Type)
	}
	if p.Length < 2 {
		return fmt.Errorf("oscillator params: length must be >= 2, got %d", p.Length)
	}
	if p.Bottom >= p.Top {
		return fmt.Errorf("oscillator params: bottom (%g) must be < top (%g)", p.Bottom, p.Top)
	}
	switch p.Mode {
	case "", MeanReversion, Momentum:
	default:
		return fmt.Errorf("oscillator params: unsupported mode %q", p.Mode)
	}
	return nil
}

// Strategy is a fully resolved strategy descriptor.
type Strategy struct {
	Indicator      IndicatorParams
	Position       PositionMode
	InitialCapital float64
}

// Validate checks the strategy and its indicator variant.
func (s Strategy) Validate() error {
	if s.Indicator == nil {
		return fmt.Errorf("strategy: indicator is required")
	}
	switch s.Position {
	case "", LongOnly, ShortOnly, Both:
	default:
		return fmt.Errorf("strategy: unsupported position type %q", s.Position)
	}
	return s.Indicator.Validate()
}

// DefaultIndicatorParams returns the stock parameters for kind.
func DefaultIndicatorParams(kind IndicatorKind) (IndicatorParams, error) {
	switch kind {
	case IndicatorEMA, IndicatorMA, IndicatorDEMA:
		return CrossoverParams{Type: kind, Fast: 12, Slow: 26}, nil
	case IndicatorRSI:
		return OscillatorParams{Type: kind, Length: 14, Top: 70, Bottom: 30, Mode: MeanReversion}, nil
	case IndicatorCCI:
		return OscillatorParams{Type: kind, Length: 20, Top: 100, Bottom: -100, Mode: MeanReversion}, nil
	case IndicatorZScore:
		return OscillatorParams{Type: kind, Length: 20, Top: 2, Bottom: -2, Mode: MeanReversion}, nil
	default:
		return nil, fmt.Errorf("unsupported indicator type %q", kind)
	}
}
