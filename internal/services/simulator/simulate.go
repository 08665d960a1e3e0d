package simulator

import (
	"math"

	"RegimeLab/internal/domain/models"
)

// DefaultInitialCapital is used when a strategy carries no positive capital.
const DefaultInitialCapital = 10000.0

type position int

const (
	flat position = iota
	long
	short
)

type options struct {
	riskFree float64
	signals  []int
}

// Option customises a simulation.
type Option func(*options)

// WithRiskFreeRate sets the annual risk-free rate used by the Sharpe ratio.
func WithRiskFreeRate(r float64) Option {
	return func(o *options) { o.riskFree = r }
}

// WithSignals replays precomputed signals instead of deriving them from the
// strategy's indicator.
func WithSignals(signals []int) Option {
	return func(o *options) { o.signals = signals }
}

// Simulate replays strategy over candles. Positions open and close at the
// signal bar's close; an open position is force-closed at the last bar.
func Simulate(candles []models.Candle, strategy models.Strategy, opts ...Option) (models.SimulationResult, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if err := strategy.Validate(); err != nil {
		return models.SimulationResult{}, err
	}

	signals := o.signals
	if len(signals) != len(candles) {
		var err error
		if signals, err = GenerateSignals(candles, strategy.Indicator); err != nil {
			return models.SimulationResult{}, err
		}
	}

	capital := strategy.InitialCapital
	if capital <= 0 || math.IsNaN(capital) || math.IsInf(capital, 0) {
		capital = DefaultInitialCapital
	}

	var (
		state      = flat
		entryIdx   int
		entryPrice float64
		lastIdx    = -1
		realized   = capital
		trades     []models.Trade
		equity     = make([]float64, len(candles))
	)

	closeAt := func(i int, openAtEnd bool) {
		exit := candles[i].Close
		pnl := tradePnL(state, entryPrice, exit)
		trades = append(trades, models.Trade{
			Type:       sideOf(state),
			EntryIndex: entryIdx,
			EntryDate:  candles[entryIdx].Date,
			EntryPrice: entryPrice,
			ExitIndex:  i,
			ExitDate:   candles[i].Date,
			ExitPrice:  exit,
			PnL:        pnl,
			OpenAtEnd:  openAtEnd,
		})
		realized = math.Max(0, realized*(1+pnl))
		state = flat
	}

	for i, c := range candles {
		if !models.ValidPrice(c.Close) {
			if i > 0 {
				equity[i] = equity[i-1]
			} else {
				equity[i] = realized
			}
			continue
		}
		lastIdx = i

		switch sig := signals[i]; {
		case state == long && sig == Sell, state == short && sig == Buy:
			closeAt(i, false)
		case state == flat && sig == Buy && strategy.Position.AllowsLong():
			state, entryIdx, entryPrice = long, i, c.Close
		case state == flat && sig == Sell && strategy.Position.AllowsShort():
			state, entryIdx, entryPrice = short, i, c.Close
		}

		equity[i] = math.Max(0, realized*(1+tradePnL(state, entryPrice, c.Close)))
	}

	if state != flat && lastIdx >= 0 {
		closeAt(lastIdx, true)
		for i := lastIdx; i < len(equity); i++ {
			equity[i] = realized
		}
	}

	if trades == nil {
		trades = []models.Trade{}
	}
	return models.SimulationResult{
		Signals: signals,
		Trades:  trades,
		Equity:  equity,
		Metrics: ComputeTradeMetrics(trades, equity, capital, o.riskFree),
	}, nil
}

func tradePnL(state position, entry, exit float64) float64 {
	switch state {
	case long:
		return (exit - entry) / entry
	case short:
		return (entry - exit) / entry
	}
	return 0
}

func sideOf(state position) models.TradeSide {
	if state == short {
		return models.SideShort
	}
	return models.SideLong
}
