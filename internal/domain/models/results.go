package models

import "github.com/shopspring/decimal"

// SeriesMetrics summarises one price path.
type SeriesMetrics struct {
	TotalReturn float64 `json:"totalReturn"`
	MaxDrawdown float64 `json:"maxDrawdown"`
	Volatility  float64 `json:"volatility"`
}

// SyntheticSeries is one regime-preserving resample of the input series.
type SyntheticSeries struct {
	Seed         int64         `json:"seed"`
	Candles      []Candle      `json:"candles,omitempty"`
	Metrics      SeriesMetrics `json:"metrics"`
	BucketCounts map[int]int   `json:"bucketCounts"`
}

// RegimeSeries is the per-index regime metadata of the input series.
type RegimeSeries struct {
	Returns         []OptFloat `json:"returns"`
	Volatility      []OptFloat `json:"volatility"`
	PercentileRanks []OptFloat `json:"percentileRanks"`
	Buckets         []OptInt   `json:"buckets"`
}

// BlockSummary describes one block without its candles.
type BlockSummary struct {
	Bucket    int    `json:"bucket"`
	Length    int    `json:"length"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

// BootstrapResult is the output of a resampling run.
type BootstrapResult struct {
	BucketSize   float64           `json:"bucketSize"`
	NumBuckets   int               `json:"numBuckets"`
	BaseSeed     int64             `json:"baseSeed"`
	Original     SeriesMetrics     `json:"original"`
	Regimes      RegimeSeries      `json:"regimes"`
	Blocks       []BlockSummary    `json:"blocks"`
	BucketCounts map[int]int       `json:"bucketCounts"`
	Synthetic    []SyntheticSeries `json:"synthetic"`
}

// BucketCheck reports whether a resample kept the per-bucket block counts.
type BucketCheck struct {
	Passed         bool        `json:"passed"`
	OriginalCounts map[int]int `json:"originalCounts"`
	ShuffledCounts map[int]int `json:"shuffledCounts"`
}

// TradeSide is the direction of a position.
type TradeSide string

const (
	SideLong  TradeSide = "long"
	SideShort TradeSide = "short"
)

// Trade is a closed position.
type Trade struct {
	Type       TradeSide `json:"type"`
	EntryIndex int       `json:"entryIndex"`
	EntryDate  string    `json:"entryDate"`
	EntryPrice float64   `json:"entryPrice"`
	ExitIndex  int       `json:"exitIndex"`
	ExitDate   string    `json:"exitDate"`
	ExitPrice  float64   `json:"exitPrice"`
	PnL        float64   `json:"pnl"`
	OpenAtEnd  bool      `json:"openAtEnd,omitempty"`
}

// TradeMetrics aggregates a trade list. WinRate is a fraction in [0,1].
type TradeMetrics struct {
	TotalTrades   int     `json:"totalTrades"`
	WinningTrades int     `json:"winningTrades"`
	LosingTrades  int     `json:"losingTrades"`
	WinRate       float64 `json:"winRate"`
	ProfitFactor  Ratio   `json:"profitFactor"`
	TotalReturn   float64 `json:"totalReturn"`
	AvgTrade      float64 `json:"avgTrade"`
	BestTrade     float64 `json:"bestTrade"`
	WorstTrade    float64 `json:"worstTrade"`
	MaxDrawdown   float64 `json:"maxDrawdown"`
	SharpeRatio   float64 `json:"sharpeRatio"`
	FinalEquity   float64 `json:"finalEquity"`
}

// SimulationResult is one strategy replay over a candle series.
type SimulationResult struct {
	Signals []int         `json:"signals,omitempty"`
	Trades  []Trade       `json:"trades"`
	Equity  []float64     `json:"equity"`
	Metrics TradeMetrics  `json:"metrics"`
	Money   *MoneySummary `json:"money,omitempty"`
}

// MoneySummary carries currency amounts rounded to cents.
type MoneySummary struct {
	InitialCapital decimal.Decimal   `json:"initialCapital"`
	FinalCapital   decimal.Decimal   `json:"finalCapital"`
	NetProfit      decimal.Decimal   `json:"netProfit"`
	TradePnL       []decimal.Decimal `json:"tradePnl,omitempty"`
}

// SimulationRun is one Monte Carlo permutation of a trade-return set.
type SimulationRun struct {
	Seed        int64     `json:"seed"`
	Equity      []float64 `json:"equity,omitempty"`
	FinalEquity float64   `json:"finalEquity"`
	TotalReturn float64   `json:"totalReturn"`
	MaxDrawdown float64   `json:"maxDrawdown"`
}

// PercentileStats is a distribution summary.
type PercentileStats struct {
	Min    float64 `json:"min"`
	P5     float64 `json:"p5"`
	P25    float64 `json:"p25"`
	Median float64 `json:"median"`
	P75    float64 `json:"p75"`
	P95    float64 `json:"p95"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
}

// MonteCarloStats aggregates all runs of one Monte Carlo batch.
type MonteCarloStats struct {
	NumSimulations      int             `json:"numSimulations"`
	FinalEquity         PercentileStats `json:"finalEquity"`
	TotalReturn         PercentileStats `json:"totalReturn"`
	MaxDrawdown         PercentileStats `json:"maxDrawdown"`
	ProbabilityOfProfit float64         `json:"probabilityOfProfit"`
	ProbabilityOfLoss   float64         `json:"probabilityOfLoss"`
}

// HistogramBin is one equal-width bin.
type HistogramBin struct {
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
	Count     int     `json:"count"`
	Frequency float64 `json:"frequency"`
}

// MonteCarloResult is the response of a Monte Carlo batch.
type MonteCarloResult struct {
	InitialCapital  float64         `json:"initialCapital"`
	BaseSeed        int64           `json:"baseSeed"`
	TradeReturns    []float64       `json:"tradeReturns"`
	Stats           MonteCarloStats `json:"stats"`
	FinalEquityHist []HistogramBin  `json:"finalEquityHistogram"`
	DrawdownHist    []HistogramBin  `json:"maxDrawdownHistogram"`
	Runs            []SimulationRun `json:"runs,omitempty"`
}

// RobustnessRun is the strategy outcome on one synthetic series.
type RobustnessRun struct {
	Seed    int64         `json:"seed"`
	Series  SeriesMetrics `json:"series"`
	Metrics TradeMetrics  `json:"metrics"`
}

// Distribution summarises strategy metrics across synthetic runs.
type Distribution struct {
	TotalReturn PercentileStats `json:"totalReturn"`
	MaxDrawdown PercentileStats `json:"maxDrawdown"`
	WinRate     PercentileStats `json:"winRate"`
	SharpeRatio PercentileStats `json:"sharpeRatio"`
}

// OriginalRank places the real-data run within the synthetic distribution
// (percent of synthetic runs the original beats, 0-100).
type OriginalRank struct {
	TotalReturn float64 `json:"totalReturn"`
	MaxDrawdown float64 `json:"maxDrawdown"`
	SharpeRatio float64 `json:"sharpeRatio"`
}

// RobustnessReport is the full robustness analysis of one strategy.
type RobustnessReport struct {
	Symbol          string            `json:"symbol,omitempty"`
	Indicator       IndicatorKind     `json:"indicator"`
	Position        PositionMode      `json:"position"`
	BaseSeed        int64             `json:"baseSeed"`
	BucketSize      float64           `json:"bucketSize"`
	NumBuckets      int               `json:"numBuckets"`
	BucketCounts    map[int]int       `json:"bucketCounts"`
	OriginalSeries  SeriesMetrics     `json:"originalSeries"`
	Original        SimulationResult  `json:"original"`
	Runs            []RobustnessRun   `json:"runs"`
	Distribution    Distribution      `json:"distribution"`
	Rank            OriginalRank      `json:"rank"`
	ReturnHistogram []HistogramBin    `json:"returnHistogram"`
	MonteCarlo      *MonteCarloResult `json:"monteCarlo,omitempty"`
	DurationMillis  int64             `json:"durationMs"`
}
