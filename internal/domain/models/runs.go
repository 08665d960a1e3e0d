package models

import "time"

// RunSummary is the persisted one-row digest of a completed engine run.
type RunSummary struct {
	ID                string    `json:"id"`
	Kind              JobType   `json:"kind"`
	Symbol            string    `json:"symbol"`
	Indicator         string    `json:"indicator"`
	Position          string    `json:"position"`
	BaseSeed          int64     `json:"baseSeed"`
	BucketSize        float64   `json:"bucketSize"`
	Runs              int       `json:"runs"`
	OriginalReturn    float64   `json:"originalReturn"`
	MedianReturn      float64   `json:"medianReturn"`
	P5Return          float64   `json:"p5Return"`
	P95Return         float64   `json:"p95Return"`
	MedianDrawdown    float64   `json:"medianDrawdown"`
	ProbabilityProfit float64   `json:"probabilityOfProfit"`
	DurationMillis    int64     `json:"durationMs"`
	CreatedAt         time.Time `json:"createdAt"`
}
