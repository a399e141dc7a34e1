package models

import "time"

type SummaryStatus string

const (
	StatusOK     SummaryStatus = "ok"
	StatusNoData SummaryStatus = "no_data"
)

type PriceStatistics struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean_price"`
	Median float64 `json:"median_price"`
	StdDev float64 `json:"price_std_dev"`
	Min    float64 `json:"min_price"`
	Max    float64 `json:"max_price"`
}

type MarketCapInsights struct {
	Total  float64 `json:"total_market_cap"`
	Mean   float64 `json:"mean_market_cap"`
	Median float64 `json:"median_market_cap"`
}

// StatisticsSummary is the aggregate view over one MarketBatch.
// A NoData summary carries nil statistics and only a timestamp.
type StatisticsSummary struct {
	Status            SummaryStatus      `json:"status"`
	PriceStatistics   *PriceStatistics   `json:"price_statistics,omitempty"`
	MarketCapInsights *MarketCapInsights `json:"market_cap_insights,omitempty"`
	Error             string             `json:"error,omitempty"`
	Timestamp         time.Time          `json:"timestamp"`
}

func (s StatisticsSummary) NoData() bool {
	return s.Status == StatusNoData
}
