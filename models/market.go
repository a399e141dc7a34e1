package models

import "time"

// Placeholder used for display fields the provider left out.
const MissingText = "N/A"

// MarketRecord is one asset as returned by the market data provider.
// Optional fields are pointers so that "absent" stays distinguishable from zero.
type MarketRecord struct {
	ID                       string   `json:"id"`
	Symbol                   string   `json:"symbol"`
	Name                     string   `json:"name"`
	CurrentPrice             *float64 `json:"current_price"`
	MarketCap                *float64 `json:"market_cap"`
	TotalVolume              *float64 `json:"total_volume"`
	PriceChangePercentage24h *float64 `json:"price_change_percentage_24h"`
	PriceChangePercentage7d  *float64 `json:"price_change_percentage_7d"`
	PriceChangePercentage30d *float64 `json:"price_change_percentage_30d"`
	MarketCapRank            *int     `json:"market_cap_rank"`
}

// Normalized returns a copy with missing values substituted: percentage
// changes and market cap become 0 and display fields become MissingText.
// CurrentPrice is left untouched so price aggregates only see real prices.
func (r MarketRecord) Normalized() MarketRecord {
	out := r
	if out.Symbol == "" {
		out.Symbol = MissingText
	}
	if out.Name == "" {
		out.Name = MissingText
	}
	if out.MarketCap == nil {
		out.MarketCap = Float(0)
	}
	if out.PriceChangePercentage24h == nil {
		out.PriceChangePercentage24h = Float(0)
	}
	if out.PriceChangePercentage7d == nil {
		out.PriceChangePercentage7d = Float(0)
	}
	if out.PriceChangePercentage30d == nil {
		out.PriceChangePercentage30d = Float(0)
	}
	return out
}

// MarketBatch holds the records of one fetch, in provider rank order.
type MarketBatch []MarketRecord

// Clone returns a copy a sink can keep after the cycle ends.
func (b MarketBatch) Clone() MarketBatch {
	if b == nil {
		return nil
	}
	out := make(MarketBatch, len(b))
	copy(out, b)
	return out
}

// RefreshCycleResult is the unit handed to every sink.
type RefreshCycleResult struct {
	Batch     MarketBatch       `json:"data"`
	Summary   StatisticsSummary `json:"analysis"`
	FetchedAt time.Time         `json:"timestamp"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
