package models

import "time"

// SnapshotRow is the flattened, column-oriented form of a MarketRecord used
// by the mirror sinks.
type SnapshotRow struct {
	PersistedAt              time.Time `ch:"persisted_at"`
	Rank                     int32     `ch:"market_cap_rank"`
	ID                       string    `ch:"id"`
	Symbol                   string    `ch:"symbol"`
	Name                     string    `ch:"name"`
	CurrentPrice             float64   `ch:"current_price"`
	MarketCap                float64   `ch:"market_cap"`
	TotalVolume              float64   `ch:"total_volume"`
	PriceChangePercentage24h float64   `ch:"price_change_percentage_24h"`
}

// NewSnapshotRow flattens r, writing zero for absent numbers.
func NewSnapshotRow(r MarketRecord, persistedAt time.Time) SnapshotRow {
	n := r.Normalized()
	row := SnapshotRow{
		PersistedAt:              persistedAt,
		ID:                       n.ID,
		Symbol:                   n.Symbol,
		Name:                     n.Name,
		MarketCap:                *n.MarketCap,
		PriceChangePercentage24h: *n.PriceChangePercentage24h,
	}
	if n.CurrentPrice != nil {
		row.CurrentPrice = *n.CurrentPrice
	}
	if n.TotalVolume != nil {
		row.TotalVolume = *n.TotalVolume
	}
	if n.MarketCapRank != nil {
		row.Rank = int32(*n.MarketCapRank)
	}
	return row
}
