package coingecko

import "crypto_tracker/models"

// coin mirrors one element of the /coins/markets response. The provider
// reports requested change windows under *_in_currency keys.
type coin struct {
	ID                                 string   `json:"id"`
	Symbol                             string   `json:"symbol"`
	Name                               string   `json:"name"`
	CurrentPrice                       *float64 `json:"current_price"`
	MarketCap                          *float64 `json:"market_cap"`
	MarketCapRank                      *int     `json:"market_cap_rank"`
	TotalVolume                        *float64 `json:"total_volume"`
	PriceChangePercentage24h           *float64 `json:"price_change_percentage_24h"`
	PriceChangePercentage24hInCurrency *float64 `json:"price_change_percentage_24h_in_currency"`
	PriceChangePercentage7d            *float64 `json:"price_change_percentage_7d"`
	PriceChangePercentage7dInCurrency  *float64 `json:"price_change_percentage_7d_in_currency"`
	PriceChangePercentage30d           *float64 `json:"price_change_percentage_30d"`
	PriceChangePercentage30dInCurrency *float64 `json:"price_change_percentage_30d_in_currency"`
}

func (c coin) toRecord() models.MarketRecord {
	return models.MarketRecord{
		ID:                       c.ID,
		Symbol:                   c.Symbol,
		Name:                     c.Name,
		CurrentPrice:             c.CurrentPrice,
		MarketCap:                c.MarketCap,
		TotalVolume:              c.TotalVolume,
		PriceChangePercentage24h: firstOf(c.PriceChangePercentage24h, c.PriceChangePercentage24hInCurrency),
		PriceChangePercentage7d:  firstOf(c.PriceChangePercentage7dInCurrency, c.PriceChangePercentage7d),
		PriceChangePercentage30d: firstOf(c.PriceChangePercentage30dInCurrency, c.PriceChangePercentage30d),
		MarketCapRank:            c.MarketCapRank,
	}
}

func firstOf(vals ...*float64) *float64 {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
