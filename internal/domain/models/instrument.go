package models

import "time"

// Instrument identifies a tradeable symbol. Reference data only; the engine
// reads instruments but never mutates them.
type Instrument struct {
	Symbol     string `db:"symbol" json:"symbol"`
	BaseAsset  string `db:"base_asset" json:"base_asset"`
	QuoteAsset string `db:"quote_asset" json:"quote_asset"`
	Active     bool   `db:"active" json:"active"`
}

// MarketSnapshot is a point-in-time 24h observation of an instrument,
// supplied per scan cycle by the market stream. PercentChange24h is a
// fraction (-0.05 means -5%).
type MarketSnapshot struct {
	Symbol           string    `json:"symbol"`
	Price            float64   `json:"price"`
	Volume24h        float64   `json:"volume_24h"`
	High24h          float64   `json:"high_24h"`
	Low24h           float64   `json:"low_24h"`
	Open24h          float64   `json:"open_24h"`
	PercentChange24h float64   `json:"percent_change_24h"`
	ObservedAt       time.Time `json:"observed_at"`
}
