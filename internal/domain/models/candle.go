package models

import "time"

// Candle represents one OHLCV bar. Sequences are ordered ascending by
// OpenTime with no duplicates; gaps degrade but do not invalidate analysis.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Symbol   string    `json:"symbol"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Valid reports whether the candle has positive prices and a sane range.
func (c Candle) Valid() bool {
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return false
	}
	return c.High >= c.Low
}

// ValidateCandles rejects the whole batch when any candle is malformed.
func ValidateCandles(cs []Candle) error {
	for _, c := range cs {
		if !c.Valid() {
			return ErrInvalidCandle
		}
	}
	return nil
}
