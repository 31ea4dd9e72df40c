package models

import "time"

// Algorithm names as stored and published.
const (
	AlgorithmFlow              = "flow"
	AlgorithmVolatilityExtreme = "volatility_extreme"
	AlgorithmCombined          = "combined"
)

// Signal directions.
const (
	DirectionBuy  = "buy"
	DirectionSell = "sell"
	DirectionHold = "hold"
)

// Signal statuses.
const (
	SignalStatusActive  = "active"
	SignalStatusExpired = "expired"
	SignalStatusInvalid = "invalid"
)

// SignalTTL is the fixed horizon between signal creation and expiry.
const SignalTTL = 24 * time.Hour

// Signal is the unit of analyzer output. Strength and Confidence are
// clamped to [0,1]; Confidence never exceeds Strength*0.95.
type Signal struct {
	ID         string             `db:"id" json:"id"`
	Symbol     string             `db:"symbol" json:"symbol"`
	Algorithm  string             `db:"algorithm" json:"algorithm"`
	Direction  string             `db:"direction" json:"direction"`
	Strength   float64            `db:"strength" json:"strength"`
	Confidence float64            `db:"confidence" json:"confidence"`
	Price      float64            `db:"price" json:"price"`
	Metadata   map[string]float64 `db:"-" json:"metadata,omitempty"`
	Status     string             `db:"status" json:"status"`
	CreatedAt  time.Time          `db:"created_at" json:"created_at"`
	ExpiresAt  time.Time          `db:"expires_at" json:"expires_at"`
}

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ConfidenceFor derives confidence from strength with the fixed 0.95 cap.
func ConfidenceFor(strength float64) float64 {
	c := strength * 0.9
	if c > 0.95 {
		c = 0.95
	}
	return Clamp01(c)
}
