package models

import "fmt"

// FlowParams configures the flow analyzer. A zero value is not usable;
// start from DefaultFlowParams and override.
type FlowParams struct {
	// VolumeThreshold is the absolute 24h volume (quote units) above which
	// the strength bonus applies.
	VolumeThreshold float64 `json:"volume_threshold" default:"1000000"`
	// PriceChangeThreshold is the maximum 24h change (fraction, negative)
	// an instrument may have; anything above it is ignored.
	PriceChangeThreshold float64 `json:"price_change_threshold" default:"-0.03"`
	// LookbackHours is the window for the historical average volume.
	LookbackHours int `json:"lookback_hours" default:"168"`
	// MinVolumeRatio is the volume surge floor (current / average).
	MinVolumeRatio float64 `json:"min_volume_ratio" default:"1.5"`
	// ConfirmationPeriods is how many consecutive qualifying observations
	// are required before a signal is emitted.
	ConfirmationPeriods int `json:"confirmation_periods" default:"1"`
}

// DefaultFlowParams returns the nominal flow parameter set.
func DefaultFlowParams() FlowParams {
	return FlowParams{
		VolumeThreshold:      1_000_000,
		PriceChangeThreshold: -0.03,
		LookbackHours:        168,
		MinVolumeRatio:       1.5,
		ConfirmationPeriods:  1,
	}
}

// Validate rejects out-of-range flow parameters at the boundary.
func (p FlowParams) Validate() error {
	if p.VolumeThreshold < 0 {
		return fmt.Errorf("flow params: volume_threshold must be >= 0")
	}
	if p.PriceChangeThreshold >= 0 {
		return fmt.Errorf("flow params: price_change_threshold must be negative")
	}
	if p.LookbackHours <= 0 {
		return fmt.Errorf("flow params: lookback_hours must be > 0")
	}
	if p.MinVolumeRatio <= 0 {
		return fmt.Errorf("flow params: min_volume_ratio must be > 0")
	}
	if p.ConfirmationPeriods < 1 {
		return fmt.Errorf("flow params: confirmation_periods must be >= 1")
	}
	return nil
}

// VolatilityParams configures the volatility-extreme analyzer.
type VolatilityParams struct {
	// Period is the trailing window for the highest-high reference.
	Period int `json:"period" default:"22"`
	// BandPeriod is the rolling window for the SMA/stddev band.
	BandPeriod int `json:"band_period" default:"20"`
	// DeviationMultiplier scales the band standard deviation.
	DeviationMultiplier float64 `json:"deviation_multiplier" default:"2"`
	// ThresholdLow marks oversold: extreme value at or above it.
	ThresholdLow float64 `json:"threshold_low" default:"60"`
	// ThresholdHigh marks overbought: extreme value at or below it.
	ThresholdHigh float64 `json:"threshold_high" default:"20"`
	// SmoothingPeriod smooths the extreme series before classification;
	// 1 disables smoothing.
	SmoothingPeriod int `json:"smoothing_period" default:"1"`
}

// DefaultVolatilityParams returns the nominal volatility parameter set.
func DefaultVolatilityParams() VolatilityParams {
	return VolatilityParams{
		Period:              22,
		BandPeriod:          20,
		DeviationMultiplier: 2.0,
		ThresholdLow:        60,
		ThresholdHigh:       20,
		SmoothingPeriod:     1,
	}
}

// Validate rejects out-of-range volatility parameters at the boundary.
func (p VolatilityParams) Validate() error {
	if p.Period < 2 {
		return fmt.Errorf("volatility params: period must be >= 2")
	}
	if p.BandPeriod < 2 {
		return fmt.Errorf("volatility params: band_period must be >= 2")
	}
	if p.DeviationMultiplier <= 0 {
		return fmt.Errorf("volatility params: deviation_multiplier must be > 0")
	}
	if p.ThresholdLow <= p.ThresholdHigh {
		return fmt.Errorf("volatility params: threshold_low must exceed threshold_high")
	}
	if p.ThresholdLow > 100 || p.ThresholdHigh < 0 {
		return fmt.Errorf("volatility params: thresholds must sit within [0,100]")
	}
	if p.SmoothingPeriod < 1 {
		return fmt.Errorf("volatility params: smoothing_period must be >= 1")
	}
	return nil
}
