package models

import "time"

// BacktestRequest is the API payload for one backtest run. Optional inline
// candles bypass the candle store, which is how offline datasets are
// replayed.
type BacktestRequest struct {
	Symbol         string    `json:"symbol" validate:"required"`
	Algorithm      string    `json:"algorithm" default:"flow" validate:"oneof=flow volatility_extreme combined"`
	Interval       string    `json:"interval" default:"1h"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	InitialCapital float64   `json:"initial_capital" default:"10000" validate:"gt=0"`
	PositionSize   float64   `json:"position_size" default:"0.1" validate:"gt=0,lte=1"`
	StopLoss       float64   `json:"stop_loss" default:"0.05" validate:"gt=0,lt=1"`
	TakeProfit     float64   `json:"take_profit" default:"0.1" validate:"gt=0"`
	UseATRStop     bool      `json:"use_atr_stop"`

	Flow       *FlowParams       `json:"flow_params,omitempty"`
	Volatility *VolatilityParams `json:"volatility_params,omitempty"`

	Candles []Candle `json:"candles,omitempty"`
}

// ToParams assembles run parameters, falling back to analyzer defaults for
// unspecified parameter bundles.
func (r BacktestRequest) ToParams() BacktestParams {
	p := BacktestParams{
		Symbol:         r.Symbol,
		Algorithm:      r.Algorithm,
		Interval:       r.Interval,
		StartDate:      r.StartDate,
		EndDate:        r.EndDate,
		InitialCapital: r.InitialCapital,
		PositionSize:   r.PositionSize,
		StopLoss:       r.StopLoss,
		TakeProfit:     r.TakeProfit,
		UseATRStop:     r.UseATRStop,
		Flow:           DefaultFlowParams(),
		Volatility:     DefaultVolatilityParams(),
	}
	if r.Flow != nil {
		p.Flow = *r.Flow
	}
	if r.Volatility != nil {
		p.Volatility = *r.Volatility
	}
	return p
}

// SweepRequest is the API payload for an asynchronous parameter sweep.
type SweepRequest struct {
	Base       BacktestRequest `json:"base" validate:"required"`
	Algorithms []string        `json:"algorithms,omitempty" validate:"dive,oneof=flow volatility_extreme combined"`

	PositionSize        *Range `json:"position_size,omitempty"`
	StopLoss            *Range `json:"stop_loss,omitempty"`
	TakeProfit          *Range `json:"take_profit,omitempty"`
	MinVolumeRatio      *Range `json:"min_volume_ratio,omitempty"`
	ThresholdLow        *Range `json:"threshold_low,omitempty"`
	ThresholdHigh       *Range `json:"threshold_high,omitempty"`
	DeviationMultiplier *Range `json:"deviation_multiplier,omitempty"`
}

// ToParams assembles sweep parameters.
func (r SweepRequest) ToParams() SweepParams {
	return SweepParams{
		Base:                r.Base.ToParams(),
		Algorithms:          r.Algorithms,
		PositionSize:        r.PositionSize,
		StopLoss:            r.StopLoss,
		TakeProfit:          r.TakeProfit,
		MinVolumeRatio:      r.MinVolumeRatio,
		ThresholdLow:        r.ThresholdLow,
		ThresholdHigh:       r.ThresholdHigh,
		DeviationMultiplier: r.DeviationMultiplier,
	}
}

// SignalsRequest filters the recent-signal listing.
type SignalsRequest struct {
	Symbol string `query:"symbol"`
	Limit  int    `query:"limit" default:"50" validate:"gte=0,lte=500"`
}

// ResultsRequest filters the backtest result listing.
type ResultsRequest struct {
	Symbol    string `query:"symbol"`
	Algorithm string `query:"algorithm" validate:"omitempty,oneof=flow volatility_extreme combined"`
	Limit     int    `query:"limit" default:"50" validate:"gte=0,lte=500"`
	Offset    int    `query:"offset" validate:"gte=0"`
}

// SweepAccepted is returned when a sweep job is queued.
type SweepAccepted struct {
	JobID string `json:"job_id"`
}
