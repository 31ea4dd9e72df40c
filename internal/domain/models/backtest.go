package models

import (
	"fmt"
	"time"
)

// Trade exit reasons. The simulator returns a trade still open at the
// end of a run with an empty reason rather than force-closing it, so
// ExitEndOfPeriod is part of the stored-result vocabulary only and is
// never produced here.
const (
	ExitTakeProfit  = "takeProfit"
	ExitStopLoss    = "stopLoss"
	ExitSignal      = "signal"
	ExitEndOfPeriod = "endOfPeriod"
)

// Trade sides. The simulator currently only opens long positions.
const (
	SideLong = "long"
)

// Trade is one simulated position. Exit fields stay zero while the
// position is open; a trade still open at the end of a run is returned
// with them unset and excluded from completed-trade statistics.
type Trade struct {
	EntryDate      time.Time `json:"entry_date"`
	EntryPrice     float64   `json:"entry_price"`
	ExitDate       time.Time `json:"exit_date,omitempty"`
	ExitPrice      float64   `json:"exit_price,omitempty"`
	Quantity       float64   `json:"quantity"`
	Side           string    `json:"side"`
	PnL            float64   `json:"pnl"`
	PnLPercent     float64   `json:"pnl_percent"`
	ExitReason     string    `json:"exit_reason,omitempty"`
	SignalStrength float64   `json:"signal_strength"`
}

// Completed reports whether the trade has been closed.
func (t Trade) Completed() bool { return !t.ExitDate.IsZero() }

// EquityPoint is one mark-to-market observation of account equity.
type EquityPoint struct {
	Date  time.Time `json:"date"`
	Value float64   `json:"value"`
}

// MonthlyReturn is the realized return for one calendar month.
type MonthlyReturn struct {
	Month  string  `json:"month"` // "2026-01"
	Return float64 `json:"return"`
}

// BacktestParams describes one simulator run.
type BacktestParams struct {
	Symbol           string           `json:"symbol"`
	Algorithm        string           `json:"algorithm"`
	Interval         string           `json:"interval"`
	StartDate        time.Time        `json:"start_date"`
	EndDate          time.Time        `json:"end_date"`
	InitialCapital   float64          `json:"initial_capital"`
	PositionSize     float64          `json:"position_size"`
	StopLoss         float64          `json:"stop_loss"`
	TakeProfit       float64          `json:"take_profit"`
	UseATRStop       bool             `json:"use_atr_stop,omitempty"`
	Flow             FlowParams       `json:"flow_params"`
	Volatility       VolatilityParams `json:"volatility_params"`
}

// Validate rejects unusable run parameters.
func (p BacktestParams) Validate() error {
	if p.Symbol == "" {
		return fmt.Errorf("backtest params: symbol is required")
	}
	switch p.Algorithm {
	case AlgorithmFlow, AlgorithmVolatilityExtreme, AlgorithmCombined:
	default:
		return fmt.Errorf("backtest params: unknown algorithm %q", p.Algorithm)
	}
	if p.InitialCapital <= 0 {
		return fmt.Errorf("backtest params: initial_capital must be > 0")
	}
	if p.PositionSize <= 0 || p.PositionSize > 1 {
		return fmt.Errorf("backtest params: position_size must be in (0,1]")
	}
	if p.StopLoss <= 0 || p.StopLoss >= 1 {
		return fmt.Errorf("backtest params: stop_loss must be in (0,1)")
	}
	if p.TakeProfit <= 0 {
		return fmt.Errorf("backtest params: take_profit must be > 0")
	}
	if err := p.Flow.Validate(); err != nil {
		return err
	}
	return p.Volatility.Validate()
}

// BacktestResult aggregates a completed run. Field names follow the
// persistence schema used by the dashboard.
type BacktestResult struct {
	ID             string          `json:"id"`
	Params         BacktestParams  `json:"params"`
	Trades         []Trade         `json:"trades"`
	EquityCurve    []EquityPoint   `json:"equity_curve"`
	MonthlyReturns []MonthlyReturn `json:"monthly_returns"`
	InitialCapital float64         `json:"initial_capital"`
	FinalCapital   float64         `json:"final_capital"`
	TotalReturn    float64         `json:"total_return"`
	TotalTrades    int             `json:"total_trades"`
	WinRate        float64         `json:"win_rate"`
	AvgWin         float64         `json:"avg_win"`
	AvgLoss        float64         `json:"avg_loss"`
	ProfitFactor   float64         `json:"profit_factor"`
	LargestWin     float64         `json:"largest_win"`
	LargestLoss    float64         `json:"largest_loss"`
	MaxDrawdown    float64         `json:"max_drawdown"`
	SharpeRatio    float64         `json:"sharpe_ratio"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Range describes a swept numeric parameter. Step <= 0 or Max <= Min
// collapses the range to the single Min value.
type Range struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step"`
}

// Values expands the range into discrete points, always at least one.
func (r Range) Values() []float64 {
	if r.Step <= 0 || r.Max <= r.Min {
		return []float64{r.Min}
	}
	var out []float64
	// small epsilon so Max is included despite float accumulation
	for v := r.Min; v <= r.Max+r.Step*1e-9; v += r.Step {
		out = append(out, v)
	}
	return out
}

// SweepParams describes a cartesian parameter sweep. Unset ranges default
// to the nominal value of the base run parameters.
type SweepParams struct {
	Base         BacktestParams `json:"base"`
	Algorithms   []string       `json:"algorithms,omitempty"`
	PositionSize *Range         `json:"position_size,omitempty"`
	StopLoss     *Range         `json:"stop_loss,omitempty"`
	TakeProfit   *Range         `json:"take_profit,omitempty"`
	// Flow analyzer ranges.
	MinVolumeRatio *Range `json:"min_volume_ratio,omitempty"`
	// Volatility analyzer ranges.
	ThresholdLow        *Range `json:"threshold_low,omitempty"`
	ThresholdHigh       *Range `json:"threshold_high,omitempty"`
	DeviationMultiplier *Range `json:"deviation_multiplier,omitempty"`
}
