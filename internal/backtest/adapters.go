package backtest

import (
	"context"
	"fmt"

	"github.com/markcheno/go-talib"

	"TradePulse/internal/analysis"
	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
)

// NewBarAnalyzer maps an algorithm name onto a window-driven analyzer.
func NewBarAnalyzer(params models.BacktestParams, flow *analysis.FlowAnalyzer, vol *analysis.VolatilityExtremeAnalyzer) (BarAnalyzer, error) {
	interval := drepo.NormalizeInterval(params.Interval)
	switch params.Algorithm {
	case models.AlgorithmFlow:
		return &flowBarAnalyzer{flow: flow, params: params.Flow, interval: interval}, nil
	case models.AlgorithmVolatilityExtreme:
		return &volatilityBarAnalyzer{vol: vol, params: params.Volatility}, nil
	case models.AlgorithmCombined:
		return &combinedBarAnalyzer{
			flow: &flowBarAnalyzer{flow: flow, params: params.Flow, interval: interval},
			vol:  &volatilityBarAnalyzer{vol: vol, params: params.Volatility},
		}, nil
	default:
		return nil, fmt.Errorf("unknown algorithm %q", params.Algorithm)
	}
}

// flowBarAnalyzer reconstructs a 24h market snapshot from the trailing
// window and scores it with the flow analyzer. The volume baseline is the
// mean per-bar volume of the window before the snapshot day, scaled back
// to a day.
type flowBarAnalyzer struct {
	flow     *analysis.FlowAnalyzer
	params   models.FlowParams
	interval drepo.Interval
}

func (a *flowBarAnalyzer) Analyze(_ context.Context, symbol string, window []models.Candle) (*models.Signal, error) {
	// Confirmation requires the condition to hold on this bar and the
	// N-1 bars before it.
	n := a.params.ConfirmationPeriods
	if n < 1 {
		n = 1
	}
	var sig *models.Signal
	for k := 0; k < n; k++ {
		sub := window[:len(window)-k]
		s, err := a.scoreWindow(symbol, sub)
		if err != nil {
			return nil, err
		}
		if s == nil {
			return nil, nil
		}
		if k == 0 {
			sig = s
		}
	}
	return sig, nil
}

func (a *flowBarAnalyzer) scoreWindow(symbol string, window []models.Candle) (*models.Signal, error) {
	barsPerDay := a.interval.BarsPerDay()
	if len(window) <= barsPerDay {
		return nil, models.ErrInsufficientData
	}
	day := window[len(window)-barsPerDay:]
	history := window[:len(window)-barsPerDay]

	snap := snapshotFromBars(symbol, day)
	var histSum float64
	for _, c := range history {
		histSum += c.Volume
	}
	avgDailyVolume := histSum / float64(len(history)) * float64(barsPerDay)

	inst := models.Instrument{Symbol: symbol}
	return a.flow.Score(inst, snap, avgDailyVolume, a.params), nil
}

// snapshotFromBars aggregates one day of candles into a snapshot.
func snapshotFromBars(symbol string, day []models.Candle) models.MarketSnapshot {
	snap := models.MarketSnapshot{
		Symbol:  symbol,
		Open24h: day[0].Open,
		Low24h:  day[0].Low,
	}
	for _, c := range day {
		snap.Volume24h += c.Volume
		if c.High > snap.High24h {
			snap.High24h = c.High
		}
		if c.Low < snap.Low24h {
			snap.Low24h = c.Low
		}
	}
	last := day[len(day)-1]
	snap.Price = last.Close
	snap.ObservedAt = last.OpenTime
	if snap.Open24h > 0 {
		snap.PercentChange24h = (snap.Price - snap.Open24h) / snap.Open24h
	}
	return snap
}

type volatilityBarAnalyzer struct {
	vol    *analysis.VolatilityExtremeAnalyzer
	params models.VolatilityParams
}

func (a *volatilityBarAnalyzer) Analyze(_ context.Context, symbol string, window []models.Candle) (*models.Signal, error) {
	return a.vol.Analyze(models.Instrument{Symbol: symbol}, window, a.params)
}

// combinedBarAnalyzer requires both analyzers to agree on the same bar;
// a single hit produces nothing. Strengths are averaged.
type combinedBarAnalyzer struct {
	flow BarAnalyzer
	vol  BarAnalyzer
}

func (a *combinedBarAnalyzer) Analyze(ctx context.Context, symbol string, window []models.Candle) (*models.Signal, error) {
	fs, err := a.flow.Analyze(ctx, symbol, window)
	if err != nil {
		return nil, err
	}
	vs, err := a.vol.Analyze(ctx, symbol, window)
	if err != nil {
		return nil, err
	}
	if fs == nil || vs == nil || fs.Direction != vs.Direction {
		return nil, nil
	}

	merged := *fs
	merged.Algorithm = models.AlgorithmCombined
	merged.Strength = models.Clamp01((fs.Strength + vs.Strength) / 2)
	merged.Confidence = models.ConfidenceFor(merged.Strength)
	merged.Metadata = map[string]float64{
		"flow_strength":       fs.Strength,
		"volatility_strength": vs.Strength,
	}
	return &merged, nil
}

// atr14 returns the latest ATR(14) of the window, 0 when too short.
func atr14(window []models.Candle) float64 {
	const period = 14
	if len(window) <= period {
		return 0
	}
	highs := make([]float64, len(window))
	lows := make([]float64, len(window))
	closes := make([]float64, len(window))
	for i, c := range window {
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
	}
	series := talib.Atr(highs, lows, closes, period)
	return series[len(series)-1]
}
