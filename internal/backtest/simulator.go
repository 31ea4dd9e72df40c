package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	"TradePulse/pkg/logger"
)

const (
	// warmupBars is the minimum history before the first signal check.
	warmupBars = 50
	// lookbackBars is the trailing window handed to the analyzer,
	// including the current bar.
	lookbackBars = 100
)

// BarAnalyzer evaluates a trailing candle window ending at the current
// bar. A nil signal with nil error means no entry condition holds.
type BarAnalyzer interface {
	Analyze(ctx context.Context, symbol string, window []models.Candle) (*models.Signal, error)
}

// Simulator replays candles bar-by-bar through a single-position state
// machine. Runs are strictly sequential; one Simulator serves one run.
type Simulator struct {
	params   models.BacktestParams
	analyzer BarAnalyzer
	clock    drepo.Clock
	ids      drepo.IDGenerator
	l        *logger.Logger
}

// NewSimulator builds a simulator for one parameter set.
func NewSimulator(params models.BacktestParams, analyzer BarAnalyzer, clock drepo.Clock, ids drepo.IDGenerator, l *logger.Logger) *Simulator {
	return &Simulator{params: params, analyzer: analyzer, clock: clock, ids: ids, l: l}
}

// Run simulates the full candle sequence and returns an immutable result.
// Any internal error aborts the run; callers running sweeps skip failed
// runs and continue.
func (s *Simulator) Run(ctx context.Context, candles []models.Candle) (*models.BacktestResult, error) {
	if err := s.params.Validate(); err != nil {
		return nil, err
	}
	if len(candles) < warmupBars {
		return nil, fmt.Errorf("%w: need %d candles, have %d", models.ErrInsufficientData, warmupBars, len(candles))
	}
	if err := models.ValidateCandles(candles); err != nil {
		return nil, err
	}

	capital := s.params.InitialCapital
	var (
		trades  []models.Trade
		open    *models.Trade
		stopPx  float64
		equity  = make([]models.EquityPoint, 0, len(candles)-warmupBars+1)
		monthly []models.MonthlyReturn
	)
	monthStart := capital
	curYear, curMonth, _ := candles[warmupBars-1].OpenTime.Date()

	for i := warmupBars - 1; i < len(candles); i++ {
		bar := candles[i]

		// Calendar month rollover closes out the previous month's
		// realized return and resets the baseline.
		if y, m, _ := bar.OpenTime.Date(); y != curYear || m != curMonth {
			monthly = append(monthly, monthReturn(curYear, curMonth, monthStart, capital))
			curYear, curMonth = y, m
			monthStart = capital
		}

		winStart := i - lookbackBars + 1
		if winStart < 0 {
			winStart = 0
		}
		window := candles[winStart : i+1]

		if open != nil {
			reason, err := s.exitReason(ctx, bar, window, open, stopPx)
			if err != nil {
				return nil, fmt.Errorf("analyze bar %d: %w", i, err)
			}
			if reason != "" {
				capital += closeTrade(open, bar, reason)
				trades = append(trades, *open)
				open = nil
			}
		} else {
			sig, err := s.analyzer.Analyze(ctx, s.params.Symbol, window)
			if err != nil && !errors.Is(err, models.ErrInsufficientData) {
				return nil, fmt.Errorf("analyze bar %d: %w", i, err)
			}
			if sig != nil && sig.Direction == models.DirectionBuy {
				t := models.Trade{
					EntryDate:      bar.OpenTime,
					EntryPrice:     bar.Close,
					Quantity:       capital * s.params.PositionSize / bar.Close,
					Side:           models.SideLong,
					SignalStrength: sig.Strength,
				}
				open = &t
				stopPx = s.stopPrice(window, bar.Close)
			}
		}

		value := capital
		if open != nil {
			value += open.Quantity * (bar.Close - open.EntryPrice)
		}
		equity = append(equity, models.EquityPoint{Date: bar.OpenTime, Value: value})
	}

	// Flush the tail partial month.
	monthly = append(monthly, monthReturn(curYear, curMonth, monthStart, capital))

	completed := trades
	if open != nil {
		// Still-open position: returned, but never counted in
		// completed-trade statistics.
		trades = append(trades, *open)
	}

	stats := Calculate(s.params.InitialCapital, capital, completed, equity, monthly)

	res := &models.BacktestResult{
		ID:             s.ids.NewID(),
		Params:         s.params,
		Trades:         trades,
		EquityCurve:    equity,
		MonthlyReturns: monthly,
		InitialCapital: s.params.InitialCapital,
		FinalCapital:   capital,
		TotalReturn:    stats.TotalReturn,
		TotalTrades:    stats.TotalTrades,
		WinRate:        stats.WinRate,
		AvgWin:         stats.AvgWin,
		AvgLoss:        stats.AvgLoss,
		ProfitFactor:   stats.ProfitFactor,
		LargestWin:     stats.LargestWin,
		LargestLoss:    stats.LargestLoss,
		MaxDrawdown:    stats.MaxDrawdown,
		SharpeRatio:    stats.SharpeRatio,
		CreatedAt:      s.clock.Now(),
	}
	if s.l != nil {
		s.l.Debug("backtest run complete",
			logger.String("symbol", s.params.Symbol),
			logger.String("algorithm", s.params.Algorithm),
			logger.Int("trades", len(trades)),
			logger.Float64("total_return", stats.TotalReturn),
		)
	}
	return res, nil
}

// exitReason checks exit conditions in fixed order: stop-loss, then
// take-profit, then signal disappearance. Empty string means stay open.
func (s *Simulator) exitReason(ctx context.Context, bar models.Candle, window []models.Candle, open *models.Trade, stopPx float64) (string, error) {
	if bar.Close <= stopPx {
		return models.ExitStopLoss, nil
	}
	if bar.Close >= open.EntryPrice*(1+s.params.TakeProfit) {
		return models.ExitTakeProfit, nil
	}
	sig, err := s.analyzer.Analyze(ctx, s.params.Symbol, window)
	if err != nil && !errors.Is(err, models.ErrInsufficientData) {
		return "", err
	}
	if sig == nil || sig.Direction != models.DirectionBuy {
		return models.ExitSignal, nil
	}
	return "", nil
}

// stopPrice derives the stop level for a fresh entry. With UseATRStop the
// fractional stop is widened to at least 1.5 ATR(14) below entry.
func (s *Simulator) stopPrice(window []models.Candle, entry float64) float64 {
	dist := entry * s.params.StopLoss
	if s.params.UseATRStop {
		if atr := atr14(window); atr*1.5 > dist {
			dist = atr * 1.5
		}
	}
	return entry - dist
}

// closeTrade fills exit fields and returns the realized P&L.
func closeTrade(t *models.Trade, bar models.Candle, reason string) float64 {
	t.ExitDate = bar.OpenTime
	t.ExitPrice = bar.Close
	t.ExitReason = reason
	t.PnL = (t.ExitPrice - t.EntryPrice) * t.Quantity
	t.PnLPercent = (t.ExitPrice - t.EntryPrice) / t.EntryPrice
	return t.PnL
}

func monthReturn(year int, month time.Month, start, end float64) models.MonthlyReturn {
	ret := 0.0
	if start > 0 {
		ret = (end - start) / start
	}
	return models.MonthlyReturn{
		Month:  fmt.Sprintf("%04d-%02d", year, month),
		Return: ret,
	}
}
