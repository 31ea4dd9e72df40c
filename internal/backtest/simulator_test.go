package backtest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"TradePulse/internal/domain/models"
	"TradePulse/pkg/logger"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDs struct{ n int }

func (g *seqIDs) NewID() string {
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

// closeTriggered signals buy while the window's last close holds at or
// above the trigger level.
type closeTriggered struct{ buyClose float64 }

func (a closeTriggered) Analyze(_ context.Context, _ string, window []models.Candle) (*models.Signal, error) {
	last := window[len(window)-1]
	if last.Close >= a.buyClose {
		return &models.Signal{Direction: models.DirectionBuy, Strength: 0.8}, nil
	}
	return nil, nil
}

type neverSignals struct{}

func (neverSignals) Analyze(context.Context, string, []models.Candle) (*models.Signal, error) {
	return nil, nil
}

func simParams() models.BacktestParams {
	return models.BacktestParams{
		Symbol:         "BTCUSDT",
		Algorithm:      models.AlgorithmFlow,
		Interval:       "1h",
		InitialCapital: 10_000,
		PositionSize:   0.1,
		StopLoss:       0.02,
		TakeProfit:     0.05,
		Flow:           models.DefaultFlowParams(),
		Volatility:     models.DefaultVolatilityParams(),
	}
}

// bars returns hourly candles closing at the given prices.
func bars(closes ...float64) []models.Candle {
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(closes))
	for i, c := range closes {
		out[i] = models.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Symbol:   "BTCUSDT",
			Open:     c,
			High:     c * 1.001,
			Low:      c * 0.999,
			Close:    c,
			Volume:   1000,
		}
	}
	return out
}

func repeat(price float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}

func newSim(p models.BacktestParams, a BarAnalyzer) *Simulator {
	return NewSimulator(p, a, fixedClock{t: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)}, &seqIDs{}, logger.Nop())
}

func TestSimulatorWarmupRequirement(t *testing.T) {
	sim := newSim(simParams(), neverSignals{})
	_, err := sim.Run(context.Background(), bars(repeat(100, 49)...))
	if !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("err = %v, want ErrInsufficientData", err)
	}
}

func TestSimulatorMinimalRun(t *testing.T) {
	sim := newSim(simParams(), neverSignals{})
	res, err := sim.Run(context.Background(), bars(repeat(100, 50)...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.EquityCurve) != 1 {
		t.Fatalf("equity points = %d, want 1", len(res.EquityCurve))
	}
	if res.TotalTrades != 0 || len(res.Trades) != 0 {
		t.Fatalf("expected no trades, got %d", len(res.Trades))
	}
	if res.FinalCapital != res.InitialCapital {
		t.Fatalf("capital drifted without trades: %v", res.FinalCapital)
	}
	if len(res.MonthlyReturns) != 1 {
		t.Fatalf("monthly returns = %d, want 1", len(res.MonthlyReturns))
	}
}

func TestSimulatorStopLossExit(t *testing.T) {
	closes := append(repeat(100, 50), 97.9, 99)
	sim := newSim(simParams(), closeTriggered{buyClose: 100})

	res, err := sim.Run(context.Background(), bars(closes...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(res.Trades))
	}
	tr := res.Trades[0]
	if tr.ExitReason != models.ExitStopLoss {
		t.Fatalf("exit reason = %q, want stopLoss", tr.ExitReason)
	}
	// 10% of 10k at 100 is 10 units; -2.1 each.
	if math.Abs(tr.PnL+21) > 1e-9 {
		t.Fatalf("pnl = %v, want -21", tr.PnL)
	}
	if math.Abs(tr.PnLPercent+0.021) > 1e-9 {
		t.Fatalf("pnl percent = %v, want -0.021", tr.PnLPercent)
	}
	if math.Abs(res.FinalCapital-9979) > 1e-9 {
		t.Fatalf("final capital = %v, want 9979", res.FinalCapital)
	}
}

func TestSimulatorTakeProfitExit(t *testing.T) {
	closes := append(repeat(100, 50), 105.1)
	sim := newSim(simParams(), closeTriggered{buyClose: 100})

	res, err := sim.Run(context.Background(), bars(closes...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Trades) != 1 || res.Trades[0].ExitReason != models.ExitTakeProfit {
		t.Fatalf("expected one takeProfit exit, got %+v", res.Trades)
	}
	if math.Abs(res.Trades[0].PnL-51) > 1e-9 {
		t.Fatalf("pnl = %v, want 51", res.Trades[0].PnL)
	}
}

func TestSimulatorSignalDisappearanceExit(t *testing.T) {
	// 99 sits between the stop at 98 and the trigger at 100: the only
	// exit left is the signal dropping away.
	closes := append(repeat(100, 50), 99)
	sim := newSim(simParams(), closeTriggered{buyClose: 100})

	res, err := sim.Run(context.Background(), bars(closes...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Trades) != 1 || res.Trades[0].ExitReason != models.ExitSignal {
		t.Fatalf("expected one signal exit, got %+v", res.Trades)
	}
}

func TestSimulatorOpenTradeExcludedFromStats(t *testing.T) {
	// Entry on the last bar: the trade is returned but never completed.
	closes := append(repeat(99, 49), 100)
	sim := newSim(simParams(), closeTriggered{buyClose: 100})

	res, err := sim.Run(context.Background(), bars(closes...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("trades = %d, want the open trade returned", len(res.Trades))
	}
	if res.Trades[0].Completed() {
		t.Fatalf("trade should still be open")
	}
	if res.TotalTrades != 0 {
		t.Fatalf("open trade leaked into statistics: %d", res.TotalTrades)
	}
}

func TestSimulatorMarkToMarketEquity(t *testing.T) {
	closes := append(repeat(100, 50), 102, 101)
	sim := newSim(simParams(), closeTriggered{buyClose: 100})

	res, err := sim.Run(context.Background(), bars(closes...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Bar 50 marks the open position at 102: 10000 + 10*(102-100).
	mtm := res.EquityCurve[1].Value
	if math.Abs(mtm-10_020) > 1e-9 {
		t.Fatalf("mark-to-market equity = %v, want 10020", mtm)
	}
}

func TestSimulatorMonthRollover(t *testing.T) {
	// 50 bars ending 2026-06-03, then jump into July.
	candles := bars(repeat(100, 50)...)
	extra := candles[len(candles)-1]
	extra.OpenTime = time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	candles = append(candles, extra)

	sim := newSim(simParams(), neverSignals{})
	res, err := sim.Run(context.Background(), candles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.MonthlyReturns) != 2 {
		t.Fatalf("monthly returns = %d, want 2", len(res.MonthlyReturns))
	}
	if res.MonthlyReturns[0].Month != "2026-06" || res.MonthlyReturns[1].Month != "2026-07" {
		t.Fatalf("months = %+v", res.MonthlyReturns)
	}
}
