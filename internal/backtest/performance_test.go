package backtest

import (
	"math"
	"testing"
	"time"

	"TradePulse/internal/domain/models"
)

func eq(t *testing.T, name string, got, want float64) {
	t.Helper()
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("%s = %v, want %v", name, got, want)
	}
}

func TestMaxDrawdown(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mk := func(vals ...float64) []models.EquityPoint {
		out := make([]models.EquityPoint, len(vals))
		for i, v := range vals {
			out[i] = models.EquityPoint{Date: base.AddDate(0, 0, i), Value: v}
		}
		return out
	}

	eq(t, "drawdown", MaxDrawdown(mk(100, 120, 90, 130, 91)), 0.3)
	eq(t, "monotonic", MaxDrawdown(mk(100, 110, 120)), 0)
	eq(t, "empty", MaxDrawdown(nil), 0)
}

func TestSharpeRatio(t *testing.T) {
	if got := SharpeRatio([]models.MonthlyReturn{{Month: "2026-01", Return: 0.05}}); got != 0 {
		t.Fatalf("single month sharpe = %v, want 0", got)
	}
	if got := SharpeRatio([]models.MonthlyReturn{
		{Month: "2026-01", Return: 0.02},
		{Month: "2026-02", Return: 0.02},
	}); got != 0 {
		t.Fatalf("zero variance sharpe = %v, want 0", got)
	}

	// mean 0.02, sample std 0.0141..., annualized (0.24-0.03)/0.04899.
	got := SharpeRatio([]models.MonthlyReturn{
		{Month: "2026-01", Return: 0.01},
		{Month: "2026-02", Return: 0.03},
	})
	want := (0.02*12 - 0.03) / (math.Sqrt(0.0002) * math.Sqrt(12))
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("sharpe = %v, want %v", got, want)
	}
}

func TestCalculateTradeStats(t *testing.T) {
	trades := []models.Trade{
		{PnL: 10, ExitDate: time.Now()},
		{PnL: 20, ExitDate: time.Now()},
		{PnL: -15, ExitDate: time.Now()},
	}
	st := Calculate(10_000, 10_015, trades, nil, nil)

	eq(t, "total return", st.TotalReturn, 0.0015)
	if st.TotalTrades != 3 {
		t.Fatalf("total trades = %d", st.TotalTrades)
	}
	eq(t, "win rate", st.WinRate, 2.0/3.0)
	eq(t, "avg win", st.AvgWin, 15)
	eq(t, "avg loss", st.AvgLoss, -15)
	eq(t, "profit factor", st.ProfitFactor, 1)
	eq(t, "largest win", st.LargestWin, 20)
	eq(t, "largest loss", st.LargestLoss, -15)
}

func TestCalculateNoLosses(t *testing.T) {
	trades := []models.Trade{{PnL: 10}, {PnL: 5}}
	st := Calculate(10_000, 10_015, trades, nil, nil)
	if st.ProfitFactor != 0 {
		t.Fatalf("profit factor without losses = %v, want 0", st.ProfitFactor)
	}
	eq(t, "win rate", st.WinRate, 1)
}
