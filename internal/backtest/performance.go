package backtest

import (
	"math"

	"TradePulse/internal/domain/models"
)

// riskFreeRate is the fixed annual risk-free rate used for Sharpe.
const riskFreeRate = 0.03

// Stats holds summary statistics derived from a completed run.
type Stats struct {
	TotalReturn  float64
	TotalTrades  int
	WinRate      float64
	AvgWin       float64
	AvgLoss      float64
	ProfitFactor float64
	LargestWin   float64
	LargestLoss  float64
	MaxDrawdown  float64
	SharpeRatio  float64
}

// Calculate is a pure function over the completed-trade list, the equity
// curve, and the monthly return series. Open trades must not be passed in.
func Calculate(initial, final float64, trades []models.Trade, equity []models.EquityPoint, monthly []models.MonthlyReturn) Stats {
	var st Stats

	if initial > 0 {
		st.TotalReturn = (final - initial) / initial
	}
	st.TotalTrades = len(trades)

	var (
		wins, losses    int
		winSum, lossSum float64
	)
	for _, t := range trades {
		if t.PnL > 0 {
			wins++
			winSum += t.PnL
			if t.PnL > st.LargestWin {
				st.LargestWin = t.PnL
			}
		} else {
			losses++
			lossSum += t.PnL
			if t.PnL < st.LargestLoss {
				st.LargestLoss = t.PnL
			}
		}
	}
	if len(trades) > 0 {
		st.WinRate = float64(wins) / float64(len(trades))
	}
	if wins > 0 {
		st.AvgWin = winSum / float64(wins)
	}
	if losses > 0 {
		st.AvgLoss = lossSum / float64(losses)
	}
	if st.AvgLoss != 0 {
		st.ProfitFactor = math.Abs(st.AvgWin / st.AvgLoss)
	}

	st.MaxDrawdown = MaxDrawdown(equity)
	st.SharpeRatio = SharpeRatio(monthly)
	return st
}

// MaxDrawdown returns the largest peak-to-trough decline of the equity
// curve as a fraction of the peak. Zero for an empty or non-decreasing
// curve.
func MaxDrawdown(equity []models.EquityPoint) float64 {
	var peak, maxDD float64
	for _, p := range equity {
		if p.Value > peak {
			peak = p.Value
		}
		if peak > 0 {
			if dd := (peak - p.Value) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// SharpeRatio annualizes mean and sample standard deviation of monthly
// returns (x12 and xsqrt(12)) against the fixed risk-free rate. Zero when
// fewer than two observations exist or the deviation vanishes.
func SharpeRatio(monthly []models.MonthlyReturn) float64 {
	n := len(monthly)
	if n < 2 {
		return 0
	}

	var mean float64
	for _, m := range monthly {
		mean += m.Return
	}
	mean /= float64(n)

	var variance float64
	for _, m := range monthly {
		d := m.Return - mean
		variance += d * d
	}
	variance /= float64(n - 1)

	annStd := math.Sqrt(variance) * math.Sqrt(12)
	if annStd == 0 {
		return 0
	}
	return (mean*12 - riskFreeRate) / annStd
}
