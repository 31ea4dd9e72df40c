package backtest

import "TradePulse/internal/domain/models"

// dimension is one named axis of the sweep grid.
type dimension struct {
	name   string
	values []float64
}

// grid lazily walks the cartesian product of its dimensions in odometer
// order, so the first combination is every dimension's first value and
// the last dimension varies fastest.
type grid struct {
	dims []dimension
	idx  []int
	done bool
}

func newGrid(dims []dimension) *grid {
	g := &grid{dims: dims, idx: make([]int, len(dims))}
	for _, d := range dims {
		if len(d.values) == 0 {
			g.done = true
		}
	}
	return g
}

// Size returns the total number of combinations.
func (g *grid) Size() int {
	n := 1
	for _, d := range g.dims {
		n *= len(d.values)
	}
	return n
}

// Next yields the next combination as a name->value map, or false when
// the product is exhausted.
func (g *grid) Next() (map[string]float64, bool) {
	if g.done {
		return nil, false
	}
	out := make(map[string]float64, len(g.dims))
	for i, d := range g.dims {
		out[d.name] = d.values[g.idx[i]]
	}
	// advance the odometer, last dimension fastest
	for i := len(g.idx) - 1; i >= 0; i-- {
		g.idx[i]++
		if g.idx[i] < len(g.dims[i].values) {
			return out, true
		}
		g.idx[i] = 0
	}
	g.done = true
	return out, true
}

// rangeOr expands an optional range, falling back to the nominal value.
func rangeOr(r *models.Range, nominal float64) []float64 {
	if r == nil {
		return []float64{nominal}
	}
	return r.Values()
}

// sweepGrid builds the numeric grid for one algorithm of a sweep.
func sweepGrid(sweep models.SweepParams) *grid {
	base := sweep.Base
	return newGrid([]dimension{
		{name: "position_size", values: rangeOr(sweep.PositionSize, base.PositionSize)},
		{name: "stop_loss", values: rangeOr(sweep.StopLoss, base.StopLoss)},
		{name: "take_profit", values: rangeOr(sweep.TakeProfit, base.TakeProfit)},
		{name: "min_volume_ratio", values: rangeOr(sweep.MinVolumeRatio, base.Flow.MinVolumeRatio)},
		{name: "threshold_low", values: rangeOr(sweep.ThresholdLow, base.Volatility.ThresholdLow)},
		{name: "threshold_high", values: rangeOr(sweep.ThresholdHigh, base.Volatility.ThresholdHigh)},
		{name: "deviation_multiplier", values: rangeOr(sweep.DeviationMultiplier, base.Volatility.DeviationMultiplier)},
	})
}

// applyCombo copies the base parameters and overlays one grid combination.
func applyCombo(base models.BacktestParams, algorithm string, combo map[string]float64) models.BacktestParams {
	p := base
	p.Algorithm = algorithm
	p.PositionSize = combo["position_size"]
	p.StopLoss = combo["stop_loss"]
	p.TakeProfit = combo["take_profit"]
	p.Flow.MinVolumeRatio = combo["min_volume_ratio"]
	p.Volatility.ThresholdLow = combo["threshold_low"]
	p.Volatility.ThresholdHigh = combo["threshold_high"]
	p.Volatility.DeviationMultiplier = combo["deviation_multiplier"]
	return p
}
