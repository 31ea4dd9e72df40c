package models

import (
	"math"
	"testing"
)

func TestRangeValues(t *testing.T) {
	vals := Range{Min: 0.02, Max: 0.06, Step: 0.02}.Values()
	want := []float64{0.02, 0.04, 0.06}
	if len(vals) != len(want) {
		t.Fatalf("values = %v, want %v", vals, want)
	}
	for i := range want {
		if math.Abs(vals[i]-want[i]) > 1e-9 {
			t.Fatalf("values[%d] = %v, want %v", i, vals[i], want[i])
		}
	}
}

func TestRangeCollapses(t *testing.T) {
	cases := []Range{
		{Min: 0.1, Max: 0.5, Step: 0},
		{Min: 0.1, Max: 0.5, Step: -1},
		{Min: 0.5, Max: 0.1, Step: 0.1},
		{Min: 0.5, Max: 0.5, Step: 0.1},
	}
	for _, r := range cases {
		vals := r.Values()
		if len(vals) != 1 || vals[0] != r.Min {
			t.Fatalf("%+v expanded to %v, want [%v]", r, vals, r.Min)
		}
	}
}

func TestBacktestParamsValidate(t *testing.T) {
	valid := BacktestParams{
		Symbol:         "BTCUSDT",
		Algorithm:      AlgorithmFlow,
		InitialCapital: 10_000,
		PositionSize:   0.1,
		StopLoss:       0.05,
		TakeProfit:     0.1,
		Flow:           DefaultFlowParams(),
		Volatility:     DefaultVolatilityParams(),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid params rejected: %v", err)
	}

	bad := []func(p *BacktestParams){
		func(p *BacktestParams) { p.Symbol = "" },
		func(p *BacktestParams) { p.Algorithm = "momentum" },
		func(p *BacktestParams) { p.InitialCapital = 0 },
		func(p *BacktestParams) { p.PositionSize = 1.5 },
		func(p *BacktestParams) { p.StopLoss = 1 },
		func(p *BacktestParams) { p.TakeProfit = 0 },
		func(p *BacktestParams) { p.Flow.PriceChangeThreshold = 0.01 },
		func(p *BacktestParams) { p.Volatility.ThresholdLow = 10 },
	}
	for i, mutate := range bad {
		p := valid
		mutate(&p)
		if err := p.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}

func TestConfidenceFor(t *testing.T) {
	if got := ConfidenceFor(0.5); math.Abs(got-0.45) > 1e-9 {
		t.Fatalf("confidence = %v, want 0.45", got)
	}
	if got := ConfidenceFor(1.2); got != 0.95 {
		t.Fatalf("confidence cap = %v, want 0.95", got)
	}
	if got := ConfidenceFor(-1); got != 0 {
		t.Fatalf("confidence floor = %v, want 0", got)
	}
}

func TestCandleValid(t *testing.T) {
	good := Candle{Open: 1, High: 2, Low: 0.5, Close: 1.5}
	if !good.Valid() {
		t.Fatalf("valid candle rejected")
	}
	if (Candle{Open: 1, High: 0.5, Low: 2, Close: 1}).Valid() {
		t.Fatalf("inverted range accepted")
	}
	if (Candle{Open: 0, High: 2, Low: 1, Close: 1}).Valid() {
		t.Fatalf("zero price accepted")
	}
	if err := ValidateCandles([]Candle{good, {Open: 1, High: 2, Low: 0, Close: 1}}); err != ErrInvalidCandle {
		t.Fatalf("err = %v, want ErrInvalidCandle", err)
	}
}

func TestBacktestRequestDefaults(t *testing.T) {
	req := BacktestRequest{Symbol: "ETHUSDT", Algorithm: AlgorithmCombined}
	p := req.ToParams()
	if p.Flow != DefaultFlowParams() {
		t.Fatalf("flow params should default: %+v", p.Flow)
	}
	if p.Volatility != DefaultVolatilityParams() {
		t.Fatalf("volatility params should default: %+v", p.Volatility)
	}

	custom := DefaultFlowParams()
	custom.MinVolumeRatio = 3
	req.Flow = &custom
	if got := req.ToParams().Flow.MinVolumeRatio; got != 3 {
		t.Fatalf("flow override lost: %v", got)
	}
}
