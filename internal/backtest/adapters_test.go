package backtest

import (
	"context"
	"math"
	"testing"
	"time"

	"TradePulse/internal/analysis"
	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
)

// fixedSignal always reports a copy of the same signal.
type fixedSignal struct{ sig *models.Signal }

func (a fixedSignal) Analyze(context.Context, string, []models.Candle) (*models.Signal, error) {
	s := *a.sig
	return &s, nil
}

func buySignal(strength float64) *models.Signal {
	return &models.Signal{
		Algorithm: models.AlgorithmFlow,
		Direction: models.DirectionBuy,
		Strength:  strength,
		Price:     100,
	}
}

func TestCombinedRequiresBothAnalyzers(t *testing.T) {
	ctx := context.Background()
	window := bars(repeat(100, 30)...)

	onlyFlow := &combinedBarAnalyzer{flow: fixedSignal{sig: buySignal(0.8)}, vol: neverSignals{}}
	if s, err := onlyFlow.Analyze(ctx, "BTCUSDT", window); err != nil || s != nil {
		t.Fatalf("flow-only hit produced a combined signal: %+v, err=%v", s, err)
	}

	onlyVol := &combinedBarAnalyzer{flow: neverSignals{}, vol: fixedSignal{sig: buySignal(0.8)}}
	if s, err := onlyVol.Analyze(ctx, "BTCUSDT", window); err != nil || s != nil {
		t.Fatalf("volatility-only hit produced a combined signal: %+v, err=%v", s, err)
	}
}

func TestCombinedDirectionMismatch(t *testing.T) {
	sell := buySignal(0.7)
	sell.Direction = models.DirectionSell

	a := &combinedBarAnalyzer{flow: fixedSignal{sig: buySignal(0.7)}, vol: fixedSignal{sig: sell}}
	s, err := a.Analyze(context.Background(), "BTCUSDT", bars(repeat(100, 30)...))
	if err != nil || s != nil {
		t.Fatalf("opposing directions produced a combined signal: %+v, err=%v", s, err)
	}
}

func TestCombinedAveragesStrength(t *testing.T) {
	a := &combinedBarAnalyzer{flow: fixedSignal{sig: buySignal(0.6)}, vol: fixedSignal{sig: buySignal(0.8)}}

	s, err := a.Analyze(context.Background(), "BTCUSDT", bars(repeat(100, 30)...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s == nil {
		t.Fatalf("both analyzers agreed but no combined signal emitted")
	}
	if s.Algorithm != models.AlgorithmCombined {
		t.Fatalf("algorithm = %q, want combined", s.Algorithm)
	}
	if math.Abs(s.Strength-0.7) > 1e-9 {
		t.Fatalf("strength = %v, want 0.7", s.Strength)
	}
	if math.Abs(s.Confidence-models.ConfidenceFor(0.7)) > 1e-9 {
		t.Fatalf("confidence = %v", s.Confidence)
	}
	if s.Metadata["flow_strength"] != 0.6 || s.Metadata["volatility_strength"] != 0.8 {
		t.Fatalf("metadata = %+v", s.Metadata)
	}
}

// flowWindow is 47 flat hourly bars followed by a capitulation bar: a 5%
// drop on roughly nine times the trailing volume, closing at the bottom
// of the day's range.
func flowWindow() []models.Candle {
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, 48)
	for i := range out {
		out[i] = models.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Symbol:   "BTCUSDT",
			Open:     100, High: 100.1, Low: 99.9, Close: 100,
			Volume: 1000,
		}
	}
	out[47] = models.Candle{
		OpenTime: base.Add(47 * time.Hour),
		Symbol:   "BTCUSDT",
		Open:     100, High: 100, Low: 94.9, Close: 95,
		Volume: 200_000,
	}
	return out
}

func newFlowBarAnalyzer(params models.FlowParams) *flowBarAnalyzer {
	return &flowBarAnalyzer{
		flow:     analysis.NewFlowAnalyzer(nil, fixedClock{t: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)}, &seqIDs{}),
		params:   params,
		interval: drepo.NormalizeInterval("1h"),
	}
}

func TestFlowWindowCapitulationBar(t *testing.T) {
	a := newFlowBarAnalyzer(models.DefaultFlowParams())

	s, err := a.Analyze(context.Background(), "BTCUSDT", flowWindow())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s == nil {
		t.Fatalf("capitulation bar produced no signal")
	}
	if s.Direction != models.DirectionBuy || s.Strength < 0.5 {
		t.Fatalf("signal = %+v", s)
	}
}

func TestFlowWindowConfirmationNotMet(t *testing.T) {
	// The bar before the capitulation is flat, so a two-bar confirmation
	// cannot be satisfied.
	params := models.DefaultFlowParams()
	params.ConfirmationPeriods = 2
	a := newFlowBarAnalyzer(params)

	s, err := a.Analyze(context.Background(), "BTCUSDT", flowWindow())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s != nil {
		t.Fatalf("unconfirmed condition emitted a signal: %+v", s)
	}
}

func TestFlowWindowTooShort(t *testing.T) {
	a := newFlowBarAnalyzer(models.DefaultFlowParams())
	if _, err := a.Analyze(context.Background(), "BTCUSDT", bars(repeat(100, 24)...)); err == nil {
		t.Fatalf("expected error for a window no longer than one day")
	}
}

func TestSnapshotFromBarsAggregation(t *testing.T) {
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	day := []models.Candle{
		{OpenTime: base, Open: 10, High: 12, Low: 9, Close: 11, Volume: 5},
		{OpenTime: base.Add(time.Hour), Open: 11, High: 15, Low: 10, Close: 14, Volume: 7},
		{OpenTime: base.Add(2 * time.Hour), Open: 14, High: 14.5, Low: 13, Close: 13.5, Volume: 8},
	}

	snap := snapshotFromBars("BTCUSDT", day)
	if snap.Open24h != 10 || snap.High24h != 15 || snap.Low24h != 9 {
		t.Fatalf("range = open %v high %v low %v", snap.Open24h, snap.High24h, snap.Low24h)
	}
	if snap.Price != 13.5 || snap.Volume24h != 20 {
		t.Fatalf("price = %v, volume = %v", snap.Price, snap.Volume24h)
	}
	if math.Abs(snap.PercentChange24h-0.35) > 1e-9 {
		t.Fatalf("percent change = %v, want 0.35", snap.PercentChange24h)
	}
	if !snap.ObservedAt.Equal(day[2].OpenTime) {
		t.Fatalf("observed at = %v", snap.ObservedAt)
	}
}
