package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"TradePulse/internal/domain/models"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDs struct{ n int }

func (g *seqIDs) NewID() string {
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

type stubAverager struct {
	avg float64
	err error
	// symbol of the last call, empty when never called
	called string
}

func (s *stubAverager) AverageVolume(_ context.Context, symbol string, _ int) (float64, error) {
	s.called = symbol
	return s.avg, s.err
}

func newFlowForTest(avg *stubAverager) *FlowAnalyzer {
	return NewFlowAnalyzer(avg, fixedClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}, &seqIDs{})
}

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestFlowScoreEmitsBuySignal(t *testing.T) {
	fa := newFlowForTest(&stubAverager{})
	inst := models.Instrument{Symbol: "BTCUSDT"}
	snap := models.MarketSnapshot{
		Symbol:           "BTCUSDT",
		Price:            96,
		Low24h:           95,
		High24h:          105,
		Volume24h:        1_200_000,
		PercentChange24h: -0.04,
	}

	sig := fa.Score(inst, snap, 600_000, models.DefaultFlowParams())
	if sig == nil {
		t.Fatalf("expected a signal")
	}
	if sig.Direction != models.DirectionBuy {
		t.Fatalf("direction = %q, want buy", sig.Direction)
	}
	// volume ratio 2.0 -> 10, price position 0.1 -> 20, momentum 4% -> 4,
	// score 34; strength 0.34 + 0.1 volume bonus + 0.15 position bonus.
	if !almostEqual(sig.Strength, 0.59) {
		t.Fatalf("strength = %v, want 0.59", sig.Strength)
	}
	if !almostEqual(sig.Confidence, 0.59*0.9) {
		t.Fatalf("confidence = %v, want %v", sig.Confidence, 0.59*0.9)
	}
	if !almostEqual(sig.Metadata["volume_ratio"], 2.0) {
		t.Fatalf("volume_ratio = %v", sig.Metadata["volume_ratio"])
	}
	if sig.Status != models.SignalStatusActive {
		t.Fatalf("status = %q", sig.Status)
	}
	if !sig.ExpiresAt.Equal(sig.CreatedAt.Add(models.SignalTTL)) {
		t.Fatalf("expiry not 24h after creation")
	}
}

func TestFlowScoreStrengthBounds(t *testing.T) {
	fa := newFlowForTest(&stubAverager{})
	inst := models.Instrument{Symbol: "BTCUSDT"}
	// Everything maxed: huge surge, price at the low, deep drop.
	snap := models.MarketSnapshot{
		Price:            95,
		Low24h:           95,
		High24h:          105,
		Volume24h:        10_000_000,
		PercentChange24h: -0.40,
	}
	sig := fa.Score(inst, snap, 1_000_000, models.DefaultFlowParams())
	if sig == nil {
		t.Fatalf("expected a signal")
	}
	if sig.Strength != 1.0 {
		t.Fatalf("strength = %v, want clamp at 1.0", sig.Strength)
	}
	if sig.Confidence > 0.95 {
		t.Fatalf("confidence = %v, exceeds cap", sig.Confidence)
	}
}

func TestFlowScoreRejectsPositiveChange(t *testing.T) {
	fa := newFlowForTest(&stubAverager{})
	snap := models.MarketSnapshot{
		Price: 100, Low24h: 95, High24h: 105,
		Volume24h: 5_000_000, PercentChange24h: 0.02,
	}
	if sig := fa.Score(models.Instrument{Symbol: "ETHUSDT"}, snap, 1_000_000, models.DefaultFlowParams()); sig != nil {
		t.Fatalf("expected nil for positive 24h change, got %+v", sig)
	}
}

func TestFlowScoreBelowEmitFloor(t *testing.T) {
	fa := newFlowForTest(&stubAverager{})
	// No surge, price near the high, shallow drop: score stays tiny.
	snap := models.MarketSnapshot{
		Price: 104, Low24h: 95, High24h: 105,
		Volume24h: 900_000, PercentChange24h: -0.035,
	}
	if sig := fa.Score(models.Instrument{Symbol: "ETHUSDT"}, snap, 900_000, models.DefaultFlowParams()); sig != nil {
		t.Fatalf("expected nil below emit floor, got strength %v", sig.Strength)
	}
}

func TestFlowAnalyzeSkipsBaselineWhenRejected(t *testing.T) {
	avg := &stubAverager{avg: 1_000_000}
	fa := newFlowForTest(avg)
	snap := models.MarketSnapshot{
		Price: 100, Low24h: 95, High24h: 105,
		Volume24h: 5_000_000, PercentChange24h: 0.05,
	}
	sig, err := fa.Analyze(context.Background(), models.Instrument{Symbol: "BTCUSDT"}, snap, models.DefaultFlowParams())
	if err != nil || sig != nil {
		t.Fatalf("want nil, nil; got %v, %v", sig, err)
	}
	if avg.called != "" {
		t.Fatalf("baseline fetched despite early rejection")
	}
}

func TestFlowAnalyzeWrapsFetchError(t *testing.T) {
	avg := &stubAverager{err: errors.New("boom")}
	fa := newFlowForTest(avg)
	snap := models.MarketSnapshot{
		Price: 96, Low24h: 95, High24h: 105,
		Volume24h: 1_200_000, PercentChange24h: -0.04,
	}
	_, err := fa.Analyze(context.Background(), models.Instrument{Symbol: "BTCUSDT"}, snap, models.DefaultFlowParams())
	if !errors.Is(err, models.ErrUpstreamFetch) {
		t.Fatalf("err = %v, want ErrUpstreamFetch", err)
	}
}
