package analysis

import (
	"errors"
	"testing"
	"time"

	"TradePulse/internal/domain/models"
)

func volParamsForTest() models.VolatilityParams {
	return models.VolatilityParams{
		Period:              2,
		BandPeriod:          3,
		DeviationMultiplier: 1,
		ThresholdLow:        60,
		ThresholdHigh:       20,
		SmoothingPeriod:     1,
	}
}

// barsFromLows builds candles with a fixed 100 high and the given lows.
func barsFromLows(lows ...float64) []models.Candle {
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, len(lows))
	for i, low := range lows {
		out[i] = models.Candle{
			OpenTime: base.Add(time.Duration(i) * time.Hour),
			Symbol:   "BTCUSDT",
			Open:     100,
			High:     100,
			Low:      low,
			Close:    low,
			Volume:   1000,
		}
	}
	return out
}

func newVolForTest() *VolatilityExtremeAnalyzer {
	return NewVolatilityExtremeAnalyzer(fixedClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}, &seqIDs{})
}

func TestVolatilityWarmup(t *testing.T) {
	va := newVolForTest()
	_, err := va.Analyze(models.Instrument{Symbol: "BTCUSDT"}, barsFromLows(90, 90, 90, 90), volParamsForTest())
	if !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("err = %v, want ErrInsufficientData", err)
	}
}

func TestVolatilityRejectsInvalidCandle(t *testing.T) {
	va := newVolForTest()
	candles := barsFromLows(90, 90, 90, 90, 90)
	candles[2].Low = 0
	_, err := va.Analyze(models.Instrument{Symbol: "BTCUSDT"}, candles, volParamsForTest())
	if !errors.Is(err, models.ErrInvalidCandle) {
		t.Fatalf("err = %v, want ErrInvalidCandle", err)
	}
}

func TestVolatilityDegenerateBand(t *testing.T) {
	va := newVolForTest()
	// Flat market: zero variance, the band collapses and nothing emits.
	sig, err := va.Analyze(models.Instrument{Symbol: "BTCUSDT"}, barsFromLows(100, 100, 100, 100, 100), volParamsForTest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig != nil {
		t.Fatalf("expected nil signal on flat series, got %+v", sig)
	}
}

func TestVolatilityOversoldBuy(t *testing.T) {
	va := newVolForTest()
	// Last bar washes out 90% below the trailing high.
	sig, err := va.Analyze(models.Instrument{Symbol: "BTCUSDT"}, barsFromLows(90, 90, 90, 90, 10), volParamsForTest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig == nil {
		t.Fatalf("expected a buy signal")
	}
	if sig.Direction != models.DirectionBuy {
		t.Fatalf("direction = %q, want buy", sig.Direction)
	}
	if sig.Strength != 1.0 {
		t.Fatalf("strength = %v, want 1.0", sig.Strength)
	}
	if sig.Price != 10 {
		t.Fatalf("price = %v, want last close", sig.Price)
	}
	if !almostEqual(sig.Metadata["value"], 90) {
		t.Fatalf("extreme value = %v, want 90", sig.Metadata["value"])
	}
}

func TestVolatilityOverboughtSell(t *testing.T) {
	va := newVolForTest()
	// Last bar presses the highs after a stretched sequence.
	sig, err := va.Analyze(models.Instrument{Symbol: "BTCUSDT"}, barsFromLows(50, 50, 50, 50, 98), volParamsForTest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig == nil {
		t.Fatalf("expected a sell signal")
	}
	if sig.Direction != models.DirectionSell {
		t.Fatalf("direction = %q, want sell", sig.Direction)
	}
	if sig.Strength != 1.0 {
		t.Fatalf("strength = %v, want 1.0", sig.Strength)
	}
}

func TestVolatilitySmoothedSeries(t *testing.T) {
	va := newVolForTest()
	params := volParamsForTest()
	params.SmoothingPeriod = 2

	sig, err := va.Analyze(models.Instrument{Symbol: "BTCUSDT"}, barsFromLows(90, 90, 90, 90, 10, 10), params)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig == nil || sig.Direction != models.DirectionBuy {
		t.Fatalf("expected buy signal on smoothed series, got %+v", sig)
	}
}
