package analysis

import (
	"github.com/markcheno/go-talib"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
)

// VolatilityExtremeAnalyzer measures how far the current low sits beneath
// the trailing highest high, normalized to [0,100], and classifies the
// latest bar against a rolling SMA/stddev band over that series. High
// values mean a washed-out market (oversold), low values a market pressing
// its highs (overbought).
type VolatilityExtremeAnalyzer struct {
	clock drepo.Clock
	ids   drepo.IDGenerator
}

// NewVolatilityExtremeAnalyzer builds the analyzer.
func NewVolatilityExtremeAnalyzer(clock drepo.Clock, ids drepo.IDGenerator) *VolatilityExtremeAnalyzer {
	return &VolatilityExtremeAnalyzer{clock: clock, ids: ids}
}

// Name returns the stored algorithm identifier.
func (a *VolatilityExtremeAnalyzer) Name() string { return models.AlgorithmVolatilityExtreme }

// Analyze evaluates the latest bar of the candle sequence. A nil signal
// with nil error means no extreme condition was met. Classification is
// suppressed until a full band window of extreme values exists and
// whenever the band is degenerate (zero variance).
func (a *VolatilityExtremeAnalyzer) Analyze(inst models.Instrument, candles []models.Candle, params models.VolatilityParams) (*models.Signal, error) {
	if len(candles) < params.Period+params.BandPeriod {
		return nil, models.ErrInsufficientData
	}
	if err := models.ValidateCandles(candles); err != nil {
		return nil, err
	}

	extremes := extremeSeries(candles, params.Period)
	if params.SmoothingPeriod > 1 {
		if len(extremes) < params.SmoothingPeriod {
			return nil, models.ErrInsufficientData
		}
		extremes = talib.Sma(extremes, params.SmoothingPeriod)[params.SmoothingPeriod-1:]
	}
	if len(extremes) < params.BandPeriod {
		return nil, models.ErrInsufficientData
	}

	middle := talib.Sma(extremes, params.BandPeriod)
	dev := talib.StdDev(extremes, params.BandPeriod, params.DeviationMultiplier)

	last := len(extremes) - 1
	value := extremes[last]
	upper := middle[last] + dev[last]
	lower := middle[last] - dev[last]
	if upper <= lower {
		// Degenerate band: zero variance carries no oversold or
		// overbought distinction.
		return nil, nil
	}

	direction, strength := classify(value, upper, lower, params)
	if direction == "" || strength < 0.5 {
		return nil, nil
	}

	now := a.clock.Now()
	return &models.Signal{
		ID:         a.ids.NewID(),
		Symbol:     inst.Symbol,
		Algorithm:  models.AlgorithmVolatilityExtreme,
		Direction:  direction,
		Strength:   strength,
		Confidence: models.ConfidenceFor(strength),
		Price:      candles[len(candles)-1].Close,
		Metadata: map[string]float64{
			"value":       value,
			"band_upper":  upper,
			"band_middle": middle[last],
			"band_lower":  lower,
		},
		Status:    models.SignalStatusActive,
		CreatedAt: now,
		ExpiresAt: now.Add(models.SignalTTL),
	}, nil
}

// extremeSeries computes (highestHigh - low) / highestHigh * 100 with a
// trailing window of period bars ending at each bar. The returned slice
// starts at the first fully-populated window.
func extremeSeries(candles []models.Candle, period int) []float64 {
	highs := make([]float64, len(candles))
	for i, c := range candles {
		highs[i] = c.High
	}
	hh := talib.Max(highs, period)

	out := make([]float64, 0, len(candles)-period+1)
	for i := period - 1; i < len(candles); i++ {
		out = append(out, (hh[i]-candles[i].Low)/hh[i]*100)
	}
	return out
}

// classify maps the latest extreme value to a direction and strength.
func classify(value, upper, lower float64, params models.VolatilityParams) (string, float64) {
	bandRange := upper - lower

	switch {
	case value >= params.ThresholdLow:
		// Oversold: the deeper past the threshold, the stronger.
		excess := 1.0
		if params.ThresholdLow < 100 {
			excess = (value - params.ThresholdLow) / (100 - params.ThresholdLow)
		}
		strength := models.Clamp01(excess * 1.5)
		if value/100 > 0.8 {
			strength += 0.2
		}
		if value >= upper-0.2*bandRange {
			strength += 0.1
		}
		return models.DirectionBuy, models.Clamp01(strength)

	case value <= params.ThresholdHigh:
		excess := 1.0
		if params.ThresholdHigh > 0 {
			excess = (params.ThresholdHigh - value) / params.ThresholdHigh
		}
		strength := models.Clamp01(excess * 1.5)
		if value/100 < 0.2 {
			strength += 0.2
		}
		if value <= lower+0.2*bandRange {
			strength += 0.1
		}
		return models.DirectionSell, models.Clamp01(strength)
	}
	return "", 0
}
