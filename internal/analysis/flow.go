package analysis

import (
	"context"
	"fmt"
	"math"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
)

// VolumeAverager supplies the historical average daily volume used as the
// flow analyzer's surge baseline.
type VolumeAverager interface {
	AverageVolume(ctx context.Context, symbol string, windowHours int) (float64, error)
}

// FlowAnalyzer scores instruments that fell hard on surging volume while
// trading near the bottom of their 24h range. It is stateless per call;
// the only external input is the injected volume baseline.
type FlowAnalyzer struct {
	volumes VolumeAverager
	clock   drepo.Clock
	ids     drepo.IDGenerator
}

// NewFlowAnalyzer builds a flow analyzer with its collaborators.
func NewFlowAnalyzer(volumes VolumeAverager, clock drepo.Clock, ids drepo.IDGenerator) *FlowAnalyzer {
	return &FlowAnalyzer{volumes: volumes, clock: clock, ids: ids}
}

// Name returns the stored algorithm identifier.
func (a *FlowAnalyzer) Name() string { return models.AlgorithmFlow }

// Analyze fetches the volume baseline and scores the snapshot. A nil
// signal with nil error means the instrument did not qualify.
func (a *FlowAnalyzer) Analyze(ctx context.Context, inst models.Instrument, snap models.MarketSnapshot, params models.FlowParams) (*models.Signal, error) {
	if snap.PercentChange24h > params.PriceChangeThreshold {
		return nil, nil
	}
	if snap.Volume24h <= 0 || snap.Price <= 0 {
		return nil, nil
	}

	avg, err := a.volumes.AverageVolume(ctx, inst.Symbol, params.LookbackHours)
	if err != nil {
		return nil, fmt.Errorf("%w: average volume for %s: %v", models.ErrUpstreamFetch, inst.Symbol, err)
	}

	return a.Score(inst, snap, avg, params), nil
}

// Score is the pure scoring core: snapshot plus a precomputed volume
// baseline. Backtests call it directly with window-derived inputs.
func (a *FlowAnalyzer) Score(inst models.Instrument, snap models.MarketSnapshot, avgVolume float64, params models.FlowParams) *models.Signal {
	if snap.PercentChange24h > params.PriceChangeThreshold {
		return nil
	}
	if snap.Volume24h <= 0 || snap.Price <= 0 {
		return nil
	}

	var score float64

	volumeRatio := 0.0
	if avgVolume > 0 {
		volumeRatio = snap.Volume24h / avgVolume
	}
	if volumeRatio >= params.MinVolumeRatio {
		score += math.Min(40, (volumeRatio-params.MinVolumeRatio)*20)
	}

	// Position of the last price inside the 24h range; only the bottom
	// 30% contributes.
	pricePosition := 1.0
	if snap.High24h > snap.Low24h {
		pricePosition = (snap.Price - snap.Low24h) / (snap.High24h - snap.Low24h)
	}
	if pricePosition <= 0.3 {
		score += (1 - pricePosition/0.3) * 30
	}

	if snap.PercentChange24h < 0 {
		score += math.Min(30, math.Abs(snap.PercentChange24h)*100)
	}

	strength := score / 100
	switch {
	case snap.Volume24h >= 2*params.VolumeThreshold:
		strength += 0.2
	case snap.Volume24h >= params.VolumeThreshold:
		strength += 0.1
	}
	if pricePosition <= 0.2 {
		strength += 0.15
	}
	strength = models.Clamp01(strength)

	if strength < 0.5 {
		return nil
	}

	now := a.clock.Now()
	return &models.Signal{
		ID:         a.ids.NewID(),
		Symbol:     inst.Symbol,
		Algorithm:  models.AlgorithmFlow,
		Direction:  models.DirectionBuy,
		Strength:   strength,
		Confidence: models.ConfidenceFor(strength),
		Price:      snap.Price,
		Metadata: map[string]float64{
			"score":          score,
			"volume_ratio":   volumeRatio,
			"price_position": pricePosition,
			"percent_change": snap.PercentChange24h,
		},
		Status:    models.SignalStatusActive,
		CreatedAt: now,
		ExpiresAt: now.Add(models.SignalTTL),
	}
}
