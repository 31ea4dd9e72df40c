package backtest

import (
	"context"
	"fmt"
	"time"

	"TradePulse/internal/analysis"
	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	"TradePulse/pkg/logger"
)

const (
	// pauseEvery bounds the request rate against the candle source.
	pauseEvery      = 5
	defaultRunPause = 200 * time.Millisecond
)

// Runner executes single backtests and parameter sweeps.
type Runner struct {
	candles drepo.CandleSource
	results drepo.BacktestResultStore
	flow    *analysis.FlowAnalyzer
	vol     *analysis.VolatilityExtremeAnalyzer
	clock   drepo.Clock
	ids     drepo.IDGenerator
	metrics drepo.Metrics
	l       *logger.Logger

	runPause time.Duration
}

// NewRunner wires the backtest runner with its collaborators.
func NewRunner(candles drepo.CandleSource, results drepo.BacktestResultStore, flow *analysis.FlowAnalyzer, vol *analysis.VolatilityExtremeAnalyzer, clock drepo.Clock, ids drepo.IDGenerator, metrics drepo.Metrics, l *logger.Logger) *Runner {
	return &Runner{
		candles:  candles,
		results:  results,
		flow:     flow,
		vol:      vol,
		clock:    clock,
		ids:      ids,
		metrics:  metrics,
		l:        l,
		runPause: defaultRunPause,
	}
}

// Run executes one backtest. When candles is nil the configured candle
// source supplies history for [StartDate, EndDate]. The result is saved
// before returning; a save failure is logged but does not discard the
// in-memory result.
func (r *Runner) Run(ctx context.Context, params models.BacktestParams, candles []models.Candle) (*models.BacktestResult, error) {
	start := r.clock.Now()
	if err := params.Validate(); err != nil {
		return nil, err
	}

	if candles == nil {
		var err error
		candles, err = r.fetchCandles(ctx, params)
		if err != nil {
			return nil, err
		}
	}

	analyzer, err := NewBarAnalyzer(params, r.flow, r.vol)
	if err != nil {
		return nil, err
	}

	sim := NewSimulator(params, analyzer, r.clock, r.ids, r.l)
	res, err := sim.Run(ctx, candles)
	if err != nil {
		r.metrics.RecordError("backtest")
		return nil, err
	}
	r.metrics.RecordBacktest(params.Algorithm, r.clock.Now().Sub(start))

	if r.results != nil {
		if _, err := r.results.Save(ctx, res); err != nil {
			r.metrics.RecordError("backtest_save")
			r.l.Error("backtest result save failed",
				logger.String("symbol", params.Symbol),
				logger.Error(err),
			)
		}
	}
	return res, nil
}

// RunBatch expands the sweep grid and runs each combination in order.
// Failed combinations are logged and skipped. Cancellation is honored
// between combinations, never mid-run.
func (r *Runner) RunBatch(ctx context.Context, sweep models.SweepParams, candles []models.Candle) ([]models.BacktestResult, error) {
	algorithms := sweep.Algorithms
	if len(algorithms) == 0 {
		algorithms = []string{sweep.Base.Algorithm}
	}

	if candles == nil {
		var err error
		candles, err = r.fetchCandles(ctx, sweep.Base)
		if err != nil {
			return nil, err
		}
	}

	var out []models.BacktestResult
	run := 0
	for _, algo := range algorithms {
		g := sweepGrid(sweep)
		for {
			combo, ok := g.Next()
			if !ok {
				break
			}
			if err := ctx.Err(); err != nil {
				return out, err
			}

			run++
			if run%pauseEvery == 0 {
				select {
				case <-time.After(r.runPause):
				case <-ctx.Done():
					return out, ctx.Err()
				}
			}

			params := applyCombo(sweep.Base, algo, combo)
			res, err := r.Run(ctx, params, candles)
			if err != nil {
				r.l.Warn("sweep combination failed",
					logger.String("algorithm", algo),
					logger.Int("run", run),
					logger.Error(err),
				)
				continue
			}
			out = append(out, *res)
		}
	}
	return out, nil
}

// Best picks the highest total return. Ties keep the first-seen result:
// a later combination replaces the incumbent only when strictly better.
func Best(results []models.BacktestResult) *models.BacktestResult {
	if len(results) == 0 {
		return nil
	}
	best := &results[0]
	for i := 1; i < len(results); i++ {
		if results[i].TotalReturn > best.TotalReturn {
			best = &results[i]
		}
	}
	return best
}

func (r *Runner) fetchCandles(ctx context.Context, params models.BacktestParams) ([]models.Candle, error) {
	if r.candles == nil {
		return nil, fmt.Errorf("%w: no candle source configured", models.ErrUpstreamFetch)
	}
	interval := drepo.NormalizeInterval(params.Interval)
	cs, err := r.candles.Candles(ctx, params.Symbol, interval, params.StartDate, params.EndDate, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: candles for %s: %v", models.ErrUpstreamFetch, params.Symbol, err)
	}
	return cs, nil
}
