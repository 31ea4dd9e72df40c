package backtest

import (
	"context"
	"errors"
	"testing"
	"time"

	"TradePulse/internal/analysis"
	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	"TradePulse/pkg/logger"
)

type fakeCandleSource struct {
	candles []models.Candle
	avg     float64
	err     error
}

func (f *fakeCandleSource) Candles(context.Context, string, drepo.Interval, time.Time, time.Time, int) ([]models.Candle, error) {
	return f.candles, f.err
}

func (f *fakeCandleSource) AverageVolume(context.Context, string, int) (float64, error) {
	return f.avg, nil
}

type fakeResultStore struct {
	saved []models.BacktestResult
	err   error
}

func (f *fakeResultStore) Save(_ context.Context, r *models.BacktestResult) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.saved = append(f.saved, *r)
	return r.ID, nil
}

func (f *fakeResultStore) List(context.Context, drepo.ResultFilter) ([]models.BacktestResult, int64, error) {
	return f.saved, int64(len(f.saved)), nil
}

func (f *fakeResultStore) Get(context.Context, string) (*models.BacktestResult, error) {
	return nil, models.ErrNotFound
}

func (f *fakeResultStore) Delete(context.Context, string) error { return nil }

type countMetrics struct {
	backtests int
	errs      map[string]int
}

func (m *countMetrics) RecordScan(time.Duration)             {}
func (m *countMetrics) RecordScanSkipped()                   {}
func (m *countMetrics) RecordSignal(string, string)          {}
func (m *countMetrics) RecordSignalDeduped(string)           {}
func (m *countMetrics) RecordBacktest(string, time.Duration) { m.backtests++ }
func (m *countMetrics) RecordError(kind string) {
	if m.errs == nil {
		m.errs = map[string]int{}
	}
	m.errs[kind]++
}

func newRunnerForTest(candles drepo.CandleSource, results drepo.BacktestResultStore, m drepo.Metrics) *Runner {
	clock := fixedClock{t: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)}
	ids := &seqIDs{}
	flow := analysis.NewFlowAnalyzer(candles, clock, ids)
	vol := analysis.NewVolatilityExtremeAnalyzer(clock, ids)
	r := NewRunner(candles, results, flow, vol, clock, ids, m, logger.Nop())
	r.runPause = time.Millisecond
	return r
}

func TestRunnerRunPersistsResult(t *testing.T) {
	store := &fakeResultStore{}
	m := &countMetrics{}
	r := newRunnerForTest(&fakeCandleSource{avg: 1000}, store, m)

	res, err := r.Run(context.Background(), simParams(), bars(repeat(100, 60)...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.saved) != 1 || store.saved[0].ID != res.ID {
		t.Fatalf("result not persisted: %+v", store.saved)
	}
	if m.backtests != 1 {
		t.Fatalf("backtest metric = %d, want 1", m.backtests)
	}
}

func TestRunnerRunFetchesWhenNoCandles(t *testing.T) {
	src := &fakeCandleSource{candles: bars(repeat(100, 60)...), avg: 1000}
	r := newRunnerForTest(src, &fakeResultStore{}, &countMetrics{})

	if _, err := r.Run(context.Background(), simParams(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunnerRunWrapsFetchError(t *testing.T) {
	src := &fakeCandleSource{err: errors.New("clickhouse down")}
	r := newRunnerForTest(src, &fakeResultStore{}, &countMetrics{})

	_, err := r.Run(context.Background(), simParams(), nil)
	if !errors.Is(err, models.ErrUpstreamFetch) {
		t.Fatalf("err = %v, want ErrUpstreamFetch", err)
	}
}

func TestRunnerRunSurvivesSaveFailure(t *testing.T) {
	store := &fakeResultStore{err: errors.New("pg down")}
	m := &countMetrics{}
	r := newRunnerForTest(&fakeCandleSource{avg: 1000}, store, m)

	res, err := r.Run(context.Background(), simParams(), bars(repeat(100, 60)...))
	if err != nil || res == nil {
		t.Fatalf("save failure must not discard the result: %v", err)
	}
	if m.errs["backtest_save"] != 1 {
		t.Fatalf("save error not recorded: %v", m.errs)
	}
}

func TestRunnerBatchSkipsFailedCombos(t *testing.T) {
	store := &fakeResultStore{}
	r := newRunnerForTest(&fakeCandleSource{avg: 1000}, store, &countMetrics{})

	sweep := models.SweepParams{
		Base:     simParams(),
		StopLoss: &models.Range{Min: 0.02, Max: 0.04, Step: 0.02},
		// 1.5 is out of (0,1] and fails validation; those combos are skipped.
		PositionSize: &models.Range{Min: 0.5, Max: 1.5, Step: 1.0},
	}
	results, err := r.RunBatch(context.Background(), sweep, bars(repeat(100, 60)...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2 valid combos of 4", len(results))
	}
	for _, res := range results {
		if res.Params.PositionSize != 0.5 {
			t.Fatalf("invalid combo leaked through: %+v", res.Params)
		}
	}
}

func TestRunnerBatchHonorsCancellation(t *testing.T) {
	r := newRunnerForTest(&fakeCandleSource{avg: 1000}, &fakeResultStore{}, &countMetrics{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.RunBatch(ctx, models.SweepParams{Base: simParams()}, bars(repeat(100, 60)...))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestBestFirstSeenWins(t *testing.T) {
	if Best(nil) != nil {
		t.Fatalf("empty input must yield nil")
	}
	results := []models.BacktestResult{
		{ID: "a", TotalReturn: 0.1},
		{ID: "b", TotalReturn: 0.2},
		{ID: "c", TotalReturn: 0.2},
	}
	if best := Best(results); best.ID != "b" {
		t.Fatalf("best = %s, want first-seen b", best.ID)
	}
}
