package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"TradePulse/internal/analysis"
	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	"TradePulse/pkg/logger"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type seqIDs struct{ n int }

func (g *seqIDs) NewID() string {
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

type fakeInstruments struct {
	list []models.Instrument
	err  error
}

func (f *fakeInstruments) ListActive(context.Context, int) ([]models.Instrument, error) {
	return f.list, f.err
}

type fakeSnapshots struct {
	snap models.MarketSnapshot
	err  error
}

func (f *fakeSnapshots) Snapshot(_ context.Context, symbol string) (models.MarketSnapshot, error) {
	s := f.snap
	s.Symbol = symbol
	return s, f.err
}

type fakeCandles struct {
	mu      sync.Mutex
	candles []models.Candle
	avg     float64
	err     error
	calls   int
}

func (f *fakeCandles) Candles(context.Context, string, drepo.Interval, time.Time, time.Time, int) ([]models.Candle, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.candles, f.err
}

func (f *fakeCandles) AverageVolume(context.Context, string, int) (float64, error) {
	return f.avg, nil
}

type fakeSignalStore struct {
	mu        sync.Mutex
	inserted  []models.Signal
	insertErr error
	hasRecent bool
	recentErr error
	expired   int64
	cutoff    time.Time
}

func (f *fakeSignalStore) Insert(_ context.Context, sigs []models.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, sigs...)
	return nil
}

func (f *fakeSignalStore) HasRecent(_ context.Context, _, _, _ string, _ time.Time) (bool, error) {
	return f.hasRecent, f.recentErr
}

func (f *fakeSignalStore) MarkExpired(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoff = cutoff
	return f.expired, nil
}

func (f *fakeSignalStore) Recent(context.Context, string, int) ([]models.Signal, error) {
	return nil, nil
}

type fakeSink struct {
	mu        sync.Mutex
	published []models.Signal
	err       error
}

func (f *fakeSink) Publish(_ context.Context, sigs []models.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, sigs...)
	return f.err
}

func (f *fakeSink) Close() error { return nil }

type countMetrics struct {
	mu      sync.Mutex
	scans   int
	skipped int
	signals int
	deduped int
	errs    map[string]int
}

func (m *countMetrics) RecordScan(time.Duration) { m.mu.Lock(); m.scans++; m.mu.Unlock() }
func (m *countMetrics) RecordScanSkipped()       { m.mu.Lock(); m.skipped++; m.mu.Unlock() }
func (m *countMetrics) RecordSignal(string, string) {
	m.mu.Lock()
	m.signals++
	m.mu.Unlock()
}
func (m *countMetrics) RecordSignalDeduped(string) { m.mu.Lock(); m.deduped++; m.mu.Unlock() }
func (m *countMetrics) RecordBacktest(string, time.Duration) {}
func (m *countMetrics) RecordError(kind string) {
	m.mu.Lock()
	if m.errs == nil {
		m.errs = map[string]int{}
	}
	m.errs[kind]++
	m.mu.Unlock()
}

type engineFixture struct {
	engine  *Engine
	store   *fakeSignalStore
	sink    *fakeSink
	candles *fakeCandles
	metrics *countMetrics
}

// qualifyingSnapshot trips the flow analyzer with the fixture's volume
// baseline of 600k.
func qualifyingSnapshot() models.MarketSnapshot {
	return models.MarketSnapshot{
		Price:            96,
		Low24h:           95,
		High24h:          105,
		Volume24h:        1_200_000,
		PercentChange24h: -0.04,
	}
}

func newFixture(insts *fakeInstruments, snaps *fakeSnapshots, candles *fakeCandles) *engineFixture {
	clock := fixedClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	ids := &seqIDs{}
	store := &fakeSignalStore{}
	sink := &fakeSink{}
	m := &countMetrics{}

	cfg := DefaultConfig()
	cfg.ScanInterval = time.Hour
	cfg.SweepInterval = time.Hour
	cfg.BatchDelay = 0
	cfg.FetchRetries = 2
	cfg.FetchBackoff = time.Millisecond

	e := NewEngine(cfg, insts, snaps, candles, store, sink,
		analysis.NewFlowAnalyzer(candles, clock, ids),
		analysis.NewVolatilityExtremeAnalyzer(clock, ids),
		models.DefaultFlowParams(), models.DefaultVolatilityParams(),
		clock, m, logger.Nop(),
	)
	return &engineFixture{engine: e, store: store, sink: sink, candles: candles, metrics: m}
}

func TestScanOncePersistsAndPublishes(t *testing.T) {
	fx := newFixture(
		&fakeInstruments{list: []models.Instrument{{Symbol: "BTCUSDT", Active: true}}},
		&fakeSnapshots{snap: qualifyingSnapshot()},
		&fakeCandles{avg: 600_000},
	)

	sigs, err := fx.engine.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sigs) != 1 || sigs[0].Symbol != "BTCUSDT" {
		t.Fatalf("signals = %+v, want one for BTCUSDT", sigs)
	}
	if len(fx.store.inserted) != 1 || fx.store.inserted[0].Symbol != "BTCUSDT" {
		t.Fatalf("inserted = %+v", fx.store.inserted)
	}
	if len(fx.sink.published) != 1 {
		t.Fatalf("published = %d, want 1", len(fx.sink.published))
	}
	if fx.metrics.signals != 1 {
		t.Fatalf("signal metric = %d", fx.metrics.signals)
	}
}

func TestScanOnceDeduplicates(t *testing.T) {
	fx := newFixture(
		&fakeInstruments{list: []models.Instrument{{Symbol: "BTCUSDT", Active: true}}},
		&fakeSnapshots{snap: qualifyingSnapshot()},
		&fakeCandles{avg: 600_000},
	)
	fx.store.hasRecent = true

	sigs, err := fx.engine.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sigs) != 0 || len(fx.store.inserted) != 0 {
		t.Fatalf("duplicate signal persisted: returned=%d inserted=%d", len(sigs), len(fx.store.inserted))
	}
	if fx.metrics.deduped != 1 {
		t.Fatalf("dedup metric = %d, want 1", fx.metrics.deduped)
	}
}

func TestScanOnceKeepsSignalOnDedupError(t *testing.T) {
	fx := newFixture(
		&fakeInstruments{list: []models.Instrument{{Symbol: "BTCUSDT", Active: true}}},
		&fakeSnapshots{snap: qualifyingSnapshot()},
		&fakeCandles{avg: 600_000},
	)
	fx.store.recentErr = errors.New("pg timeout")

	sigs, err := fx.engine.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("signal dropped on dedup store error: returned=%d", len(sigs))
	}
}

func TestScanOncePublishesWhenInsertFails(t *testing.T) {
	fx := newFixture(
		&fakeInstruments{list: []models.Instrument{{Symbol: "BTCUSDT", Active: true}}},
		&fakeSnapshots{snap: qualifyingSnapshot()},
		&fakeCandles{avg: 600_000},
	)
	fx.store.insertErr = errors.New("pg down")

	sigs, err := fx.engine.ScanOnce(context.Background())
	if err != nil {
		t.Fatalf("insert failure must not abort the cycle: %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("signals lost on insert failure: returned=%d", len(sigs))
	}
	if len(fx.sink.published) != 1 {
		t.Fatalf("published = %d, want 1", len(fx.sink.published))
	}
	if fx.metrics.errs["signal_insert"] != 1 {
		t.Fatalf("insert error metric = %d, want 1", fx.metrics.errs["signal_insert"])
	}
}

func TestScanOnceExplicitInstruments(t *testing.T) {
	fx := newFixture(
		&fakeInstruments{err: errors.New("listing must not run")},
		&fakeSnapshots{snap: qualifyingSnapshot()},
		&fakeCandles{avg: 600_000},
	)

	sigs, err := fx.engine.ScanOnce(context.Background(), models.Instrument{Symbol: "ETHUSDT", Active: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sigs) != 1 || sigs[0].Symbol != "ETHUSDT" {
		t.Fatalf("signals = %+v, want one for ETHUSDT", sigs)
	}
}

func TestScanOnceListFailureAborts(t *testing.T) {
	fx := newFixture(
		&fakeInstruments{err: errors.New("pg down")},
		&fakeSnapshots{snap: qualifyingSnapshot()},
		&fakeCandles{avg: 600_000},
	)
	if _, err := fx.engine.ScanOnce(context.Background()); err == nil {
		t.Fatalf("expected listing failure to abort the cycle")
	}
}

func TestTriggerSkipsOverlappingCycle(t *testing.T) {
	fx := newFixture(
		&fakeInstruments{list: []models.Instrument{{Symbol: "BTCUSDT", Active: true}}},
		&fakeSnapshots{snap: qualifyingSnapshot()},
		&fakeCandles{avg: 600_000},
	)

	fx.engine.inFlight.Store(true)
	fx.engine.Trigger(context.Background())
	if fx.metrics.skipped != 1 {
		t.Fatalf("skipped metric = %d, want 1", fx.metrics.skipped)
	}
	if len(fx.store.inserted) != 0 {
		t.Fatalf("overlapping trigger still scanned")
	}
}

func TestStartStopIdempotent(t *testing.T) {
	fx := newFixture(
		&fakeInstruments{},
		&fakeSnapshots{snap: qualifyingSnapshot()},
		&fakeCandles{avg: 600_000},
	)

	ctx := context.Background()
	fx.engine.Start(ctx)
	fx.engine.Start(ctx)
	fx.engine.Stop()
	fx.engine.Stop()

	// Restart after a full stop must work.
	fx.engine.Start(ctx)
	fx.engine.Stop()
}

func TestExpireStaleCutoff(t *testing.T) {
	fx := newFixture(
		&fakeInstruments{},
		&fakeSnapshots{snap: qualifyingSnapshot()},
		&fakeCandles{avg: 600_000},
	)
	fx.store.expired = 2

	fx.engine.expireStale(context.Background())
	want := fx.engine.clock.Now().Add(-models.SignalTTL)
	if !fx.store.cutoff.Equal(want) {
		t.Fatalf("cutoff = %v, want %v", fx.store.cutoff, want)
	}
}

func TestFetchCandlesRetries(t *testing.T) {
	candles := &fakeCandles{err: errors.New("clickhouse timeout")}
	fx := newFixture(
		&fakeInstruments{list: []models.Instrument{{Symbol: "BTCUSDT", Active: true}}},
		&fakeSnapshots{snap: qualifyingSnapshot()},
		candles,
	)

	if _, err := fx.engine.fetchCandles(context.Background(), "BTCUSDT"); err == nil {
		t.Fatalf("expected error after exhausted retries")
	}
	if candles.calls != 2 {
		t.Fatalf("candle fetch attempts = %d, want 2", candles.calls)
	}
}
