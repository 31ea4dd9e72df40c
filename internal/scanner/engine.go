package scanner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"TradePulse/internal/analysis"
	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	"TradePulse/pkg/logger"
)

// Config tunes the scan schedule and batching.
type Config struct {
	ScanInterval   time.Duration `yaml:"scan_interval"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	BatchSize      int           `yaml:"batch_size"`
	BatchDelay     time.Duration `yaml:"batch_delay"`
	MaxInstruments int           `yaml:"max_instruments"`
	Concurrency    int           `yaml:"concurrency"`
	FetchRetries   int           `yaml:"fetch_retries"`
	FetchBackoff   time.Duration `yaml:"fetch_backoff"`
}

// DefaultConfig returns the production scan schedule.
func DefaultConfig() Config {
	return Config{
		ScanInterval:   5 * time.Minute,
		SweepInterval:  10 * time.Minute,
		BatchSize:      10,
		BatchDelay:     2 * time.Second,
		MaxInstruments: 200,
		Concurrency:    5,
		FetchRetries:   3,
		FetchBackoff:   500 * time.Millisecond,
	}
}

func (c *Config) normalize() {
	if c.ScanInterval <= 0 {
		c.ScanInterval = 5 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 10 * time.Minute
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.MaxInstruments <= 0 {
		c.MaxInstruments = 200
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.FetchRetries <= 0 {
		c.FetchRetries = 1
	}
}

// Engine runs the periodic market scan: list instruments, analyze them in
// batches, deduplicate, persist, and publish. A second ticker expires stale
// signals. Start and Stop are idempotent.
type Engine struct {
	cfg         Config
	instruments drepo.InstrumentRepository
	snapshots   drepo.SnapshotSource
	candles     drepo.CandleSource
	store       drepo.SignalStore
	sink        drepo.NotificationSink
	flow        *analysis.FlowAnalyzer
	vol         *analysis.VolatilityExtremeAnalyzer
	flowParams  models.FlowParams
	volParams   models.VolatilityParams
	clock       drepo.Clock
	metrics     drepo.Metrics
	l           *logger.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	inFlight atomic.Bool
}

// NewEngine wires the scan engine. Analyzer parameters are fixed at
// construction and apply to every cycle.
func NewEngine(
	cfg Config,
	instruments drepo.InstrumentRepository,
	snapshots drepo.SnapshotSource,
	candles drepo.CandleSource,
	store drepo.SignalStore,
	sink drepo.NotificationSink,
	flow *analysis.FlowAnalyzer,
	vol *analysis.VolatilityExtremeAnalyzer,
	flowParams models.FlowParams,
	volParams models.VolatilityParams,
	clock drepo.Clock,
	metrics drepo.Metrics,
	l *logger.Logger,
) *Engine {
	cfg.normalize()
	return &Engine{
		cfg:         cfg,
		instruments: instruments,
		snapshots:   snapshots,
		candles:     candles,
		store:       store,
		sink:        sink,
		flow:        flow,
		vol:         vol,
		flowParams:  flowParams,
		volParams:   volParams,
		clock:       clock,
		metrics:     metrics,
		l:           l,
	}
}

// Start launches the scan and expiry tickers. Calling Start on a running
// engine is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cancel != nil {
		return
	}
	ctx, e.cancel = context.WithCancel(ctx)
	e.done = make(chan struct{})
	go e.run(ctx, e.done)
	e.l.Info("scanner started",
		logger.Duration("scan_interval", e.cfg.ScanInterval),
		logger.Int("batch_size", e.cfg.BatchSize),
	)
}

// Stop halts the tickers and waits for an in-flight cycle to finish.
// Calling Stop on a stopped engine is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel, done := e.cancel, e.done
	e.cancel, e.done = nil, nil
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	e.l.Info("scanner stopped")
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	scanTk := time.NewTicker(e.cfg.ScanInterval)
	sweepTk := time.NewTicker(e.cfg.SweepInterval)
	defer scanTk.Stop()
	defer sweepTk.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-scanTk.C:
			e.Trigger(ctx)
		case <-sweepTk.C:
			e.expireStale(ctx)
		}
	}
}

// Trigger runs one scan cycle immediately, bypassing the schedule. If a
// cycle is already running the tick is skipped, not queued.
func (e *Engine) Trigger(ctx context.Context) {
	if !e.inFlight.CompareAndSwap(false, true) {
		e.metrics.RecordScanSkipped()
		e.l.Warn("scan tick skipped, previous cycle still running")
		return
	}
	defer e.inFlight.Store(false)

	start := e.clock.Now()
	sigs, err := e.ScanOnce(ctx)
	if err != nil {
		e.metrics.RecordError("scan")
		e.l.Error("scan cycle failed", logger.Error(err))
		return
	}
	e.metrics.RecordScan(e.clock.Now().Sub(start))
	e.l.Info("scan cycle complete",
		logger.Int("signals", len(sigs)),
		logger.Duration("took", e.clock.Now().Sub(start)),
	)
}

// ScanOnce scans the given instruments, or every active instrument when
// none are passed, and returns the signals that survived deduplication.
// Per-instrument failures are logged and skipped, and a store failure on
// save is logged while the signals are still published and returned; only
// listing instruments or context cancellation fails the whole cycle.
func (e *Engine) ScanOnce(ctx context.Context, instruments ...models.Instrument) ([]models.Signal, error) {
	if len(instruments) == 0 {
		var err error
		instruments, err = e.instruments.ListActive(ctx, e.cfg.MaxInstruments)
		if err != nil {
			return nil, err
		}
	}

	var all []models.Signal
	for start := 0; start < len(instruments); start += e.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return all, err
		}
		end := start + e.cfg.BatchSize
		if end > len(instruments) {
			end = len(instruments)
		}
		all = append(all, e.scanBatch(ctx, instruments[start:end])...)

		if end < len(instruments) && e.cfg.BatchDelay > 0 {
			select {
			case <-time.After(e.cfg.BatchDelay):
			case <-ctx.Done():
				return all, ctx.Err()
			}
		}
	}

	fresh := e.dedup(ctx, all)
	if len(fresh) == 0 {
		return nil, nil
	}

	// A persistence failure must not swallow the cycle's output: the
	// signals still go to subscribers and to the caller.
	if err := e.store.Insert(ctx, fresh); err != nil {
		e.metrics.RecordError("signal_insert")
		e.l.Error("signal insert failed", logger.Int("signals", len(fresh)), logger.Error(err))
	}
	for _, s := range fresh {
		e.metrics.RecordSignal(s.Algorithm, s.Direction)
	}

	// Fan-out is best effort.
	if err := e.sink.Publish(ctx, fresh); err != nil {
		e.metrics.RecordError("notify")
		e.l.Warn("signal publish failed", logger.Error(err))
	}
	return fresh, nil
}

// scanBatch analyzes one batch of instruments in parallel. Analyzer calls
// are pure, so only the collector slice needs the mutex.
func (e *Engine) scanBatch(ctx context.Context, batch []models.Instrument) []models.Signal {
	var (
		mu  sync.Mutex
		out []models.Signal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)
	for _, inst := range batch {
		inst := inst
		g.Go(func() error {
			sigs := e.scanInstrument(gctx, inst)
			if len(sigs) > 0 {
				mu.Lock()
				out = append(out, sigs...)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Engine) scanInstrument(ctx context.Context, inst models.Instrument) []models.Signal {
	var sigs []models.Signal

	snap, err := e.fetchSnapshot(ctx, inst.Symbol)
	if err != nil {
		e.metrics.RecordError("snapshot")
		e.l.Warn("snapshot fetch failed", logger.String("symbol", inst.Symbol), logger.Error(err))
	} else {
		s, err := e.flow.Analyze(ctx, inst, snap, e.flowParams)
		if err != nil {
			e.metrics.RecordError("flow")
			e.l.Warn("flow analysis failed", logger.String("symbol", inst.Symbol), logger.Error(err))
		} else if s != nil {
			sigs = append(sigs, *s)
		}
	}

	candles, err := e.fetchCandles(ctx, inst.Symbol)
	if err != nil {
		e.metrics.RecordError("candles")
		e.l.Warn("candle fetch failed", logger.String("symbol", inst.Symbol), logger.Error(err))
		return sigs
	}
	s, err := e.vol.Analyze(inst, candles, e.volParams)
	if err != nil {
		e.l.Debug("volatility analysis skipped", logger.String("symbol", inst.Symbol), logger.Error(err))
	} else if s != nil {
		sigs = append(sigs, *s)
	}
	return sigs
}

// dedup drops signals that duplicate an active signal for the same
// symbol/algorithm/direction within the TTL window. A store error keeps
// the signal; duplicates are cheaper than silent loss.
func (e *Engine) dedup(ctx context.Context, sigs []models.Signal) []models.Signal {
	if len(sigs) == 0 {
		return nil
	}
	since := e.clock.Now().Add(-models.SignalTTL)
	fresh := sigs[:0]
	for _, s := range sigs {
		seen, err := e.store.HasRecent(ctx, s.Symbol, s.Algorithm, s.Direction, since)
		if err != nil {
			e.metrics.RecordError("dedup")
			e.l.Warn("dedup lookup failed", logger.String("symbol", s.Symbol), logger.Error(err))
			fresh = append(fresh, s)
			continue
		}
		if seen {
			e.metrics.RecordSignalDeduped(s.Algorithm)
			continue
		}
		fresh = append(fresh, s)
	}
	return fresh
}

func (e *Engine) expireStale(ctx context.Context) {
	cutoff := e.clock.Now().Add(-models.SignalTTL)
	n, err := e.store.MarkExpired(ctx, cutoff)
	if err != nil {
		e.metrics.RecordError("expire")
		e.l.Error("expiry sweep failed", logger.Error(err))
		return
	}
	if n > 0 {
		e.l.Info("signals expired", logger.Int64("count", n))
	}
}

func (e *Engine) fetchSnapshot(ctx context.Context, symbol string) (models.MarketSnapshot, error) {
	var (
		snap models.MarketSnapshot
		err  error
	)
	for attempt := 0; attempt < e.cfg.FetchRetries; attempt++ {
		if attempt > 0 {
			backoff := e.cfg.FetchBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return snap, ctx.Err()
			}
		}
		snap, err = e.snapshots.Snapshot(ctx, symbol)
		if err == nil {
			return snap, nil
		}
	}
	return snap, err
}

func (e *Engine) fetchCandles(ctx context.Context, symbol string) ([]models.Candle, error) {
	interval := drepo.DefaultInterval()
	need := e.volParams.Period + e.volParams.BandPeriod + e.volParams.SmoothingPeriod
	to := e.clock.Now()
	from := to.Add(-time.Duration(need*2) * interval.Duration())

	var (
		cs  []models.Candle
		err error
	)
	for attempt := 0; attempt < e.cfg.FetchRetries; attempt++ {
		if attempt > 0 {
			backoff := e.cfg.FetchBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		cs, err = e.candles.Candles(ctx, symbol, interval, from, to, need*2)
		if err == nil {
			return cs, nil
		}
	}
	return nil, err
}
