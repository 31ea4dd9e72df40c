package repository

import (
	"context"
	"time"

	"TradePulse/internal/domain/models"
)

// InstrumentRepository lists tracked instruments.
type InstrumentRepository interface {
	// ListActive returns active instruments ordered by 24h volume
	// descending, capped at limit.
	ListActive(ctx context.Context, limit int) ([]models.Instrument, error)
}

// SnapshotSource supplies current 24h market snapshots.
type SnapshotSource interface {
	Snapshot(ctx context.Context, symbol string) (models.MarketSnapshot, error)
}

// CandleSource returns OHLCV history ordered ascending by open time,
// deduplicated by open time.
type CandleSource interface {
	Candles(ctx context.Context, symbol string, interval Interval, from, to time.Time, limit int) ([]models.Candle, error)
	// AverageVolume returns the mean daily volume over the trailing
	// window, in the instrument's quote units.
	AverageVolume(ctx context.Context, symbol string, windowHours int) (float64, error)
}

// SignalStore persists and queries trading signals.
type SignalStore interface {
	Insert(ctx context.Context, signals []models.Signal) error
	// HasRecent reports whether an active signal with the same
	// symbol/algorithm/direction exists at or after since.
	HasRecent(ctx context.Context, symbol, algorithm, direction string, since time.Time) (bool, error)
	// MarkExpired flips signals created before cutoff to expired and
	// returns how many rows changed.
	MarkExpired(ctx context.Context, cutoff time.Time) (int64, error)
	Recent(ctx context.Context, symbol string, limit int) ([]models.Signal, error)
}

// NotificationSink fans persisted signals out to subscribers.
// Publish is fire-and-forget: failures must not abort a scan.
type NotificationSink interface {
	Publish(ctx context.Context, signals []models.Signal) error
	Close() error
}

// ResultFilter narrows backtest result listings.
type ResultFilter struct {
	Symbol    string
	Algorithm string
	Limit     int
	Offset    int
}

// BacktestResultStore persists completed backtest results.
type BacktestResultStore interface {
	Save(ctx context.Context, result *models.BacktestResult) (string, error)
	List(ctx context.Context, filter ResultFilter) ([]models.BacktestResult, int64, error)
	Get(ctx context.Context, id string) (*models.BacktestResult, error)
	Delete(ctx context.Context, id string) error
}

// Metrics records operational counters for the engine.
type Metrics interface {
	RecordScan(duration time.Duration)
	RecordScanSkipped()
	RecordSignal(algorithm, direction string)
	RecordSignalDeduped(algorithm string)
	RecordBacktest(algorithm string, duration time.Duration)
	RecordError(kind string)
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints identifiers for signals and results.
type IDGenerator interface {
	NewID() string
}
