package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
)

// CandleSchema creates the ClickHouse candle table. Applied on startup via
// the client's InitSchema.
var CandleSchema = []string{
	`CREATE TABLE IF NOT EXISTS md_candles (
		symbol    LowCardinality(String),
		interval  LowCardinality(String),
		open_time DateTime,
		open      Float64,
		high      Float64,
		low       Float64,
		close     Float64,
		volume    Float64
	) ENGINE = ReplacingMergeTree
	ORDER BY (symbol, interval, open_time)`,
}

// CandleStore reads and appends OHLCV history in ClickHouse.
type CandleStore struct {
	db *sql.DB
}

// NewCandleStore wraps a ClickHouse connection pool.
func NewCandleStore(db *sql.DB) *CandleStore {
	return &CandleStore{db: db}
}

var _ drepo.CandleSource = (*CandleStore)(nil)

// Candles returns bars ordered ascending by open time. The ReplacingMergeTree
// key deduplicates by open time; FINAL forces the merge at read time.
func (s *CandleStore) Candles(ctx context.Context, symbol string, interval drepo.Interval, from, to time.Time, limit int) ([]models.Candle, error) {
	q := `SELECT symbol, open_time, open, high, low, close, volume
		FROM md_candles FINAL
		WHERE symbol = ? AND interval = ? AND open_time >= ? AND open_time <= ?
		ORDER BY open_time ASC`
	args := []any{symbol, string(interval), from, to}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query candles: %w", err)
	}
	defer rows.Close()

	var out []models.Candle
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Symbol, &c.OpenTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AverageVolume returns the mean daily volume over the trailing window,
// computed from hourly bars so partial days weigh proportionally.
func (s *CandleStore) AverageVolume(ctx context.Context, symbol string, windowHours int) (float64, error) {
	if windowHours <= 0 {
		windowHours = 24
	}
	q := `SELECT sum(volume) FROM md_candles FINAL
		WHERE symbol = ? AND interval = '1h' AND open_time >= now() - INTERVAL ? HOUR`

	var total sql.NullFloat64
	if err := s.db.QueryRowContext(ctx, q, symbol, windowHours).Scan(&total); err != nil {
		return 0, fmt.Errorf("query average volume: %w", err)
	}
	if !total.Valid {
		return 0, nil
	}
	days := float64(windowHours) / 24
	return total.Float64 / days, nil
}

// InsertBatch appends candles in one multi-row statement.
func (s *CandleStore) InsertBatch(ctx context.Context, interval drepo.Interval, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}
	q := "INSERT INTO md_candles (symbol, interval, open_time, open, high, low, close, volume) VALUES "
	args := make([]any, 0, len(candles)*8)
	for i, c := range candles {
		if i > 0 {
			q += ","
		}
		q += "(?, ?, ?, ?, ?, ?, ?, ?)"
		args = append(args, c.Symbol, string(interval), c.OpenTime, c.Open, c.High, c.Low, c.Close, c.Volume)
	}
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert candles: %w", err)
	}
	return nil
}
