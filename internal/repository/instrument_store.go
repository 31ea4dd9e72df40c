package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
)

// InstrumentSchema creates the instruments table.
var InstrumentSchema = []string{
	`CREATE TABLE IF NOT EXISTS instruments (
		symbol      TEXT PRIMARY KEY,
		base_asset  TEXT NOT NULL,
		quote_asset TEXT NOT NULL,
		active      BOOLEAN NOT NULL DEFAULT TRUE,
		volume_24h  DOUBLE PRECISION NOT NULL DEFAULT 0
	)`,
}

// InstrumentStore reads tracked instruments from Postgres.
type InstrumentStore struct {
	db *sqlx.DB
}

// NewInstrumentStore wraps a Postgres connection pool.
func NewInstrumentStore(db *sqlx.DB) *InstrumentStore {
	return &InstrumentStore{db: db}
}

var _ drepo.InstrumentRepository = (*InstrumentStore)(nil)

// ListActive returns active instruments ordered by 24h volume descending.
func (s *InstrumentStore) ListActive(ctx context.Context, limit int) ([]models.Instrument, error) {
	if limit <= 0 {
		limit = 200
	}
	var out []models.Instrument
	q := `SELECT symbol, base_asset, quote_asset, active
		FROM instruments
		WHERE active
		ORDER BY volume_24h DESC
		LIMIT $1`
	if err := s.db.SelectContext(ctx, &out, q, limit); err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	return out, nil
}

// Upsert inserts or refreshes one instrument row. The 24h volume drives
// the ListActive ordering and is updated by the market stream.
func (s *InstrumentStore) Upsert(ctx context.Context, inst models.Instrument, volume24h float64) error {
	q := `INSERT INTO instruments (symbol, base_asset, quote_asset, active, volume_24h)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (symbol) DO UPDATE
		SET active = EXCLUDED.active, volume_24h = EXCLUDED.volume_24h`
	if _, err := s.db.ExecContext(ctx, q, inst.Symbol, inst.BaseAsset, inst.QuoteAsset, inst.Active, volume24h); err != nil {
		return fmt.Errorf("upsert instrument %s: %w", inst.Symbol, err)
	}
	return nil
}
