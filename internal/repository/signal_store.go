package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
)

// SignalSchema creates the signals table.
var SignalSchema = []string{
	`CREATE TABLE IF NOT EXISTS signals (
		id         TEXT PRIMARY KEY,
		symbol     TEXT NOT NULL,
		algorithm  TEXT NOT NULL,
		direction  TEXT NOT NULL,
		strength   DOUBLE PRECISION NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		price      DOUBLE PRECISION NOT NULL,
		metadata   JSONB,
		status     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS signals_dedup_idx
		ON signals (symbol, algorithm, direction, created_at)`,
}

// SignalStore persists signals in Postgres.
type SignalStore struct {
	db *sqlx.DB
}

// NewSignalStore wraps a Postgres connection pool.
func NewSignalStore(db *sqlx.DB) *SignalStore {
	return &SignalStore{db: db}
}

var _ drepo.SignalStore = (*SignalStore)(nil)

// Insert writes a batch of signals in one transaction.
func (s *SignalStore) Insert(ctx context.Context, signals []models.Signal) error {
	if len(signals) == 0 {
		return nil
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert signals: %w", err)
	}
	defer tx.Rollback()

	q := `INSERT INTO signals
		(id, symbol, algorithm, direction, strength, confidence, price, metadata, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	for _, sig := range signals {
		meta, err := json.Marshal(sig.Metadata)
		if err != nil {
			return fmt.Errorf("marshal signal metadata: %w", err)
		}
		if _, err := tx.ExecContext(ctx, q,
			sig.ID, sig.Symbol, sig.Algorithm, sig.Direction,
			sig.Strength, sig.Confidence, sig.Price, meta,
			sig.Status, sig.CreatedAt, sig.ExpiresAt,
		); err != nil {
			return fmt.Errorf("insert signal %s: %w", sig.ID, err)
		}
	}
	return tx.Commit()
}

// HasRecent reports whether an active signal with the same
// symbol/algorithm/direction exists at or after since.
func (s *SignalStore) HasRecent(ctx context.Context, symbol, algorithm, direction string, since time.Time) (bool, error) {
	var exists bool
	q := `SELECT EXISTS (
		SELECT 1 FROM signals
		WHERE symbol = $1 AND algorithm = $2 AND direction = $3
			AND status = $4 AND created_at >= $5
	)`
	if err := s.db.GetContext(ctx, &exists, q, symbol, algorithm, direction, models.SignalStatusActive, since); err != nil {
		return false, fmt.Errorf("check recent signal: %w", err)
	}
	return exists, nil
}

// MarkExpired flips active signals created before cutoff to expired.
func (s *SignalStore) MarkExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	q := `UPDATE signals SET status = $1
		WHERE status = $2 AND created_at < $3`
	res, err := s.db.ExecContext(ctx, q, models.SignalStatusExpired, models.SignalStatusActive, cutoff)
	if err != nil {
		return 0, fmt.Errorf("mark signals expired: %w", err)
	}
	return res.RowsAffected()
}

// Recent returns the newest signals, optionally filtered by symbol.
func (s *SignalStore) Recent(ctx context.Context, symbol string, limit int) ([]models.Signal, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, symbol, algorithm, direction, strength, confidence, price, metadata, status, created_at, expires_at
		FROM signals`
	args := []any{}
	if symbol != "" {
		q += ` WHERE symbol = $1`
		args = append(args, symbol)
	}
	q += fmt.Sprintf(` ORDER BY created_at DESC LIMIT %d`, limit)

	rows, err := s.db.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent signals: %w", err)
	}
	defer rows.Close()

	var out []models.Signal
	for rows.Next() {
		var (
			sig  models.Signal
			meta []byte
		)
		if err := rows.Scan(&sig.ID, &sig.Symbol, &sig.Algorithm, &sig.Direction,
			&sig.Strength, &sig.Confidence, &sig.Price, &meta,
			&sig.Status, &sig.CreatedAt, &sig.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &sig.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal signal metadata: %w", err)
			}
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}
