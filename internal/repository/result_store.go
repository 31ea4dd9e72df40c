package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
)

// ResultSchema creates the backtest results table. Nested series go to
// JSONB; scalar statistics stay as columns so listings can filter and sort
// without unpacking documents.
var ResultSchema = []string{
	`CREATE TABLE IF NOT EXISTS backtest_results (
		id              TEXT PRIMARY KEY,
		symbol          TEXT NOT NULL,
		algorithm       TEXT NOT NULL,
		params          JSONB NOT NULL,
		trades          JSONB NOT NULL,
		equity_curve    JSONB NOT NULL,
		monthly_returns JSONB NOT NULL,
		initial_capital DOUBLE PRECISION NOT NULL,
		final_capital   DOUBLE PRECISION NOT NULL,
		total_return    DOUBLE PRECISION NOT NULL,
		total_trades    INTEGER NOT NULL,
		win_rate        DOUBLE PRECISION NOT NULL,
		avg_win         DOUBLE PRECISION NOT NULL,
		avg_loss        DOUBLE PRECISION NOT NULL,
		profit_factor   DOUBLE PRECISION NOT NULL,
		largest_win     DOUBLE PRECISION NOT NULL,
		largest_loss    DOUBLE PRECISION NOT NULL,
		max_drawdown    DOUBLE PRECISION NOT NULL,
		sharpe_ratio    DOUBLE PRECISION NOT NULL,
		created_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS backtest_results_list_idx
		ON backtest_results (symbol, algorithm, created_at DESC)`,
}

// ResultStore persists backtest results in Postgres.
type ResultStore struct {
	db *sqlx.DB
}

// NewResultStore wraps a Postgres connection pool.
func NewResultStore(db *sqlx.DB) *ResultStore {
	return &ResultStore{db: db}
}

var _ drepo.BacktestResultStore = (*ResultStore)(nil)

// Save writes one result and returns its id.
func (s *ResultStore) Save(ctx context.Context, r *models.BacktestResult) (string, error) {
	params, err := json.Marshal(r.Params)
	if err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}
	trades, err := json.Marshal(r.Trades)
	if err != nil {
		return "", fmt.Errorf("marshal trades: %w", err)
	}
	equity, err := json.Marshal(r.EquityCurve)
	if err != nil {
		return "", fmt.Errorf("marshal equity curve: %w", err)
	}
	monthly, err := json.Marshal(r.MonthlyReturns)
	if err != nil {
		return "", fmt.Errorf("marshal monthly returns: %w", err)
	}

	q := `INSERT INTO backtest_results
		(id, symbol, algorithm, params, trades, equity_curve, monthly_returns,
		 initial_capital, final_capital, total_return, total_trades, win_rate,
		 avg_win, avg_loss, profit_factor, largest_win, largest_loss,
		 max_drawdown, sharpe_ratio, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`
	if _, err := s.db.ExecContext(ctx, q,
		r.ID, r.Params.Symbol, r.Params.Algorithm, params, trades, equity, monthly,
		r.InitialCapital, r.FinalCapital, r.TotalReturn, r.TotalTrades, r.WinRate,
		r.AvgWin, r.AvgLoss, r.ProfitFactor, r.LargestWin, r.LargestLoss,
		r.MaxDrawdown, r.SharpeRatio, r.CreatedAt,
	); err != nil {
		return "", fmt.Errorf("insert result: %w", err)
	}
	return r.ID, nil
}

// List returns results matching the filter, newest first, plus the total
// count before pagination.
func (s *ResultStore) List(ctx context.Context, filter drepo.ResultFilter) ([]models.BacktestResult, int64, error) {
	where := " WHERE TRUE"
	args := []any{}
	if filter.Symbol != "" {
		args = append(args, filter.Symbol)
		where += fmt.Sprintf(" AND symbol = $%d", len(args))
	}
	if filter.Algorithm != "" {
		args = append(args, filter.Algorithm)
		where += fmt.Sprintf(" AND algorithm = $%d", len(args))
	}

	var total int64
	if err := s.db.GetContext(ctx, &total, "SELECT count(*) FROM backtest_results"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count results: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	q := selectResultColumns + where + fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", limit, filter.Offset)

	rows, err := s.db.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query results: %w", err)
	}
	defer rows.Close()

	var out []models.BacktestResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *r)
	}
	return out, total, rows.Err()
}

// Get returns one result by id, ErrNotFound when missing.
func (s *ResultStore) Get(ctx context.Context, id string) (*models.BacktestResult, error) {
	row := s.db.QueryRowxContext(ctx, selectResultColumns+" WHERE id = $1", id)
	r, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	return r, err
}

// Delete removes one result by id, ErrNotFound when missing.
func (s *ResultStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM backtest_results WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

const selectResultColumns = `SELECT id, params, trades, equity_curve, monthly_returns,
	initial_capital, final_capital, total_return, total_trades, win_rate,
	avg_win, avg_loss, profit_factor, largest_win, largest_loss,
	max_drawdown, sharpe_ratio, created_at
	FROM backtest_results`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (*models.BacktestResult, error) {
	var (
		r       models.BacktestResult
		params  []byte
		trades  []byte
		equity  []byte
		monthly []byte
	)
	if err := row.Scan(&r.ID, &params, &trades, &equity, &monthly,
		&r.InitialCapital, &r.FinalCapital, &r.TotalReturn, &r.TotalTrades, &r.WinRate,
		&r.AvgWin, &r.AvgLoss, &r.ProfitFactor, &r.LargestWin, &r.LargestLoss,
		&r.MaxDrawdown, &r.SharpeRatio, &r.CreatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(params, &r.Params); err != nil {
		return nil, fmt.Errorf("unmarshal params: %w", err)
	}
	if err := json.Unmarshal(trades, &r.Trades); err != nil {
		return nil, fmt.Errorf("unmarshal trades: %w", err)
	}
	if err := json.Unmarshal(equity, &r.EquityCurve); err != nil {
		return nil, fmt.Errorf("unmarshal equity curve: %w", err)
	}
	if err := json.Unmarshal(monthly, &r.MonthlyReturns); err != nil {
		return nil, fmt.Errorf("unmarshal monthly returns: %w", err)
	}
	return &r, nil
}
