package models

import "errors"

// Domain error taxonomy. Callers decide whether an error is fatal to the
// surrounding loop: insufficient data and invalid candles abort a single
// analysis or backtest run, upstream fetch errors are retried and then
// skipped, persistence errors are logged without aborting a scan.
var (
	// ErrInsufficientData means fewer candles than the warm-up or
	// indicator window requires.
	ErrInsufficientData = errors.New("insufficient candle data")

	// ErrInvalidCandle means a candle with non-positive OHLC or high < low
	// was found; the whole batch is rejected.
	ErrInvalidCandle = errors.New("invalid candle data")

	// ErrUpstreamFetch means a market snapshot or historical data fetch
	// failed after retries.
	ErrUpstreamFetch = errors.New("upstream fetch failed")

	// ErrNotFound means the requested entity does not exist.
	ErrNotFound = errors.New("not found")
)
