package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	"TradePulse/internal/service/ratelimit"
	pkghttp "TradePulse/pkg/http"
	"TradePulse/pkg/logger"
)

const klinesPerRequest = 1000

// CandleWriter receives backfilled candles.
type CandleWriter interface {
	InsertBatch(ctx context.Context, interval drepo.Interval, candles []models.Candle) error
}

// RestClient fetches OHLCV history from the Binance REST API. Requests
// are paced by a shared token bucket to stay under the exchange weight
// limits.
type RestClient struct {
	http    *pkghttp.Client
	baseURL string
	limiter *ratelimit.Limiter
	l       *logger.Logger
}

// NewRestClient creates the REST client.
func NewRestClient(httpClient *pkghttp.Client, baseURL string, limiter *ratelimit.Limiter, l *logger.Logger) *RestClient {
	if baseURL == "" {
		baseURL = "https://api.binance.com"
	}
	return &RestClient{http: httpClient, baseURL: baseURL, limiter: limiter, l: l}
}

// Klines fetches up to limit candles of the interval in [from, to].
func (c *RestClient) Klines(ctx context.Context, symbol string, interval drepo.Interval, from, to time.Time, limit int) ([]models.Candle, error) {
	if limit <= 0 || limit > klinesPerRequest {
		limit = klinesPerRequest
	}
	c.waitForToken(ctx)

	var raw [][]json.RawMessage
	err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodGet,
		URL:    c.baseURL + "/api/v3/klines",
		QueryParams: map[string][]string{
			"symbol":    {symbol},
			"interval":  {string(interval)},
			"startTime": {strconv.FormatInt(from.UnixMilli(), 10)},
			"endTime":   {strconv.FormatInt(to.UnixMilli(), 10)},
			"limit":     {strconv.Itoa(limit)},
		},
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("%w: klines %s: %v", models.ErrUpstreamFetch, symbol, err)
	}

	out := make([]models.Candle, 0, len(raw))
	for _, k := range raw {
		c, err := parseKline(symbol, k)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Backfill pages through history and writes every batch to the store.
// Returns the number of candles written.
func (c *RestClient) Backfill(ctx context.Context, store CandleWriter, symbol string, interval drepo.Interval, from, to time.Time) (int, error) {
	total := 0
	cursor := from
	for cursor.Before(to) {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		batch, err := c.Klines(ctx, symbol, interval, cursor, to, klinesPerRequest)
		if err != nil {
			return total, err
		}
		if len(batch) == 0 {
			break
		}
		if err := store.InsertBatch(ctx, interval, batch); err != nil {
			return total, err
		}
		total += len(batch)
		cursor = batch[len(batch)-1].OpenTime.Add(interval.Duration())
	}
	c.l.Info("backfill complete",
		logger.String("symbol", symbol),
		logger.String("interval", string(interval)),
		logger.Int("candles", total),
	)
	return total, nil
}

func (c *RestClient) waitForToken(ctx context.Context) {
	if c.limiter == nil {
		return
	}
	for !c.limiter.Allow("binance_rest", 20, 10) {
		select {
		case <-time.After(100 * time.Millisecond):
		case <-ctx.Done():
			return
		}
	}
}

// parseKline maps one Binance kline array entry. Numeric fields arrive as
// JSON strings except the open time.
func parseKline(symbol string, k []json.RawMessage) (models.Candle, error) {
	if len(k) < 6 {
		return models.Candle{}, fmt.Errorf("%w: short kline entry", models.ErrUpstreamFetch)
	}
	var openMillis int64
	if err := json.Unmarshal(k[0], &openMillis); err != nil {
		return models.Candle{}, fmt.Errorf("%w: kline open time: %v", models.ErrUpstreamFetch, err)
	}
	fields := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		var s string
		if err := json.Unmarshal(k[i], &s); err != nil {
			return models.Candle{}, fmt.Errorf("%w: kline field %d: %v", models.ErrUpstreamFetch, i, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return models.Candle{}, fmt.Errorf("%w: kline field %d: %v", models.ErrUpstreamFetch, i, err)
		}
		fields[i-1] = v
	}
	return models.Candle{
		OpenTime: time.UnixMilli(openMillis).UTC(),
		Symbol:   symbol,
		Open:     fields[0],
		High:     fields[1],
		Low:      fields[2],
		Close:    fields[3],
		Volume:   fields[4],
	}, nil
}
