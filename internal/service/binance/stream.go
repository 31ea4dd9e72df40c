package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	"TradePulse/pkg/logger"
)

// Stream maintains a live table of 24h market snapshots from the Binance
// combined mini-ticker websocket. It implements SnapshotSource; lookups
// never hit the network.
type Stream struct {
	websocketURL   string
	symbols        []string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	staleAfter     time.Duration
	clock          drepo.Clock
	l              *logger.Logger

	mu        sync.RWMutex
	snapshots map[string]models.MarketSnapshot
	conn      *websocket.Conn
	connected bool
	cancel    context.CancelFunc
}

// New creates a Binance mini-ticker stream for the given symbols.
func New(websocketURL string, symbols []string, reconnectDelay, pingInterval time.Duration, clock drepo.Clock, l *logger.Logger) *Stream {
	if reconnectDelay <= 0 {
		reconnectDelay = 5 * time.Second
	}
	if pingInterval <= 0 {
		pingInterval = 30 * time.Second
	}
	return &Stream{
		websocketURL:   websocketURL,
		symbols:        symbols,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		staleAfter:     5 * time.Minute,
		clock:          clock,
		l:              l,
		snapshots:      make(map[string]models.MarketSnapshot),
	}
}

var _ drepo.SnapshotSource = (*Stream)(nil)

// Snapshot returns the latest observation for symbol. A missing or stale
// entry is an upstream failure, not an empty result.
func (s *Stream) Snapshot(_ context.Context, symbol string) (models.MarketSnapshot, error) {
	s.mu.RLock()
	snap, ok := s.snapshots[symbol]
	s.mu.RUnlock()
	if !ok {
		return models.MarketSnapshot{}, fmt.Errorf("%w: no snapshot for %s", models.ErrUpstreamFetch, symbol)
	}
	if s.clock.Now().Sub(snap.ObservedAt) > s.staleAfter {
		return models.MarketSnapshot{}, fmt.Errorf("%w: snapshot for %s is stale", models.ErrUpstreamFetch, symbol)
	}
	return snap, nil
}

// Start connects and launches the read and ping loops. Reconnects with a
// fixed delay until the context is cancelled.
func (s *Stream) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)
	if err := s.connect(ctx); err != nil {
		return err
	}
	go s.pingLoop(ctx)
	go s.readLoop(ctx)
	return nil
}

// Stop cancels the loops and closes the connection.
func (s *Stream) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.closeConn()
}

// IsConnected indicates stream status.
func (s *Stream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Stream) connect(ctx context.Context) error {
	streams := make([]string, len(s.symbols))
	for i, sym := range s.symbols {
		streams[i] = strings.ToLower(sym) + "@miniTicker"
	}
	u := fmt.Sprintf("%s/stream?streams=%s", s.websocketURL, strings.Join(streams, "/"))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("binance connect: %w", err)
	}
	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.mu.Unlock()
	s.l.Info("binance stream connected", logger.Int("symbols", len(s.symbols)))
	return nil
}

func (s *Stream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn != nil {
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}
}

// miniTicker is the Binance 24h rolling-window payload. Prices arrive as
// strings.
type miniTicker struct {
	EventTime   int64  `json:"E"`
	Symbol      string `json:"s"`
	Close       string `json:"c"`
	Open        string `json:"o"`
	High        string `json:"h"`
	Low         string `json:"l"`
	QuoteVolume string `json:"q"`
}

type streamFrame struct {
	Stream string     `json:"stream"`
	Data   miniTicker `json:"data"`
}

func (s *Stream) readLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			s.reconnect(ctx)
			continue
		}

		_, b, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.l.Warn("binance read failed", logger.Error(err))
			s.reconnect(ctx)
			continue
		}

		var frame streamFrame
		if err := json.Unmarshal(b, &frame); err != nil || frame.Data.Symbol == "" {
			// control or unknown frame
			continue
		}
		s.apply(frame.Data)
	}
}

func (s *Stream) apply(t miniTicker) {
	price := parseF(t.Close)
	open := parseF(t.Open)
	snap := models.MarketSnapshot{
		Symbol:     t.Symbol,
		Price:      price,
		Volume24h:  parseF(t.QuoteVolume),
		High24h:    parseF(t.High),
		Low24h:     parseF(t.Low),
		Open24h:    open,
		ObservedAt: s.clock.Now(),
	}
	if open > 0 {
		snap.PercentChange24h = (price - open) / open
	}

	s.mu.Lock()
	s.snapshots[t.Symbol] = snap
	s.mu.Unlock()
}

func (s *Stream) reconnect(ctx context.Context) {
	_ = s.closeConn()
	select {
	case <-time.After(s.reconnectDelay):
	case <-ctx.Done():
		return
	}
	if err := s.connect(ctx); err != nil {
		s.l.Warn("binance reconnect failed", logger.Error(err))
	}
}

func (s *Stream) closeConn() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.connected = false
	s.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func parseF(v string) float64 {
	f, _ := strconv.ParseFloat(v, 64)
	return f
}
