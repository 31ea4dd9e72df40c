package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"TradePulse/internal/di"
	"TradePulse/internal/domain/repository"
	"TradePulse/internal/service/binance"
	"TradePulse/internal/service/ratelimit"
	"TradePulse/pkg/config"
	xhttp "TradePulse/pkg/http"
	"TradePulse/pkg/util"
)

// Backfill pulls OHLCV history from Binance into ClickHouse so the scanner
// and backtester have a candle baseline to work from.
func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	symbols := flag.String("symbols", "", "comma separated symbols, defaults to configured list")
	interval := flag.String("interval", "1h", "candle interval (1m 5m 1h 4h 1d)")
	fromFlag := flag.String("from", "", "range start, RFC3339 or unix seconds (default 30 days ago)")
	toFlag := flag.String("to", "", "range end, RFC3339 or unix seconds (default now)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	l, err := di.ProvideLogger(cfg)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}

	ch, err := di.ProvideClickHouseClient(cfg)
	if err != nil {
		log.Fatalf("clickhouse init failed: %v", err)
	}
	defer ch.Close()

	store := di.ProvideCandleStore(ch)
	rest := binance.NewRestClient(xhttp.NewClient(), "", ratelimit.New(), l)

	now := time.Now().UTC()
	from := util.ParseTimeDefault(*fromFlag, now.AddDate(0, 0, -30))
	to := util.ParseTimeDefault(*toFlag, now)
	from, to = util.AlignFromTo(from, to, *interval)

	iv := repository.NormalizeInterval(*interval)

	list := cfg.Binance.Symbols
	if *symbols != "" {
		list = strings.Split(*symbols, ",")
	}

	ctx := context.Background()
	failed := 0
	for _, sym := range list {
		sym = strings.TrimSpace(strings.ToUpper(sym))
		if sym == "" {
			continue
		}
		n, err := rest.Backfill(ctx, store, sym, iv, from, to)
		if err != nil {
			log.Printf("backfill %s failed after %d candles: %v", sym, n, err)
			failed++
			continue
		}
		log.Printf("backfill %s: %d candles [%s..%s]", sym, n, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	if failed > 0 {
		os.Exit(1)
	}
}
