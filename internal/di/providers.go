package di

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"TradePulse/internal/analysis"
	"TradePulse/internal/backtest"
	"TradePulse/internal/domain/models"
	"TradePulse/internal/domain/repository"
	"TradePulse/internal/handler/api"
	"TradePulse/internal/jobs"
	internalrepo "TradePulse/internal/repository"
	"TradePulse/internal/scanner"
	"TradePulse/internal/service/binance"
	"TradePulse/internal/service/ratelimit"
	pkgcache "TradePulse/pkg/cache"
	pkgch "TradePulse/pkg/clickhouse"
	"TradePulse/pkg/config"
	xhttp "TradePulse/pkg/http"
	pkgkafka "TradePulse/pkg/kafka"
	applogger "TradePulse/pkg/logger"
	"TradePulse/pkg/metrics"
	"TradePulse/pkg/postgres"
	"TradePulse/pkg/queue"
	"TradePulse/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		Output:     cfg.Logger.Output,
		TimeFormat: cfg.Logger.TimeFormat,
	})
}

// ProvideClock supplies the wall clock.
func ProvideClock() repository.Clock { return internalrepo.SystemClock{} }

// ProvideIDGenerator supplies the UUID generator.
func ProvideIDGenerator() repository.IDGenerator { return internalrepo.UUIDGenerator{} }

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics { return metrics.New() }

// ProvideClickHouseClient creates a ClickHouse client and applies the
// candle schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, internalrepo.CandleSchema); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvidePostgresClient creates a Postgres client and applies the row
// store schemas.
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, error) {
	client, err := postgres.NewClient(postgres.Config{
		DSN:             cfg.Postgres.DSN,
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("postgres client: %w", err)
	}

	var stmts []string
	stmts = append(stmts, internalrepo.InstrumentSchema...)
	stmts = append(stmts, internalrepo.SignalSchema...)
	stmts = append(stmts, internalrepo.ResultSchema...)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, stmts); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}
	return client, nil
}

// ProvideRedisCache creates the Redis cache service.
func ProvideRedisCache(cfg *config.Config) (*pkgcache.RedisCache, error) {
	host, port := splitAddr(cfg.Redis.Addr)
	return pkgcache.NewRedisCache(
		pkgcache.WithRedisHost(host),
		pkgcache.WithRedisPort(port),
		pkgcache.WithRedisPassword(cfg.Redis.Password),
		pkgcache.WithRedisDB(cfg.Redis.DB),
	)
}

// ProvideCacheService layers an in-memory cache over Redis.
func ProvideCacheService(rc *pkgcache.RedisCache) pkgcache.Service {
	return pkgcache.NewLayeredCache(rc)
}

// ProvideKafkaProducer creates the shared Kafka producer, or nil when
// Kafka is disabled.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideKafkaSink creates the signal notification sink. With Kafka
// disabled signals are persisted but not fanned out.
func ProvideKafkaSink(cfg *config.Config, producer *pkgkafka.Producer) repository.NotificationSink {
	if producer == nil {
		return internalrepo.NopNotificationSink{}
	}
	return internalrepo.NewKafkaNotificationSink(producer, cfg.Kafka.Topic)
}

// kafkaLogPublisher adapts the producer to the log collector's sink.
type kafkaLogPublisher struct {
	producer *pkgkafka.Producer
}

func (p kafkaLogPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.producer.Publish(ctx, topic, nil, payload)
}

// ProvideCandleStore creates the ClickHouse candle store.
func ProvideCandleStore(ch *pkgch.Client) *internalrepo.CandleStore {
	return internalrepo.NewCandleStore(ch.DB())
}

// ProvideCandleSource exposes the candle store behind its interface.
func ProvideCandleSource(cs *internalrepo.CandleStore) repository.CandleSource { return cs }

// ProvideInstrumentRepository creates the Postgres instrument store.
func ProvideInstrumentRepository(pg *postgres.Client) repository.InstrumentRepository {
	return internalrepo.NewInstrumentStore(pg.DB())
}

// ProvideSignalStore creates the Postgres signal store.
func ProvideSignalStore(pg *postgres.Client) repository.SignalStore {
	return internalrepo.NewSignalStore(pg.DB())
}

// ProvideResultStore creates the Postgres backtest result store.
func ProvideResultStore(pg *postgres.Client) repository.BacktestResultStore {
	return internalrepo.NewResultStore(pg.DB())
}

// ProvideMarketStream creates the Binance snapshot stream.
func ProvideMarketStream(cfg *config.Config, clock repository.Clock, l *applogger.Logger) *binance.Stream {
	return binance.New(
		cfg.Binance.WebSocketURL,
		cfg.Binance.Symbols,
		cfg.Binance.ReconnectDelay,
		cfg.Binance.PingInterval,
		clock,
		l,
	)
}

// ProvideRateLimiter creates the shared token bucket limiter.
func ProvideRateLimiter() *ratelimit.Limiter { return ratelimit.New() }

// ProvideFlowAnalyzer creates the flow analyzer backed by the candle store.
func ProvideFlowAnalyzer(candles repository.CandleSource, clock repository.Clock, ids repository.IDGenerator) *analysis.FlowAnalyzer {
	return analysis.NewFlowAnalyzer(candles, clock, ids)
}

// ProvideVolatilityAnalyzer creates the volatility-extreme analyzer.
func ProvideVolatilityAnalyzer(clock repository.Clock, ids repository.IDGenerator) *analysis.VolatilityExtremeAnalyzer {
	return analysis.NewVolatilityExtremeAnalyzer(clock, ids)
}

// ProvideScanEngine creates the scan engine with analyzer parameters from
// config, falling back to defaults for zero values.
func ProvideScanEngine(
	cfg *config.Config,
	instruments repository.InstrumentRepository,
	stream *binance.Stream,
	candles repository.CandleSource,
	store repository.SignalStore,
	sink repository.NotificationSink,
	flow *analysis.FlowAnalyzer,
	vol *analysis.VolatilityExtremeAnalyzer,
	clock repository.Clock,
	m repository.Metrics,
	l *applogger.Logger,
) *scanner.Engine {
	return scanner.NewEngine(
		scanner.Config{
			ScanInterval:   cfg.Scanner.ScanInterval,
			SweepInterval:  cfg.Scanner.SweepInterval,
			BatchSize:      cfg.Scanner.BatchSize,
			BatchDelay:     cfg.Scanner.BatchDelay,
			MaxInstruments: cfg.Scanner.MaxInstruments,
			Concurrency:    cfg.Scanner.Concurrency,
			FetchRetries:   cfg.Scanner.FetchRetries,
			FetchBackoff:   cfg.Scanner.FetchBackoff,
		},
		instruments, stream, candles, store, sink,
		flow, vol,
		flowParams(cfg), volatilityParams(cfg),
		clock, m, l,
	)
}

// ProvideBacktestRunner creates the backtest runner.
func ProvideBacktestRunner(
	candles repository.CandleSource,
	results repository.BacktestResultStore,
	flow *analysis.FlowAnalyzer,
	vol *analysis.VolatilityExtremeAnalyzer,
	clock repository.Clock,
	ids repository.IDGenerator,
	m repository.Metrics,
	l *applogger.Logger,
) *backtest.Runner {
	return backtest.NewRunner(candles, results, flow, vol, clock, ids, m, l)
}

// ProvideSweepWorker creates the Redis queue consumer with the sweep job
// registered.
func ProvideSweepWorker(cfg *config.Config, rc *pkgcache.RedisCache, runner *backtest.Runner, l *applogger.Logger) *queue.RedisQueue {
	workers := cfg.Redis.SweepQueue.Workers
	if workers <= 0 {
		workers = 1
	}
	q := queue.NewRedisQueue(l,
		&queue.QueueConfig{
			Workers:    workers,
			RetryLimit: 2,
			RetryDelay: 30 * time.Second,
		},
		rc.Client(),
		queue.ModeProducerConsumer,
	)
	q.RegisterJob(jobs.NewSweepJob(runner, l))
	return q
}

// ProvideHandler creates the REST API handler. The consumer queue doubles
// as the publisher since both sides share one Redis.
func ProvideHandler(
	l *applogger.Logger,
	runner *backtest.Runner,
	results repository.BacktestResultStore,
	signals repository.SignalStore,
	engine *scanner.Engine,
	worker *queue.RedisQueue,
	c pkgcache.Service,
	ids repository.IDGenerator,
	limiter *ratelimit.Limiter,
) xhttp.Handler {
	return api.NewHandler(l, runner, results, signals, engine, worker, c, ids, limiter)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	stream *binance.Stream,
	engine *scanner.Engine,
	worker *queue.RedisQueue,
	handler xhttp.Handler,
	ch *pkgch.Client,
	pg *postgres.Client,
	producer *pkgkafka.Producer,
	sink repository.NotificationSink,
) *server.App {
	if producer != nil {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.Topic + ".errors",
			Publisher:      kafkaLogPublisher{producer: producer},
		})
	}

	app := server.New(cfg, l, stream, engine, worker, handler, ch, pg)
	app.AddCloser(func() error {
		l.RemoveCollector()
		return nil
	})
	app.AddCloser(sink.Close)
	return app
}

func flowParams(cfg *config.Config) models.FlowParams {
	p := models.DefaultFlowParams()
	f := cfg.Analysis.Flow
	if f.VolumeThreshold > 0 {
		p.VolumeThreshold = f.VolumeThreshold
	}
	if f.PriceChangeThreshold < 0 {
		p.PriceChangeThreshold = f.PriceChangeThreshold
	}
	if f.LookbackHours > 0 {
		p.LookbackHours = f.LookbackHours
	}
	if f.MinVolumeRatio > 0 {
		p.MinVolumeRatio = f.MinVolumeRatio
	}
	if f.ConfirmationPeriods > 0 {
		p.ConfirmationPeriods = f.ConfirmationPeriods
	}
	return p
}

func volatilityParams(cfg *config.Config) models.VolatilityParams {
	p := models.DefaultVolatilityParams()
	v := cfg.Analysis.Volatility
	if v.Period > 0 {
		p.Period = v.Period
	}
	if v.BandPeriod > 0 {
		p.BandPeriod = v.BandPeriod
	}
	if v.DeviationMultiplier > 0 {
		p.DeviationMultiplier = v.DeviationMultiplier
	}
	if v.ThresholdLow > 0 {
		p.ThresholdLow = v.ThresholdLow
	}
	if v.ThresholdHigh > 0 {
		p.ThresholdHigh = v.ThresholdHigh
	}
	if v.SmoothingPeriod > 0 {
		p.SmoothingPeriod = v.SmoothingPeriod
	}
	return p
}

func splitAddr(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, 6379
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 6379
	}
	return host, port
}
