//go:build wireinject
// +build wireinject

package di

import (
	"TradePulse/pkg/config"
	"TradePulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Observability
		ProvideLogger,
		ProvideMetrics,

		// Runtime primitives
		ProvideClock,
		ProvideIDGenerator,
		ProvideRateLimiter,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvidePostgresClient,
		ProvideRedisCache,
		ProvideCacheService,
		ProvideKafkaProducer,
		ProvideKafkaSink,

		// Stores
		ProvideCandleStore,
		ProvideCandleSource,
		ProvideInstrumentRepository,
		ProvideSignalStore,
		ProvideResultStore,

		// Market data
		ProvideMarketStream,

		// Analysis
		ProvideFlowAnalyzer,
		ProvideVolatilityAnalyzer,

		// Engines
		ProvideScanEngine,
		ProvideBacktestRunner,
		ProvideSweepWorker,

		// API
		ProvideHandler,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
