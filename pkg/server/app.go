package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"TradePulse/internal/scanner"
	"TradePulse/internal/service/binance"
	pkgch "TradePulse/pkg/clickhouse"
	"TradePulse/pkg/config"
	xhttp "TradePulse/pkg/http"
	applogger "TradePulse/pkg/logger"
	"TradePulse/pkg/postgres"
	"TradePulse/pkg/queue"
)

// App encapsulates the entire application lifecycle.
type App struct {
	cfg        *config.Config
	l          *applogger.Logger
	stream     *binance.Stream
	engine     *scanner.Engine
	worker     *queue.RedisQueue
	httpServer *xhttp.Server
	chClient   *pkgch.Client
	pgClient   *postgres.Client
	closers    []func() error
}

// New creates a new App instance with all dependencies.
func New(
	cfg *config.Config,
	l *applogger.Logger,
	stream *binance.Stream,
	engine *scanner.Engine,
	worker *queue.RedisQueue,
	handler xhttp.Handler,
	chClient *pkgch.Client,
	pgClient *postgres.Client,
) *App {
	httpServer := xhttp.NewServer(handler,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetricsLogger(l),
	)
	return &App{
		cfg:        cfg,
		l:          l,
		stream:     stream,
		engine:     engine,
		worker:     worker,
		httpServer: httpServer,
		chClient:   chClient,
		pgClient:   pgClient,
	}
}

// AddCloser registers an extra resource to close on shutdown.
func (a *App) AddCloser(fn func() error) { a.closers = append(a.closers, fn) }

// Run starts the application and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.stream.Start(ctx); err != nil {
		a.l.Error("market stream start error", applogger.Error(err))
		return err
	}
	a.l.Info("market stream started", applogger.Strings("symbols", a.cfg.Binance.Symbols))

	if a.cfg.Scanner.Enabled {
		a.engine.Start(ctx)
	}

	if a.worker != nil {
		if err := a.worker.Start(); err != nil {
			a.l.Error("sweep worker start error", applogger.Error(err))
			return err
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.l.Error("http server start error", applogger.Error(err))
		return err
	}
	a.l.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.l.Info("shutdown signal received")
	return a.shutdown(ctx)
}

// shutdown gracefully stops all services.
func (a *App) shutdown(ctx context.Context) error {
	if a.cfg.Scanner.Enabled {
		a.engine.Stop()
	}

	if err := a.stream.Stop(); err != nil {
		a.l.Warn("market stream stop error", applogger.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if a.worker != nil {
		if err := a.worker.Stop(shutdownCtx); err != nil {
			a.l.Warn("sweep worker stop error", applogger.Error(err))
		}
	}

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.l.Error("http shutdown error", applogger.Error(err))
	}

	for _, fn := range a.closers {
		if err := fn(); err != nil {
			a.l.Warn("resource close error", applogger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.l.Warn("clickhouse close error", applogger.Error(err))
		}
	}
	if a.pgClient != nil {
		if err := a.pgClient.Close(); err != nil {
			a.l.Warn("postgres close error", applogger.Error(err))
		}
	}

	a.l.Info("shutdown complete")
	return nil
}
