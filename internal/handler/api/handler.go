package api

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"TradePulse/internal/backtest"
	"TradePulse/internal/domain/models"
	drepo "TradePulse/internal/domain/repository"
	"TradePulse/internal/jobs"
	"TradePulse/internal/scanner"
	"TradePulse/internal/service/ratelimit"
	"TradePulse/pkg/cache"
	xhttp "TradePulse/pkg/http"
	xlogger "TradePulse/pkg/logger"
	"TradePulse/pkg/queue"
)

const signalsCacheTTL = 15 * time.Second

// Handler exposes the engine over REST.
type Handler struct {
	logger  *xlogger.Logger
	runner  *backtest.Runner
	results drepo.BacktestResultStore
	signals drepo.SignalStore
	engine  *scanner.Engine
	queue   queue.QueueService
	cache   cache.Service
	ids     drepo.IDGenerator
	limiter *ratelimit.Limiter
}

// NewHandler wires the API handler.
func NewHandler(
	logger *xlogger.Logger,
	runner *backtest.Runner,
	results drepo.BacktestResultStore,
	signals drepo.SignalStore,
	engine *scanner.Engine,
	q queue.QueueService,
	c cache.Service,
	ids drepo.IDGenerator,
	limiter *ratelimit.Limiter,
) *Handler {
	return &Handler{
		logger:  logger,
		runner:  runner,
		results: results,
		signals: signals,
		engine:  engine,
		queue:   q,
		cache:   c,
		ids:     ids,
		limiter: limiter,
	}
}

// RegisterRoutes mounts all API routes.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api/v1")
	g.POST("/backtests", h.RunBacktest, h.rateLimit("backtest", 5, 1))
	g.POST("/backtests/sweep", h.EnqueueSweep, h.rateLimit("sweep", 2, 0.2))
	g.GET("/backtests", h.ListResults)
	g.GET("/backtests/:id", h.GetResult)
	g.DELETE("/backtests/:id", h.DeleteResult)
	g.GET("/signals", h.RecentSignals)
	g.POST("/scan", h.TriggerScan, h.rateLimit("scan", 2, 0.2))
}

// Health reports liveness.
func (h *Handler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// RunBacktest executes one backtest synchronously.
func (h *Handler) RunBacktest(c echo.Context) error {
	req := &models.BacktestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	var candles []models.Candle
	if len(req.Candles) > 0 {
		candles = req.Candles
	}
	res, err := h.runner.Run(c.Request().Context(), req.ToParams(), candles)
	if err != nil {
		if errors.Is(err, models.ErrInsufficientData) || errors.Is(err, models.ErrInvalidCandle) {
			return xhttp.BadRequestResponse(c, err.Error())
		}
		h.logger.Error("backtest run error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, res)
}

// EnqueueSweep queues a parameter sweep for the background worker.
func (h *Handler) EnqueueSweep(c echo.Context) error {
	req := &models.SweepRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	payload := jobs.SweepPayload{
		JobID: h.ids.NewID(),
		Sweep: req.ToParams(),
	}
	if err := h.queue.PublishMessage(c.Request().Context(), jobs.SweepMessageType, payload); err != nil {
		h.logger.Error("sweep enqueue error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.CreatedResponse(c, models.SweepAccepted{JobID: payload.JobID})
}

// ListResults returns stored backtest results.
func (h *Handler) ListResults(c echo.Context) error {
	req := &models.ResultsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	rows, total, err := h.results.List(c.Request().Context(), drepo.ResultFilter{
		Symbol:    req.Symbol,
		Algorithm: req.Algorithm,
		Limit:     req.Limit,
		Offset:    req.Offset,
	})
	if err != nil {
		h.logger.Error("list results error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.ListResponse(c, rows, total)
}

// GetResult returns one stored result.
func (h *Handler) GetResult(c echo.Context) error {
	res, err := h.results.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return xhttp.NotFoundResponse(c, "backtest result not found")
		}
		h.logger.Error("get result error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, res)
}

// DeleteResult removes one stored result.
func (h *Handler) DeleteResult(c echo.Context) error {
	if err := h.results.Delete(c.Request().Context(), c.Param("id")); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return xhttp.NotFoundResponse(c, "backtest result not found")
		}
		h.logger.Error("delete result error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.NoContentResponse(c)
}

// RecentSignals returns the latest signals, briefly cached.
func (h *Handler) RecentSignals(c echo.Context) error {
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	key := cache.GenerateKeyWithParams("signals", req.Symbol, req.Limit)
	if h.cache != nil {
		var cached []models.Signal
		if err := h.cache.Get(c.Request().Context(), key, &cached); err == nil {
			return xhttp.SuccessResponse(c, cached)
		}
	}

	sigs, err := h.signals.Recent(c.Request().Context(), req.Symbol, req.Limit)
	if err != nil {
		h.logger.Error("recent signals error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if h.cache != nil {
		_ = h.cache.Set(c.Request().Context(), key, sigs, signalsCacheTTL)
	}
	return xhttp.SuccessResponse(c, sigs)
}

// TriggerScan runs one scan cycle outside the schedule. The cycle is
// detached from the request context so it survives the response.
func (h *Handler) TriggerScan(c echo.Context) error {
	go h.engine.Trigger(context.Background())
	return xhttp.SuccessResponse(c, map[string]string{"status": "triggered"})
}

func (h *Handler) rateLimit(key string, capacity, refillPerSec float64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if h.limiter != nil && !h.limiter.Allow(key, capacity, refillPerSec) {
				return xhttp.DataResponse(c, 429, "rate limit exceeded")
			}
			return next(c)
		}
	}
}
