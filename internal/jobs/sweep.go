package jobs

import (
	"context"

	"TradePulse/internal/backtest"
	"TradePulse/internal/domain/models"
	"TradePulse/pkg/logger"
	"TradePulse/pkg/queue"
)

// SweepMessageType routes sweep payloads to the job.
const SweepMessageType = "backtest_sweep"

// SweepPayload is the queued sweep request.
type SweepPayload struct {
	JobID string             `json:"job_id"`
	Sweep models.SweepParams `json:"sweep"`
}

// SweepJob runs queued parameter sweeps. Every combination's result is
// persisted by the runner as it completes, so a crashed worker loses at
// most the in-flight combination.
type SweepJob struct {
	runner *backtest.Runner
	l      *logger.Logger
}

// NewSweepJob creates the job.
func NewSweepJob(runner *backtest.Runner, l *logger.Logger) *SweepJob {
	return &SweepJob{runner: runner, l: l}
}

var _ queue.Job = (*SweepJob)(nil)

func (j *SweepJob) Name() string { return "backtest-sweep" }

func (j *SweepJob) Type() string { return SweepMessageType }

// Handle expands and runs the sweep.
func (j *SweepJob) Handle(ctx context.Context, payload interface{}) error {
	p, err := queue.ParsePayload[SweepPayload](payload)
	if err != nil {
		return err
	}

	results, err := j.runner.RunBatch(ctx, p.Sweep, nil)
	if err != nil {
		return err
	}

	best := backtest.Best(results)
	if best == nil {
		j.l.Warn("sweep produced no results", logger.String("job_id", p.JobID))
		return nil
	}
	j.l.Info("sweep complete",
		logger.String("job_id", p.JobID),
		logger.Int("results", len(results)),
		logger.String("best_id", best.ID),
		logger.Float64("best_total_return", best.TotalReturn),
	)
	return nil
}
