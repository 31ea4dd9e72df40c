package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	scansTotal       prometheus.Counter
	scansSkipped     prometheus.Counter
	scanDuration     prometheus.Histogram
	signalsTotal     *prometheus.CounterVec
	signalsDeduped   *prometheus.CounterVec
	backtestsTotal   *prometheus.CounterVec
	backtestDuration *prometheus.HistogramVec
	errorsTotal      *prometheus.CounterVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		scansTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tradepulse_scans_total",
				Help: "Total completed scan cycles",
			},
		),
		scansSkipped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "tradepulse_scans_skipped_total",
				Help: "Scan ticks skipped because a cycle was still running",
			},
		),
		scanDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tradepulse_scan_duration_seconds",
				Help:    "Scan cycle duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		signalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_signals_total",
				Help: "Signals persisted, by algorithm and direction",
			},
			[]string{"algorithm", "direction"},
		),
		signalsDeduped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_signals_deduped_total",
				Help: "Signals dropped as duplicates of a recent signal",
			},
			[]string{"algorithm"},
		),
		backtestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_backtests_total",
				Help: "Completed backtest runs, by algorithm",
			},
			[]string{"algorithm"},
		),
		backtestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradepulse_backtest_duration_seconds",
				Help:    "Backtest run duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"algorithm"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradepulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

// RecordScan records one completed scan cycle.
func (r *Recorder) RecordScan(duration time.Duration) {
	r.scansTotal.Inc()
	r.scanDuration.Observe(duration.Seconds())
}

// RecordScanSkipped records a skipped overlapping tick.
func (r *Recorder) RecordScanSkipped() {
	r.scansSkipped.Inc()
}

// RecordSignal records a persisted signal.
func (r *Recorder) RecordSignal(algorithm, direction string) {
	r.signalsTotal.WithLabelValues(algorithm, direction).Inc()
}

// RecordSignalDeduped records a signal dropped by deduplication.
func (r *Recorder) RecordSignalDeduped(algorithm string) {
	r.signalsDeduped.WithLabelValues(algorithm).Inc()
}

// RecordBacktest records one completed backtest run.
func (r *Recorder) RecordBacktest(algorithm string, duration time.Duration) {
	r.backtestsTotal.WithLabelValues(algorithm).Inc()
	r.backtestDuration.WithLabelValues(algorithm).Observe(duration.Seconds())
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}
