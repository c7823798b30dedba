package worker

import (
	"feedwatch/internal/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WorkerMetrics provides Prometheus metrics for the worker component.
// It embeds the standard ConfigMetrics and adds scheduler and batch job
// metrics.
//
// Embedded metrics (from ConfigMetrics):
//   - worker_config_load_timestamp
//   - worker_config_validation_errors_total{field}
//   - worker_config_fallbacks_total{field}
//   - worker_config_fallback_active
//
// Worker-specific metrics:
//   - worker_batch_job_runs_total{status}
//   - worker_batch_job_duration_seconds
//   - worker_batch_job_last_success_timestamp
//   - worker_scheduled_feeds
//   - worker_runs_in_flight
//   - worker_runs_deferred_total
//   - worker_runs_total{outcome}
//
// Metrics are registered with the default registry; create one instance
// per process.
type WorkerMetrics struct {
	*config.ConfigMetrics

	BatchJobRunsTotal            *prometheus.CounterVec
	BatchJobDurationSeconds      prometheus.Histogram
	BatchJobLastSuccessTimestamp prometheus.Gauge

	// ScheduledFeeds is the number of feeds with a live schedule.
	ScheduledFeeds prometheus.Gauge
	// RunsInFlight is the number of pipeline runs executing now.
	RunsInFlight prometheus.Gauge
	// RunsDeferredTotal counts firings coalesced into a pending re-run.
	RunsDeferredTotal prometheus.Counter
	// RunsTotal counts finished runs by outcome, "error" for returned errors.
	RunsTotal *prometheus.CounterVec
}

// NewWorkerMetrics creates and registers the worker metrics.
func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics("worker"),

		BatchJobRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_batch_job_runs_total",
			Help: "Total number of batch job runs by status (success/failure)",
		}, []string{"status"}),

		BatchJobDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_batch_job_duration_seconds",
			Help:    "Duration of batch job execution in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 30, 60, 300},
		}),

		BatchJobLastSuccessTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_batch_job_last_success_timestamp",
			Help: "Unix timestamp of the last successful batch job run",
		}),

		ScheduledFeeds: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_scheduled_feeds",
			Help: "Number of feeds with an active schedule",
		}),

		RunsInFlight: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_runs_in_flight",
			Help: "Number of pipeline runs currently executing",
		}),

		RunsDeferredTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "worker_runs_deferred_total",
			Help: "Total number of firings deferred because a run for the feed was in flight",
		}),

		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Total number of pipeline runs by outcome",
		}, []string{"outcome"}),
	}
}

// RecordBatchRun records a finished batch job.
func (m *WorkerMetrics) RecordBatchRun(status string, seconds float64) {
	if m == nil {
		return
	}
	m.BatchJobRunsTotal.WithLabelValues(status).Inc()
	m.BatchJobDurationSeconds.Observe(seconds)
	if status == "success" {
		m.BatchJobLastSuccessTimestamp.SetToCurrentTime()
	}
}

// SetScheduledFeeds sets the scheduled feed gauge.
func (m *WorkerMetrics) SetScheduledFeeds(n int) {
	if m == nil {
		return
	}
	m.ScheduledFeeds.Set(float64(n))
}

// RunStarted and RunFinished bracket a pipeline run.
func (m *WorkerMetrics) RunStarted() {
	if m == nil {
		return
	}
	m.RunsInFlight.Inc()
}

// RunFinished records the run outcome.
func (m *WorkerMetrics) RunFinished(outcome string) {
	if m == nil {
		return
	}
	m.RunsInFlight.Dec()
	m.RunsTotal.WithLabelValues(outcome).Inc()
}

// RecordDeferred counts a coalesced firing.
func (m *WorkerMetrics) RecordDeferred() {
	if m == nil {
		return
	}
	m.RunsDeferredTotal.Inc()
}
