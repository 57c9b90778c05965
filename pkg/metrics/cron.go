package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SchedulerMetrics covers background sweeps: per-job runs and cycles skipped
// because another replica held the cluster lock.
type SchedulerMetrics struct {
	duration *prometheus.HistogramVec
	runs     *prometheus.CounterVec
	skipped  prometheus.Counter
}

func NewSchedulerMetrics(reg prometheus.Registerer) *SchedulerMetrics {
	if reg == nil {
		return &SchedulerMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cart_scheduler_job_duration_seconds",
		Help:    "Duration of scheduled cart jobs in seconds.",
		Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 300, 900},
	}, []string{"job"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_scheduler_job_runs_total",
		Help: "Scheduled cart job executions by outcome.",
	}, []string{"job", "outcome"})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_scheduler_cycles_skipped_total",
		Help: "Scheduler cycles skipped because the cluster lock was held elsewhere.",
	})
	reg.MustRegister(duration, runs, skipped)
	return &SchedulerMetrics{
		duration: duration,
		runs:     runs,
		skipped:  skipped,
	}
}

// ObserveJob records one job execution.
func (m *SchedulerMetrics) ObserveJob(job string, duration time.Duration, err error) {
	if m == nil || m.runs == nil {
		return
	}
	label := normalizeLabel(job)
	m.duration.WithLabelValues(label).Observe(duration.Seconds())
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.runs.WithLabelValues(label, outcome).Inc()
}

func (m *SchedulerMetrics) IncCycleSkipped() {
	if m == nil || m.skipped == nil {
		return
	}
	m.skipped.Inc()
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
