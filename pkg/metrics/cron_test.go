package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerMetricsRecordsRunsAndSkips(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSchedulerMetrics(reg)
	job := "cart-expiration-reminders"

	m.ObserveJob(job, 250*time.Millisecond, nil)
	m.ObserveJob(job, 100*time.Millisecond, errors.New("scan failed"))
	m.ObserveJob("  ", time.Millisecond, nil)
	m.IncCycleSkipped()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(job, OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(job, OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skipped))

	// One histogram series per job label, blank names folded into "unknown".
	assert.Equal(t, 2, testutil.CollectAndCount(m.duration))

	families, err := reg.Gather()
	require.NoError(t, err)
	var sum float64
	for _, mf := range families {
		if mf.GetName() != "cart_scheduler_job_duration_seconds" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetValue() == job {
					sum = metric.GetHistogram().GetSampleSum()
				}
			}
		}
	}
	assert.InDelta(t, 0.35, sum, 0.001)
}

func TestSchedulerMetricsNilSafe(t *testing.T) {
	var m *SchedulerMetrics
	m.ObserveJob("job", time.Second, nil)
	m.IncCycleSkipped()
	NewSchedulerMetrics(nil).ObserveJob("", 0, nil)
}
