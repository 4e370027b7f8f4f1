package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CronJobMetrics records metadata for scheduled jobs.
type CronJobMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
}

func NewCronJobMetrics(reg prometheus.Registerer) *CronJobMetrics {
	if reg == nil {
		return &CronJobMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fanflow_job_duration_seconds",
		Help:    "Duration of cron jobs in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fanflow_job_success_total",
		Help: "Successful cron job executions.",
	}, []string{"job"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fanflow_job_failure_total",
		Help: "Failed cron job executions.",
	}, []string{"job"})
	reg.MustRegister(duration, success, failure)
	return &CronJobMetrics{duration: duration, success: success, failure: failure}
}

func (c *CronJobMetrics) ObserveDuration(job string, duration time.Duration) {
	if c == nil || c.duration == nil {
		return
	}
	c.duration.WithLabelValues(normalizeLabel(job)).Observe(duration.Seconds())
}

func (c *CronJobMetrics) IncSuccess(job string) {
	if c == nil || c.success == nil {
		return
	}
	c.success.WithLabelValues(normalizeLabel(job)).Inc()
}

func (c *CronJobMetrics) IncFailure(job string) {
	if c == nil || c.failure == nil {
		return
	}
	c.failure.WithLabelValues(normalizeLabel(job)).Inc()
}

// DispatchMetrics counts per-item dispatch outcomes and per-fan PPV sends.
type DispatchMetrics struct {
	items    *prometheus.CounterVec
	ppvSends *prometheus.CounterVec
}

func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	items := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fanflow_dispatch_items_total",
		Help: "Dispatched schedule items by outcome.",
	}, []string{"outcome"})
	ppvSends := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fanflow_ppv_sends_total",
		Help: "Recurring PPV sends by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(items, ppvSends)
	return &DispatchMetrics{items: items, ppvSends: ppvSends}
}

func (d *DispatchMetrics) IncItem(outcome string) {
	if d == nil || d.items == nil {
		return
	}
	d.items.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (d *DispatchMetrics) IncPPVSend(outcome string) {
	if d == nil || d.ppvSends == nil {
		return
	}
	d.ppvSends.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
