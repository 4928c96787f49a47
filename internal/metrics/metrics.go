// Package metrics provides the Prometheus instrumentation for the scheduling
// core. Services depend on the Recorder interface so tests can substitute a
// recording fake.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"valdrix/internal/types"
)

// Recorder is the metrics surface the scheduler services emit to.
type Recorder interface {
	// JobsEnqueued counts rows actually inserted (not skipped) per job type
	// and cohort.
	JobsEnqueued(jobType types.JobType, cohort types.TenantCohort, count int)

	// DispatchResult counts dispatch outcomes per task.
	DispatchResult(task types.TaskType, success bool)

	// DispatchDuration observes the total wall time of one dispatch pass.
	DispatchDuration(task types.TaskType, d time.Duration)

	// ContentionEvent counts detected deadlock/serialization conflicts.
	ContentionEvent()

	// SetStuckJobs sets (not increments) the current stuck-job backlog so
	// the gauge reflects the latest sweep rather than accumulating.
	SetStuckJobs(count int)
}

// PrometheusRecorder implements Recorder against a prometheus registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	jobsEnqueued     *prometheus.CounterVec
	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	contentionTotal  prometheus.Counter
	stuckJobs        prometheus.Gauge
}

// Compile-time assertion that PrometheusRecorder implements Recorder.
var _ Recorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder creates a recorder with its own registry, including
// the standard Go runtime and process collectors.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &PrometheusRecorder{
		registry: registry,
		jobsEnqueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scheduler_jobs_enqueued_total",
				Help: "Job rows actually inserted, by job type and cohort",
			},
			[]string{"job_type", "cohort"},
		),
		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scheduler_dispatch_total",
				Help: "Dispatch attempts by task and result",
			},
			[]string{"task", "result"},
		),
		dispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scheduler_dispatch_duration_seconds",
				Help:    "Total wall time of one dispatch pass",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"task"},
		),
		contentionTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "scheduler_db_contention_total",
				Help: "Detected deadlock and serialization conflicts",
			},
		),
		stuckJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "scheduler_stuck_jobs",
				Help: "Pending jobs past the liveness threshold at the last sweep",
			},
		),
	}

	registry.MustRegister(
		r.jobsEnqueued,
		r.dispatchTotal,
		r.dispatchDuration,
		r.contentionTotal,
		r.stuckJobs,
	)

	return r
}

// Handler returns the HTTP handler serving this recorder's registry.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *PrometheusRecorder) JobsEnqueued(jobType types.JobType, cohort types.TenantCohort, count int) {
	r.jobsEnqueued.WithLabelValues(string(jobType), string(cohort)).Add(float64(count))
}

func (r *PrometheusRecorder) DispatchResult(task types.TaskType, success bool) {
	result := "success"
	if !success {
		result = "error"
	}
	r.dispatchTotal.WithLabelValues(string(task), result).Inc()
}

func (r *PrometheusRecorder) DispatchDuration(task types.TaskType, d time.Duration) {
	r.dispatchDuration.WithLabelValues(string(task)).Observe(d.Seconds())
}

func (r *PrometheusRecorder) ContentionEvent() {
	r.contentionTotal.Inc()
}

func (r *PrometheusRecorder) SetStuckJobs(count int) {
	r.stuckJobs.Set(float64(count))
}
