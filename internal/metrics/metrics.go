// Package metrics exposes Prometheus instrumentation for the job service.
// All methods are safe on a nil *Metrics, which records nothing.
package metrics

import (
	"time"

	"github.com/book-expert/tts-job-service/internal/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "tts_service"

// Metrics holds the collectors of one service instance.
type Metrics struct {
	jobsSubmitted  prometheus.Counter
	jobsRejected   *prometheus.CounterVec
	jobsCompleted  *prometheus.CounterVec
	jobsInFlight   prometheus.Gauge
	queueDepth     prometheus.Gauge
	jobDuration    prometheus.Histogram
	chunkLatency   prometheus.Histogram
	chunks         *prometheus.CounterVec
	notifyFailures prometheus.Counter
	jobsEvicted    prometheus.Counter
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		jobsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_submitted_total",
			Help:      "Total number of jobs accepted into the queue",
		}),
		jobsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_rejected_total",
			Help:      "Total number of rejected submissions",
		}, []string{"reason"}),
		jobsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_completed_total",
			Help:      "Total number of jobs that reached a terminal state",
		}, []string{"status"}),
		jobsInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Number of jobs currently being processed",
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of jobs waiting for a worker",
		}),
		jobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of the full pipeline per job",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		chunkLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_synthesis_seconds",
			Help:      "Synthesis latency of a single chunk",
			Buckets:   []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
		}),
		chunks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Total number of synthesized chunks",
		}, []string{"status"}),
		notifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notify_failures_total",
			Help:      "Total number of completion notifications that could not be delivered",
		}),
		jobsEvicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_evicted_total",
			Help:      "Total number of finished jobs removed by retention",
		}),
	}
}

// JobSubmitted records an accepted job.
func (m *Metrics) JobSubmitted() {
	if m == nil {
		return
	}

	m.jobsSubmitted.Inc()
}

// JobRejected records a refused submission.
func (m *Metrics) JobRejected(reason string) {
	if m == nil {
		return
	}

	m.jobsRejected.WithLabelValues(reason).Inc()
}

// JobStarted records a worker picking up a job.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}

	m.jobsInFlight.Inc()
}

// JobFinished records a job leaving the pipeline in the given terminal state.
func (m *Metrics) JobFinished(state core.JobState, elapsed time.Duration) {
	if m == nil {
		return
	}

	m.jobsInFlight.Dec()
	m.jobsCompleted.WithLabelValues(string(state)).Inc()
	m.jobDuration.Observe(elapsed.Seconds())
}

// SetQueueDepth records the current backlog.
func (m *Metrics) SetQueueDepth(depth int) {
	if m == nil {
		return
	}

	m.queueDepth.Set(float64(depth))
}

// ObserveChunk records the outcome of one chunk synthesis.
func (m *Metrics) ObserveChunk(elapsed time.Duration, err error) {
	if m == nil {
		return
	}

	m.chunkLatency.Observe(elapsed.Seconds())

	status := "success"
	if err != nil {
		status = "error"
	}

	m.chunks.WithLabelValues(status).Inc()
}

// NotifyFailed records an undeliverable notification.
func (m *Metrics) NotifyFailed() {
	if m == nil {
		return
	}

	m.notifyFailures.Inc()
}

// JobsEvicted records jobs removed by the retention janitor.
func (m *Metrics) JobsEvicted(count int) {
	if m == nil {
		return
	}

	m.jobsEvicted.Add(float64(count))
}
