package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	jobsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotforge",
			Name:      "jobs_submitted_total",
			Help:      "Count of generation jobs submitted by scope kind.",
		},
		[]string{"scope_kind"},
	)

	jobsCoalesced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slotforge",
			Name:      "jobs_coalesced_total",
			Help:      "Count of submissions coalesced onto an in-flight job.",
		},
	)

	jobsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotforge",
			Name:      "jobs_completed_total",
			Help:      "Count of jobs reaching a terminal state, by status.",
		},
		[]string{"status"},
	)

	jobRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "slotforge",
			Name:      "job_retries_total",
			Help:      "Count of transient-failure retries across all jobs.",
		},
	)

	slotsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotforge",
			Name:      "slots_generated_total",
			Help:      "Count of generated slot rows written, by scope kind.",
		},
		[]string{"scope_kind"},
	)

	generationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "slotforge",
			Name:      "generation_duration_seconds",
			Help:      "Wall-clock duration of job executions.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "slotforge",
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			jobsSubmitted, jobsCoalesced, jobsCompleted, jobRetries,
			slotsGenerated, generationDuration, httpRequests,
		)
	})
}

func IncJobsSubmitted(scopeKind string) {
	jobsSubmitted.WithLabelValues(scopeKind).Inc()
}

func IncJobsCoalesced() {
	jobsCoalesced.Inc()
}

func IncJobsCompleted(status string) {
	jobsCompleted.WithLabelValues(status).Inc()
}

func IncJobRetries() {
	jobRetries.Inc()
}

func AddSlotsGenerated(scopeKind string, n int) {
	slotsGenerated.WithLabelValues(scopeKind).Add(float64(n))
}

func ObserveGenerationDuration(seconds float64) {
	generationDuration.Observe(seconds)
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
