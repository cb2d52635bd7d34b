// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type", "dispatcher"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "dispatcher", "error_code"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type", "dispatcher"},
	)

	MatchBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_batches_total",
			Help: "Total number of match batch runs by outcome status",
		},
		[]string{"task_type", "status"},
	)

	MatchBatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "match_batch_duration_seconds",
			Help:    "Duration of match batch runs in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		},
		[]string{"task_type"},
	)

	MatchRowsUpserted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_rows_upserted_total",
			Help: "Total number of match rows written",
		},
		[]string{"task_type"},
	)

	MatchRecordsSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_records_skipped_total",
			Help: "Total number of malformed records skipped during ranking",
		},
		[]string{"task_type"},
	)

	MatchObserverFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_observer_failures_total",
			Help: "Total number of failed post-commit side effects",
		},
		[]string{"observer"},
	)
)
