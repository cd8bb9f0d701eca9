package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsClaimedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_claimed_total",
			Help: "Claim attempts by result (claimed, contended, short_circuit, resumed)",
		},
		[]string{"result"},
	)

	JobsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Jobs that reached a terminal state",
		},
		[]string{"status"},
	)

	JobAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_attempts_total",
			Help: "Processing attempts by outcome (success, retry, failed)",
		},
		[]string{"outcome"},
	)

	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Duration of a single processing attempt in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
		},
	)

	JobSoftLimitExceededTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "job_soft_limit_exceeded_total",
			Help: "Attempts that ran past the soft time limit",
		},
	)

	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobs_in_flight",
			Help: "Number of jobs currently being processed by this worker",
		},
	)

	PipelineStepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_step_duration_seconds",
			Help:    "Duration of each pipeline step in seconds",
			Buckets: []float64{.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"step"},
	)

	PipelineStepFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_step_failures_total",
			Help: "Pipeline step failures",
		},
		[]string{"step"},
	)

	QueueMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_messages_total",
			Help: "Queue operations (enqueue, delay, receive, redeliver, ack)",
		},
		[]string{"operation"},
	)

	StaleClaimsReapedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stale_claims_reaped_total",
			Help: "Processing rows marked failed by the reaper",
		},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "uploads_total",
			Help: "Upload submissions by status",
		},
		[]string{"status"},
	)

	StorageOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_operations_total",
			Help: "Total number of storage operations",
		},
		[]string{"operation", "status"},
	)

	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storage_operation_duration_seconds",
			Help:    "Duration of storage operations in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"operation"},
	)

	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "app_info",
			Help: "Application information",
		},
		[]string{"version", "environment", "service"},
	)
)

func RecordClaim(result string) {
	JobsClaimedTotal.WithLabelValues(result).Inc()
}

func RecordAttempt(outcome string, durationSeconds float64) {
	JobAttemptsTotal.WithLabelValues(outcome).Inc()
	JobDuration.Observe(durationSeconds)
}

func RecordJobProcessed(status string) {
	JobsProcessedTotal.WithLabelValues(status).Inc()
}

func RecordSoftLimitExceeded() {
	JobSoftLimitExceededTotal.Inc()
}

func RecordStep(step string, durationSeconds float64, err error) {
	PipelineStepDuration.WithLabelValues(step).Observe(durationSeconds)
	if err != nil {
		PipelineStepFailuresTotal.WithLabelValues(step).Inc()
	}
}

func RecordQueueMessage(operation string) {
	QueueMessagesTotal.WithLabelValues(operation).Inc()
}

func RecordUpload(status string) {
	UploadsTotal.WithLabelValues(status).Inc()
}

func RecordReaped(n int) {
	StaleClaimsReapedTotal.Add(float64(n))
}

func SetAppInfo(version, environment, service string) {
	AppInfo.WithLabelValues(version, environment, service).Set(1)
}
