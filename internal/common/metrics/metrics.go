// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Attempt outcomes recorded in WebhookAttempts.
const (
	OutcomeSuccess       = "success"
	OutcomeServerError   = "server_error"
	OutcomeClientError   = "client_error"
	OutcomeTimeout       = "timeout"
	OutcomeNetworkError  = "network_error"
	OutcomeWorkflowError = "workflow_error"
	OutcomeParseError    = "parse_error"
	OutcomeHTML          = "html"
)

var (
	WebhookAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_attempts_total",
			Help: "Outbound webhook attempts by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	WebhookFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_fallbacks_total",
			Help: "Logical webhook requests answered by the local fallback generator",
		},
		[]string{"reason"},
	)

	WebhookRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_request_duration_seconds",
			Help:    "Duration of a logical webhook request including retries",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30, 60},
		},
		[]string{"channel"},
	)

	DiagnosticsRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_diagnostics_runs_total",
			Help: "Diagnostics batteries run, by overall verdict",
		},
		[]string{"overall"},
	)

	WorkerJobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_completed_total",
			Help: "Total number of jobs completed by worker",
		},
		[]string{"task_type"},
	)

	WorkerJobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "worker_jobs_failed_total",
			Help: "Total number of jobs failed by worker",
		},
		[]string{"task_type", "error_code"},
	)

	WorkerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "worker_job_duration_seconds",
			Help: "Duration of job processing in seconds",
		},
		[]string{"task_type"},
	)

	WorkerJobsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "worker_jobs_active",
			Help: "Number of active jobs per worker",
		},
		[]string{"task_type"},
	)
)
