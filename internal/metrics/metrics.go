package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Label value constants to prevent typos
const (
	// Queue types
	QueueTypeSyncJob = "sync_job"

	// Queue results
	ResultSuccess = "success"
	ResultRetry   = "retry"
	ResultDropped = "dropped"
	ResultFailure = "failure"

	// HTTP endpoints
	EndpointOAuthStart    = "oauth_start"
	EndpointOAuthCallback = "oauth_callback"
	EndpointWebhook       = "whoop_webhook"
	EndpointCycles        = "cycles"
	EndpointSleep         = "sleep"
	EndpointRecovery      = "recovery"
	EndpointWorkouts      = "workouts"
	EndpointDays          = "days"
	EndpointAthletes      = "athletes"
	EndpointHealth        = "health"

	// WHOOP API operations
	OpExchangeCode   = "exchange_code"
	OpRefreshToken   = "refresh_token"
	OpListResources  = "list_resources"
	OpGetResource    = "get_resource"

	// Resource kinds
	KindCycle    = "cycle"
	KindSleep    = "sleep"
	KindRecovery = "recovery"
	KindWorkout  = "workout"

	// Outcomes
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"

	// Database operations
	DBOpEnqueueSyncJob = "enqueue_sync_job"
	DBOpClaimSyncJob   = "claim_sync_job"
	DBOpDeleteSyncJob  = "delete_sync_job"
	DBOpReleaseSyncJob = "release_sync_job"
)

// HTTP Metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"endpoint", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"endpoint", "status_code"},
	)
)

// Queue Metrics
var (
	QueueDepthTotal = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth_total",
			Help: "Total number of items in queue (all states)",
		},
		[]string{"queue_type"},
	)

	QueueDepthReady = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth_ready",
			Help: "Number of items ready for processing",
		},
		[]string{"queue_type"},
	)

	QueueEnqueueTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_enqueue_total",
			Help: "Total number of items enqueued",
		},
		[]string{"queue_type"},
	)

	QueueDequeueTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_dequeue_total",
			Help: "Total number of items dequeued with outcome",
		},
		[]string{"queue_type", "result"},
	)

	QueueRetryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_retry_total",
			Help: "Total number of retry attempts by retry count",
		},
		[]string{"queue_type", "retry_count"},
	)

	QueueProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_processing_duration_seconds",
			Help:    "Time spent processing queue items",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"queue_type", "result"},
	)
)

// Worker Metrics
var (
	WorkerActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_active",
			Help: "Whether the worker is currently active (1) or not (0)",
		},
	)
)

// WHOOP API Metrics
var (
	WhoopAPIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whoop_api_requests_total",
			Help: "Total number of WHOOP API requests",
		},
		[]string{"operation", "status_code"},
	)

	WhoopAPIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whoop_api_request_duration_seconds",
			Help:    "WHOOP API request latency in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"operation", "status_code"},
	)

	TokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_refreshes_total",
			Help: "Total number of token refresh attempts with outcome",
		},
		[]string{"outcome"},
	)
)

// Database Metrics
var (
	DBOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_operation_duration_seconds",
			Help:    "Database operation latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)

	DBOperationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_operation_errors_total",
			Help: "Total number of database operation errors",
		},
		[]string{"operation"},
	)
)

// Business Metrics
var (
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total number of webhook events received by type and outcome status",
		},
		[]string{"event_type", "status"},
	)

	RecordsReconciledTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "records_reconciled_total",
			Help: "Total number of resource records reconciled by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	SyncJobsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_jobs_completed_total",
			Help: "Total number of sync jobs completed",
		},
		[]string{"job_type"},
	)
)
