package observer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = true // Flag to control metric collection

	// Labels for webhook event metrics
	webhookEventLabels = []string{"provider", "event"}
	webhookSkipLabels  = []string{"provider", "reason"}
	// Labels for DB operation metrics
	dbOperationLabels = []string{"operation", "entity", "organization_id", "status"}
	// Labels for export metrics
	exportLabels = []string{"format", "outcome"}

	// Webhook ingestion counters
	WebhookEventsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comm_audit_webhook_events_received_total",
			Help: "Total number of provider webhook events received, labeled by provider and event type.",
		},
		webhookEventLabels,
	)
	WebhookEventsAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comm_audit_webhook_events_applied_total",
			Help: "Total number of webhook events successfully applied to the audit store.",
		},
		webhookEventLabels,
	)
	WebhookEventsSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comm_audit_webhook_events_skipped_total",
			Help: "Total number of webhook events skipped (malformed, unrecognized, or orphaned), labeled by reason.",
		},
		webhookSkipLabels,
	)

	// Webhook batch processing duration
	WebhookBatchDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "comm_audit_webhook_batch_duration_seconds",
			Help:    "Histogram of webhook batch processing durations.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~2.5s, under provider deadlines
		},
		[]string{"provider"},
	)

	// DB operation duration histogram
	DbOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "comm_audit_db_operation_duration_seconds",
			Help:    "Histogram of database operation durations, labeled by operation, entity and outcome.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		dbOperationLabels,
	)

	// Export counters and duration
	ExportRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comm_audit_export_requests_total",
			Help: "Total number of export requests, labeled by format and sync/async/failed outcome.",
		},
		exportLabels,
	)
	ExportRenderDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "comm_audit_export_render_duration_seconds",
			Help:    "Histogram of export render durations.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		[]string{"format"},
	)

	// Opt-out propagation counter
	OptOutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comm_audit_opt_outs_total",
			Help: "Total number of recipient opt-outs processed, labeled by channel.",
		},
		[]string{"channel"},
	)

	// Search request counter
	SearchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comm_audit_search_requests_total",
			Help: "Total number of audit search requests, labeled by outcome.",
		},
		[]string{"status"},
	)

	// Preference worker queue gauge
	PreferenceQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "comm_audit_preference_queue_length",
			Help: "Approximate number of preference mutations waiting in the worker pool.",
		},
	)
)

// InitMetrics toggles metric collection. When disabled the helper functions
// become no-ops; the collectors stay registered so /metrics keeps serving.
func InitMetrics(enabled bool) {
	metricsEnabled = enabled
}

// IncWebhookEventReceived records one received provider event.
func IncWebhookEventReceived(provider, event string) {
	if !metricsEnabled {
		return
	}
	WebhookEventsReceivedTotal.WithLabelValues(provider, event).Inc()
}

// IncWebhookEventApplied records one event applied to the store.
func IncWebhookEventApplied(provider, event string) {
	if !metricsEnabled {
		return
	}
	WebhookEventsAppliedTotal.WithLabelValues(provider, event).Inc()
}

// IncWebhookEventSkipped records one skipped event with its reason.
func IncWebhookEventSkipped(provider, reason string) {
	if !metricsEnabled {
		return
	}
	WebhookEventsSkippedTotal.WithLabelValues(provider, reason).Inc()
}

// ObserveWebhookBatchDuration records how long one webhook batch took.
func ObserveWebhookBatchDuration(provider string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	WebhookBatchDurationSeconds.WithLabelValues(provider).Observe(duration.Seconds())
}

// ObserveDbOperationDuration records a database operation's duration and outcome.
func ObserveDbOperationDuration(operation, entity, organizationID string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DbOperationDurationSeconds.WithLabelValues(operation, entity, organizationID, status).Observe(duration.Seconds())
}

// IncExportRequest records one export request outcome (inline, queued, failed).
func IncExportRequest(format, outcome string) {
	if !metricsEnabled {
		return
	}
	ExportRequestsTotal.WithLabelValues(format, outcome).Inc()
}

// ObserveExportRenderDuration records one export render duration.
func ObserveExportRenderDuration(format string, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	ExportRenderDurationSeconds.WithLabelValues(format).Observe(duration.Seconds())
}

// IncOptOut records one processed opt-out for a channel (sms or email).
func IncOptOut(channel string) {
	if !metricsEnabled {
		return
	}
	OptOutsTotal.WithLabelValues(channel).Inc()
}

// IncSearchRequest records one search request outcome.
func IncSearchRequest(status string) {
	if !metricsEnabled {
		return
	}
	SearchRequestsTotal.WithLabelValues(status).Inc()
}

// SetPreferenceQueueLength updates the preference worker queue gauge.
func SetPreferenceQueueLength(length int) {
	if !metricsEnabled {
		return
	}
	PreferenceQueueLength.Set(float64(length))
}
