package observer

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = true // Flag to control metric collection

	// Labels for send pipeline metrics
	sendLabels = []string{"tenant_id", "message_type", "outcome"}
	// Labels for webhook metrics
	webhookLabels = []string{"tenant_id", "status"}
	// Labels for schedule sweep metrics
	scheduleLabels = []string{"tenant_id", "status"}
	// Labels for database operation metrics
	dbOperationLabels = []string{"operation", "entity", "tenant_id", "status"}

	// MessagesTotal counts send attempts by final outcome.
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_messaging_messages_total",
			Help: "Total number of send attempts, labeled by message type and outcome.",
		},
		sendLabels,
	)

	// WebhookEventsTotal counts provider status callbacks by resulting status.
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_messaging_webhook_events_total",
			Help: "Total number of provider webhook events received, labeled by reported status.",
		},
		webhookLabels,
	)

	// SchedulesProcessedTotal counts due schedules resolved by the sweep.
	SchedulesProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_messaging_schedules_processed_total",
			Help: "Total number of due schedules resolved, labeled by terminal status.",
		},
		scheduleLabels,
	)

	// BulkRecipientsTotal counts bulk campaign recipients by outcome.
	BulkRecipientsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wa_messaging_bulk_recipients_total",
			Help: "Total number of bulk campaign recipients handled, labeled by outcome.",
		},
		sendLabels,
	)

	// SweepDurationSeconds measures one full pass over due schedules.
	SweepDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wa_messaging_sweep_duration_seconds",
			Help:    "Histogram of schedule sweep durations.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
	)

	// ProviderSendDurationSeconds measures single BSP send calls.
	ProviderSendDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_messaging_provider_send_duration_seconds",
			Help:    "Histogram of provider send call durations.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"provider", "status"},
	)

	// DatabaseOperationDurationSeconds measures repository operations.
	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wa_messaging_database_operation_duration_seconds",
			Help:    "Histogram of database operation durations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		},
		dbOperationLabels,
	)
)

// InitMetrics toggles metric collection. Metrics are auto-registered via
// promauto; disabling only stops the helpers from recording.
func InitMetrics(enabled bool) {
	metricsEnabled = enabled
}

// sanitizeTenant guards against unbounded label cardinality from malformed
// tenant identifiers.
func sanitizeTenant(tenant string) string {
	tenant = strings.TrimSpace(tenant)
	if tenant == "" {
		return "unknown"
	}
	if len(tenant) > 64 {
		return tenant[:64]
	}
	return tenant
}

// IncMessage increments the send attempt counter.
func IncMessage(tenantID, messageType, outcome string) {
	if !metricsEnabled {
		return
	}
	MessagesTotal.WithLabelValues(sanitizeTenant(tenantID), messageType, outcome).Inc()
}

// IncWebhookEvent increments the webhook event counter.
func IncWebhookEvent(tenantID, status string) {
	if !metricsEnabled {
		return
	}
	WebhookEventsTotal.WithLabelValues(sanitizeTenant(tenantID), status).Inc()
}

// IncScheduleProcessed increments the schedule resolution counter.
func IncScheduleProcessed(tenantID, status string) {
	if !metricsEnabled {
		return
	}
	SchedulesProcessedTotal.WithLabelValues(sanitizeTenant(tenantID), status).Inc()
}

// IncBulkRecipient increments the bulk recipient counter.
func IncBulkRecipient(tenantID, messageType, outcome string) {
	if !metricsEnabled {
		return
	}
	BulkRecipientsTotal.WithLabelValues(sanitizeTenant(tenantID), messageType, outcome).Inc()
}

// ObserveSweepDuration records the duration of one schedule sweep.
func ObserveSweepDuration(duration time.Duration) {
	if !metricsEnabled {
		return
	}
	SweepDurationSeconds.Observe(duration.Seconds())
}

// ObserveProviderSendDuration records one BSP send call.
func ObserveProviderSendDuration(provider string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	ProviderSendDurationSeconds.WithLabelValues(provider, status).Observe(duration.Seconds())
}

// ObserveDbOperationDuration records the duration and status of a database operation.
func ObserveDbOperationDuration(operation, entity, tenantID string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, sanitizeTenant(tenantID), status).Observe(duration.Seconds())
}
