package metrics

import (
	"time"

	"github.com/chattwin/chattwin/internal/observability"
)

// Chat pipeline metric names
const (
	AdmissionsTotalName        = "chat_admissions_total"
	ValidationRejectsTotalName = "chat_validation_rejects_total"
	ProviderLatencyName        = "chat_provider_latency_ms"
	CleanupReclaimedName       = "chat_limiter_cleanup_reclaimed"
)

// RecordAdmission records an admission decision. Gate is "cooldown",
// "window", or "allowed".
func RecordAdmission(gate string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			AdmissionsTotalName,
			1,
			map[string]string{
				"gate": gate,
			},
		)
	}
}

// RecordValidationReject records a rejected message payload.
func RecordValidationReject(reason string) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Counter(
			ValidationRejectsTotalName,
			1,
			map[string]string{
				"reason": reason,
			},
		)
	}
}

// RecordProviderLatency records end-to-end provider call latency.
func RecordProviderLatency(provider string, duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failure"
	}

	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Histogram(
			ProviderLatencyName,
			duration,
			map[string]string{
				"provider": provider,
				"status":   status,
			},
		)
	}
}

// RecordCleanupReclaimed records how many identifiers a limiter sweep removed.
func RecordCleanupReclaimed(count int) {
	if observability.TelemetrySystem != nil {
		_ = observability.TelemetrySystem.Gauge(
			CleanupReclaimedName,
			float64(count),
			nil,
		)
	}
}
