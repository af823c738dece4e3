package internaldefs

import (
	"github.com/carenest/sessionguard"
)

// CounterDef names one sessionguard counter for exporters.
type CounterDef struct {
	ID   sessionguard.MetricID
	Name string
	Help string
}

// HistogramDef names one sessionguard histogram for exporters.
type HistogramDef struct {
	ID   sessionguard.MetricID
	Name string
	Help string
}

var CounterDefs = []CounterDef{
	{ID: sessionguard.MetricSessionCreated, Name: "sessionguard_session_created_total", Help: "Sessions created by sign-in."},
	{ID: sessionguard.MetricSessionRestored, Name: "sessionguard_session_restored_total", Help: "Sessions restored from the store."},
	{ID: sessionguard.MetricRestoreDiscarded, Name: "sessionguard_restore_discarded_total", Help: "Persisted sessions discarded on restore."},
	{ID: sessionguard.MetricActivityRecorded, Name: "sessionguard_activity_recorded_total", Help: "Recorded user activity ticks."},
	{ID: sessionguard.MetricRefreshSuccess, Name: "sessionguard_refresh_success_total", Help: "Successful session renewals."},
	{ID: sessionguard.MetricRefreshFailure, Name: "sessionguard_refresh_failure_total", Help: "Failed or timed-out session renewals."},
	{ID: sessionguard.MetricWarningIssued, Name: "sessionguard_warning_issued_total", Help: "Expiry warnings emitted."},
	{ID: sessionguard.MetricIdleTimeout, Name: "sessionguard_idle_timeout_total", Help: "Sessions ended by inactivity."},
	{ID: sessionguard.MetricSessionExpired, Name: "sessionguard_session_expired_total", Help: "Sessions that reached absolute expiry."},
	{ID: sessionguard.MetricSessionTerminated, Name: "sessionguard_session_terminated_total", Help: "Sessions terminated for any reason."},
	{ID: sessionguard.MetricIntegrityFailure, Name: "sessionguard_integrity_failure_total", Help: "Persisted blobs failing authentication or decoding."},
	{ID: sessionguard.MetricStoreFailure, Name: "sessionguard_store_failure_total", Help: "Store operations that failed."},
	{ID: sessionguard.MetricEncryptionDegraded, Name: "sessionguard_encryption_degraded_total", Help: "Initializations that fell back to unencrypted storage."},
	{ID: sessionguard.MetricSubscriberPanic, Name: "sessionguard_subscriber_panic_total", Help: "Recovered event subscriber panics."},
}

var HistogramDefs = []HistogramDef{
	{ID: sessionguard.MetricRefreshLatency, Name: "sessionguard_refresh_latency_seconds", Help: "Identity provider renewal latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The last
// snapshot bucket is +Inf.
var HistogramUpperBounds = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 5}

var HistogramBoundSuffix = []string{
	"0_01",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"5",
	"inf",
}

// AuditDroppedName is the counter for events the audit relay discarded.
const (
	AuditDroppedName = "sessionguard_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped due to dispatcher backpressure."
)

// NormalizeBuckets pads or truncates raw snapshot buckets to eight entries.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets turns per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
