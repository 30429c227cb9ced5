package internaldefs

import (
	goOnboard "github.com/MrEthical07/goOnboard"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   goOnboard.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram.
type HistogramDef struct {
	ID   goOnboard.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "goonboard_audit_dropped_total"

// AuditDroppedHelp describes [AuditDroppedName].
const AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

// CounterDefs lists every exported counter in exposition order.
var CounterDefs = []CounterDef{
	{ID: goOnboard.MetricIdentifierIssued, Name: "goonboard_identifier_issued_total", Help: "Identifiers issued."},
	{ID: goOnboard.MetricIdentifierCollision, Name: "goonboard_identifier_collision_total", Help: "Identifier candidates that collided with a live session."},
	{ID: goOnboard.MetricIdentifierExhausted, Name: "goonboard_identifier_exhausted_total", Help: "Identifier issuance that ran out of retries."},
	{ID: goOnboard.MetricIdentifierInvalid, Name: "goonboard_identifier_invalid_total", Help: "Malformed identifiers rejected."},
	{ID: goOnboard.MetricSessionStarted, Name: "goonboard_session_started_total", Help: "Sessions started."},
	{ID: goOnboard.MetricSessionReset, Name: "goonboard_session_reset_total", Help: "Sessions destroyed and replaced."},
	{ID: goOnboard.MetricSessionCompleted, Name: "goonboard_session_completed_total", Help: "Sessions completed."},
	{ID: goOnboard.MetricCodeIssued, Name: "goonboard_code_issued_total", Help: "Verification codes issued on first send."},
	{ID: goOnboard.MetricCodeResent, Name: "goonboard_code_resent_total", Help: "Verification codes reissued on resend."},
	{ID: goOnboard.MetricResendThrottled, Name: "goonboard_resend_throttled_total", Help: "Sends refused by cooldown or cap."},
	{ID: goOnboard.MetricDispatchFailure, Name: "goonboard_dispatch_failure_total", Help: "Committed codes the mailer failed to deliver."},
	{ID: goOnboard.MetricCodeVerified, Name: "goonboard_code_verified_total", Help: "Successful code validations."},
	{ID: goOnboard.MetricCodeIncorrect, Name: "goonboard_code_incorrect_total", Help: "Incorrect codes submitted."},
	{ID: goOnboard.MetricCodeExpired, Name: "goonboard_code_expired_total", Help: "Codes submitted after expiry."},
	{ID: goOnboard.MetricAttemptsExhausted, Name: "goonboard_attempts_exhausted_total", Help: "Sessions reset after the last attempt was spent."},
	{ID: goOnboard.MetricRateLimitHit, Name: "goonboard_rate_limit_hit_total", Help: "Requests denied by the per-origin rate limiter."},
	{ID: goOnboard.MetricStoreFailure, Name: "goonboard_store_failure_total", Help: "Session store operations that failed."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: goOnboard.MetricSendLatency, Name: "goonboard_send_latency_seconds", Help: "Code send latency histogram."},
	{ID: goOnboard.MetricValidateLatency, Name: "goonboard_validate_latency_seconds", Help: "Code validation latency histogram."},
}

// HistogramBounds are the bucket upper bounds in seconds, as Prometheus labels.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// NormalizeBuckets copies raw into a fixed array, zero-filling short input.
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
