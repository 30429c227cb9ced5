package goOnboard

import (
	"sync/atomic"
	"time"
)

// MetricID names one engine counter or latency histogram.
type MetricID uint16

const (
	// MetricIdentifierIssued counts generated identifiers handed out.
	MetricIdentifierIssued MetricID = iota
	// MetricIdentifierCollision counts generated or proposed identifiers that were already taken.
	MetricIdentifierCollision
	// MetricIdentifierExhausted counts issuances that ran out of retries.
	MetricIdentifierExhausted
	// MetricIdentifierInvalid counts rejected malformed identifiers.
	MetricIdentifierInvalid
	// MetricSessionStarted counts created sessions.
	MetricSessionStarted
	// MetricSessionReset counts sessions destroyed and replaced.
	MetricSessionReset
	// MetricSessionCompleted counts finalized sessions.
	MetricSessionCompleted
	// MetricCodeIssued counts first sends of a code.
	MetricCodeIssued
	// MetricCodeResent counts resends.
	MetricCodeResent
	// MetricResendThrottled counts refused sends.
	MetricResendThrottled
	// MetricDispatchFailure counts committed codes the mailer failed to deliver.
	MetricDispatchFailure
	// MetricCodeVerified counts successful validations.
	MetricCodeVerified
	// MetricCodeIncorrect counts wrong codes.
	MetricCodeIncorrect
	// MetricCodeExpired counts submissions without an active code.
	MetricCodeExpired
	// MetricAttemptsExhausted counts sessions reset after the last attempt.
	MetricAttemptsExhausted
	// MetricRateLimitHit counts requests refused by the per-origin limiter.
	MetricRateLimitHit
	// MetricStoreFailure counts session store errors.
	MetricStoreFailure
	// MetricSendLatency is the latency histogram of SendCode and ResendCode.
	MetricSendLatency
	// MetricValidateLatency is the latency histogram of ValidateCode.
	MetricValidateLatency
	metricIDCount
)

// latencyBounds are the inclusive upper bounds of the first seven latency
// buckets; the eighth bucket takes everything slower.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const histBucketCount = len(latencyBounds) + 1

// latencyIDs maps each latency MetricID to its histogram slot.
var latencyIDs = [...]MetricID{MetricSendLatency, MetricValidateLatency}

type latencyHistogram struct {
	buckets [histBucketCount]atomic.Uint64
	sumNs   atomic.Int64
}

// counter sits on its own cache line so hot counters don't false-share.
type counter struct {
	atomic.Uint64
	_ [56]byte
}

// Metrics holds lock-free counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]counter
	latency       [len(latencyIDs)]latencyHistogram
}

// MetricsSnapshot is a point-in-time copy of every counter and histogram.
// Histograms hold per-bucket (not cumulative) counts; LatencySum holds the
// total observed duration per histogram.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
	LatencySum map[MetricID]time.Duration
}

// NewMetrics returns a Metrics configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether counters are recorded.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// LatencyEnabled reports whether latency histograms are recorded.
func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to counter id. Latency ids are not counters and are ignored.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount || latencySlot(id) >= 0 {
		return
	}
	m.counters[id].Add(1)
}

// Observe records d into the histogram for id. Only latency metrics carry a
// histogram; other ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() {
		return
	}
	slot := latencySlot(id)
	if slot < 0 {
		return
	}
	h := &m.latency[slot]
	h.buckets[bucketIndex(d)].Add(1)
	h.sumNs.Add(int64(d))
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].Load()
}

// Snapshot copies all counters, and the histograms when latency is enabled.
// Values are read one by one, so a snapshot taken under load may mix
// neighbouring instants.
func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
		LatencySum: map[MetricID]time.Duration{},
	}
	if !m.Enabled() {
		return s
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if latencySlot(id) < 0 {
			s.Counters[id] = m.counters[id].Load()
		}
	}
	if !m.enableLatency {
		return s
	}
	for slot, id := range latencyIDs {
		h := &m.latency[slot]
		buckets := make([]uint64, histBucketCount)
		for i := range buckets {
			buckets[i] = h.buckets[i].Load()
		}
		s.Histograms[id] = buckets
		s.LatencySum[id] = time.Duration(h.sumNs.Load())
	}
	return s
}

func latencySlot(id MetricID) int {
	for slot, lid := range latencyIDs {
		if lid == id {
			return slot
		}
	}
	return -1
}

func bucketIndex(d time.Duration) int {
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}
