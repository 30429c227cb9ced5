// Package prometheus renders onboarding engine metrics in Prometheus text
// exposition format.
//
// Counters are named goonboard_*_total. The send and validate latency
// histograms are goonboard_send_latency_seconds and
// goonboard_validate_latency_seconds. Nothing is registered globally; callers
// mount [Exporter.Handler] or write a snapshot with [Exporter.WriteTo].
package prometheus
