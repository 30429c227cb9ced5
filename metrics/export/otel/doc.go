// Package otel publishes onboarding engine metrics through an OpenTelemetry
// Meter.
//
// [NewExporter] registers one Int64ObservableCounter per engine counter and
// two Int64ObservableGauges per latency histogram: <name>_bucket with one point
// per upper bound (attribute le) and <name>_count. A single callback reads the
// engine snapshot on each collection. The caller owns the MeterProvider.
package otel
