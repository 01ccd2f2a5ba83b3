// Package otel binds clinicauth engine counters to OpenTelemetry
// observable instruments.
//
// [NewExporter] creates one Int64ObservableCounter per engine counter and,
// for the latency histogram, a bucket gauge carrying an "le" attribute
// plus a count gauge. A single callback reads
// [clinicauth.Engine.MetricsSnapshot] on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the OTel MeterProvider; callers supply the Meter.
//   - Mutate engine state.
package otel
