// Package prometheus adapts clinicauth engine metrics to the Prometheus
// client library.
//
// [Collector] implements prometheus.Collector over an engine snapshot, so
// every scrape reads the lock-free counters once. Counter names are
// clinicauth_*_total; the histogram is clinicauth_authenticate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register into the global Prometheus registry unless the caller passes it.
//   - Mutate engine state.
package prometheus
