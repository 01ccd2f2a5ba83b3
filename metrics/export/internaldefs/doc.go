// Package internaldefs is the single table of exported metric names, help
// strings, and latency bucket bounds. The Prometheus and OpenTelemetry
// exporters both read it, so a metric renamed here is renamed everywhere.
//
// # What this package must NOT do
//
//   - Import any exporter package.
//   - Perform I/O.
package internaldefs
