// Package otel publishes sessionguard metrics through OpenTelemetry
// observable instruments.
//
// Each counter becomes an Int64ObservableCounter; the renewal latency
// histogram becomes one cumulative Int64ObservableGauge per bucket plus a
// count gauge. A single callback reads the manager snapshot per collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate manager state.
package otel
